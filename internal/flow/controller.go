package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"trivia-party/internal/shuffle"
	"trivia-party/internal/store"
)

var (
	ErrGameNotStarted = errors.New("game not started")
	ErrGameNotReady   = errors.New("game not ready")
	ErrNoFurtherState = errors.New("no further state")
)

// Collections the controller reads and writes.
const (
	CollectionGames         = "games"
	CollectionRounds        = "rounds"
	CollectionQuestions     = "questions"
	CollectionGameQuestions = "game_questions"
)

// Controller sequences a game through its stages. Exactly one controller
// instance is expected per running game; concurrent controllers for the same
// game degrade to last-write-wins.
type Controller struct {
	client store.Client
}

func NewController(client store.Client) *Controller {
	return &Controller{client: client}
}

// Start moves a ready game into play: status becomes in-progress and the
// state document is initialized at game-start.
func (c *Controller) Start(ctx context.Context, gameID string) (State, error) {
	game, err := c.client.Get(ctx, CollectionGames, gameID)
	if err != nil {
		return State{}, err
	}
	if status := game.String("status"); status != StatusReady && status != StatusInProgress {
		return State{}, fmt.Errorf("%w: status=%s", ErrGameNotReady, status)
	}
	rounds, err := c.listRounds(ctx, gameID)
	if err != nil {
		return State{}, err
	}
	state := State{
		Stage:  StageGameStart,
		Name:   game.String("name"),
		Rounds: len(rounds),
	}
	return c.writeState(ctx, gameID, state, StatusInProgress)
}

// Next advances the state machine one step. All round and question loads
// happen before the single write; a load failure leaves the stored state
// untouched and the host simply retries.
func (c *Controller) Next(ctx context.Context, gameID string) (State, error) {
	game, err := c.client.Get(ctx, CollectionGames, gameID)
	if err != nil {
		return State{}, err
	}
	state, err := ParseState(game.String("state"))
	if err != nil {
		return State{}, err
	}

	switch state.Stage {
	case "":
		return State{}, ErrGameNotStarted

	case StageGameStart:
		round, err := c.roundSnapshot(ctx, gameID, 1)
		if err != nil {
			return State{}, err
		}
		next := State{Stage: StageRoundStart, Name: state.Name, Rounds: round.Rounds, Round: round}
		return c.writeState(ctx, gameID, next, StatusInProgress)

	case StageRoundStart:
		question, err := c.questionSnapshot(ctx, gameID, state.Round, 1)
		if err != nil {
			return State{}, err
		}
		next := state
		next.Stage = StageRoundPlay
		next.Question = question
		return c.writeState(ctx, gameID, next, "")

	case StageRoundPlay:
		if !state.Revealed() {
			label, err := c.correctLabel(ctx, state.Question.ID)
			if err != nil {
				return State{}, err
			}
			next := state
			revealed := *state.Question
			revealed.CorrectAnswer = label
			next.Question = &revealed
			return c.writeState(ctx, gameID, next, "")
		}
		if state.Question.QuestionNumber < state.Round.QuestionCount {
			question, err := c.questionSnapshot(ctx, gameID, state.Round, state.Question.QuestionNumber+1)
			if err != nil {
				return State{}, err
			}
			next := state
			next.Question = question
			return c.writeState(ctx, gameID, next, "")
		}
		next := state
		next.Stage = StageRoundEnd
		next.Question = nil
		return c.writeState(ctx, gameID, next, "")

	case StageRoundEnd:
		if state.Round.RoundNumber < state.Round.Rounds {
			round, err := c.roundSnapshot(ctx, gameID, state.Round.RoundNumber+1)
			if err != nil {
				return State{}, err
			}
			next := State{Stage: StageRoundStart, Name: state.Name, Rounds: round.Rounds, Round: round}
			return c.writeState(ctx, gameID, next, "")
		}
		next := State{Stage: StageGameEnd, Name: state.Name, Rounds: state.Rounds}
		return c.writeState(ctx, gameID, next, StatusCompleted)

	case StageGameEnd:
		return c.writeState(ctx, gameID, State{Stage: StageThanks, Name: state.Name}, "")

	case StageThanks:
		return c.writeState(ctx, gameID, State{Stage: StageReturnToLobby, Name: state.Name}, "")

	default:
		return State{}, ErrNoFurtherState
	}
}

// Previous mirrors Next. Within round-play a revealed question first unseats
// its correct answer, then earlier questions are reloaded unrevealed; outside
// round-play the outer sequence is walked in reverse, rebuilding the snapshot
// the mirrored forward step would have carried.
func (c *Controller) Previous(ctx context.Context, gameID string) (State, error) {
	game, err := c.client.Get(ctx, CollectionGames, gameID)
	if err != nil {
		return State{}, err
	}
	state, err := ParseState(game.String("state"))
	if err != nil {
		return State{}, err
	}

	switch state.Stage {
	case "", StageGameStart:
		return State{}, ErrNoFurtherState

	case StageRoundStart:
		if state.Round.RoundNumber > 1 {
			round, err := c.roundSnapshot(ctx, gameID, state.Round.RoundNumber-1)
			if err != nil {
				return State{}, err
			}
			prev := State{Stage: StageRoundEnd, Name: state.Name, Rounds: round.Rounds, Round: round}
			return c.writeState(ctx, gameID, prev, "")
		}
		prev := State{Stage: StageGameStart, Name: state.Name, Rounds: state.Rounds}
		return c.writeState(ctx, gameID, prev, "")

	case StageRoundPlay:
		if state.Revealed() {
			prev := state
			hidden := *state.Question
			hidden.CorrectAnswer = ""
			prev.Question = &hidden
			return c.writeState(ctx, gameID, prev, "")
		}
		if state.Question.QuestionNumber > 1 {
			question, err := c.questionSnapshot(ctx, gameID, state.Round, state.Question.QuestionNumber-1)
			if err != nil {
				return State{}, err
			}
			prev := state
			prev.Question = question
			return c.writeState(ctx, gameID, prev, "")
		}
		prev := state
		prev.Stage = StageRoundStart
		prev.Question = nil
		return c.writeState(ctx, gameID, prev, "")

	case StageRoundEnd:
		question, err := c.revealedQuestionSnapshot(ctx, gameID, state.Round, state.Round.QuestionCount)
		if err != nil {
			return State{}, err
		}
		prev := state
		prev.Stage = StageRoundPlay
		prev.Question = question
		return c.writeState(ctx, gameID, prev, "")

	case StageGameEnd:
		rounds, err := c.listRounds(ctx, gameID)
		if err != nil {
			return State{}, err
		}
		if len(rounds) == 0 {
			return State{}, errors.New("game has no rounds")
		}
		round, err := c.roundSnapshot(ctx, gameID, len(rounds))
		if err != nil {
			return State{}, err
		}
		prev := State{Stage: StageRoundEnd, Name: state.Name, Rounds: round.Rounds, Round: round}
		return c.writeState(ctx, gameID, prev, StatusInProgress)

	case StageThanks:
		prev := State{Stage: StageGameEnd, Name: state.Name, Rounds: state.Rounds}
		return c.writeState(ctx, gameID, prev, "")

	case StageReturnToLobby:
		prev := State{Stage: StageThanks, Name: state.Name}
		return c.writeState(ctx, gameID, prev, "")

	default:
		return State{}, ErrNoFurtherState
	}
}

func (c *Controller) writeState(ctx context.Context, gameID string, state State, status string) (State, error) {
	fields := map[string]any{"state": state.Encode()}
	if status != "" {
		fields["status"] = status
	}
	if _, err := c.client.Update(ctx, CollectionGames, gameID, fields); err != nil {
		return State{}, err
	}
	return state, nil
}

func (c *Controller) listRounds(ctx context.Context, gameID string) ([]store.Record, error) {
	rounds, err := c.client.List(ctx, CollectionRounds, store.Eq("game", gameID))
	if err != nil {
		return nil, err
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].Int("sequence_number") < rounds[j].Int("sequence_number")
	})
	return rounds, nil
}

// listAssignments returns a round's live question assignments in sequence
// order. Soft-deleted assignments (cleared game/round, zero sequence) are
// excluded but remain in the collection as the used-question record.
func (c *Controller) listAssignments(ctx context.Context, roundID string) ([]store.Record, error) {
	assignments, err := c.client.List(ctx, CollectionGameQuestions,
		store.Eq("round", roundID),
		store.Gt("sequence", 0),
		store.NotEmpty("game"),
	)
	if err != nil {
		return nil, err
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].Int("sequence") < assignments[j].Int("sequence")
	})
	return assignments, nil
}

func (c *Controller) roundSnapshot(ctx context.Context, gameID string, number int) (*RoundSnapshot, error) {
	rounds, err := c.listRounds(ctx, gameID)
	if err != nil {
		return nil, err
	}
	var round store.Record
	found := false
	for _, candidate := range rounds {
		if candidate.Int("sequence_number") == number {
			round = candidate
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("round %d not found", number)
	}
	assignments, err := c.listAssignments(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	categories := []string{}
	for _, assignment := range assignments {
		category := assignment.String("category_name")
		if category != "" && !seen[category] {
			seen[category] = true
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)
	return &RoundSnapshot{
		RoundNumber:   number,
		Rounds:        len(rounds),
		QuestionCount: round.Int("question_count"),
		Title:         round.String("title"),
		Categories:    categories,
	}, nil
}

// questionSnapshot loads question `number` of the round and builds the
// player-safe snapshot: answers already shuffled under the assignment's
// secret key, correct answer absent.
func (c *Controller) questionSnapshot(ctx context.Context, gameID string, round *RoundSnapshot, number int) (*QuestionSnapshot, error) {
	if round == nil {
		return nil, errors.New("round not loaded")
	}
	assignment, err := c.assignmentAt(ctx, gameID, round, number)
	if err != nil {
		return nil, err
	}
	question, err := c.client.Get(ctx, CollectionQuestions, assignment.String("question"))
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", assignment.String("question"), err)
	}
	shuffled := shuffle.Shuffle(
		assignment.String("key"),
		question.String("answer_a"),
		question.String("answer_b"),
		question.String("answer_c"),
		question.String("answer_d"),
	)
	return &QuestionSnapshot{
		ID:             assignment.ID,
		QuestionNumber: number,
		Category:       question.String("category"),
		Difficulty:     question.String("difficulty"),
		Question:       question.String("question"),
		A:              shuffled.Answers[0].Text,
		B:              shuffled.Answers[1].Text,
		C:              shuffled.Answers[2].Text,
		D:              shuffled.Answers[3].Text,
	}, nil
}

func (c *Controller) revealedQuestionSnapshot(ctx context.Context, gameID string, round *RoundSnapshot, number int) (*QuestionSnapshot, error) {
	question, err := c.questionSnapshot(ctx, gameID, round, number)
	if err != nil {
		return nil, err
	}
	label, err := c.correctLabel(ctx, question.ID)
	if err != nil {
		return nil, err
	}
	question.CorrectAnswer = label
	return question, nil
}

func (c *Controller) assignmentAt(ctx context.Context, gameID string, round *RoundSnapshot, number int) (store.Record, error) {
	rounds, err := c.listRounds(ctx, gameID)
	if err != nil {
		return store.Record{}, err
	}
	for _, candidate := range rounds {
		if candidate.Int("sequence_number") != round.RoundNumber {
			continue
		}
		assignments, err := c.listAssignments(ctx, candidate.ID)
		if err != nil {
			return store.Record{}, err
		}
		if number < 1 || number > len(assignments) {
			return store.Record{}, fmt.Errorf("question %d of round %d not found", number, round.RoundNumber)
		}
		return assignments[number-1], nil
	}
	return store.Record{}, fmt.Errorf("round %d not found", round.RoundNumber)
}

// correctLabel resolves the assignment's seed and computes the reveal label.
// The seed stays host-side; only the label enters the state document.
func (c *Controller) correctLabel(ctx context.Context, assignmentID string) (string, error) {
	assignment, err := c.client.Get(ctx, CollectionGameQuestions, assignmentID)
	if err != nil {
		return "", fmt.Errorf("assignment %s: %w", assignmentID, err)
	}
	return shuffle.CorrectLabel(assignment.String("key")), nil
}
