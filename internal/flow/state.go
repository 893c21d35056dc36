// Package flow owns the live game-flow state machine. The host's controller
// is the only writer of a game's state document; every viewer re-derives its
// rendering from the latest pushed document.
package flow

import "encoding/json"

type Stage string

const (
	StageGameStart     Stage = "game-start"
	StageRoundStart    Stage = "round-start"
	StageRoundPlay     Stage = "round-play"
	StageRoundEnd      Stage = "round-end"
	StageGameEnd       Stage = "game-end"
	StageThanks        Stage = "thanks"
	StageReturnToLobby Stage = "return-to-lobby"
)

// Game status values stored on the games record.
const (
	StatusSetup      = "setup"
	StatusReady      = "ready"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

type RoundSnapshot struct {
	RoundNumber   int      `json:"round_number"`
	Rounds        int      `json:"rounds"`
	QuestionCount int      `json:"question_count"`
	Title         string   `json:"title"`
	Categories    []string `json:"categories,omitempty"`
}

// QuestionSnapshot carries the shuffled answer texts under fixed labels A-D.
// The shuffle seed never enters the snapshot; CorrectAnswer is attached only
// when the host reveals, and its presence is what marks the question revealed.
type QuestionSnapshot struct {
	ID             string `json:"id"`
	QuestionNumber int    `json:"question_number"`
	Category       string `json:"category"`
	Difficulty     string `json:"difficulty"`
	Question       string `json:"question"`
	A              string `json:"a"`
	B              string `json:"b"`
	C              string `json:"c"`
	D              string `json:"d"`
	CorrectAnswer  string `json:"correct_answer,omitempty"`
}

// State is the document stored in the game record's state field. Only the
// fields valid for the current stage are set; Round is present from
// round-start through round-end, Question only during round-play.
type State struct {
	Stage    Stage             `json:"state"`
	Name     string            `json:"name,omitempty"`
	Rounds   int               `json:"rounds,omitempty"`
	Round    *RoundSnapshot    `json:"round,omitempty"`
	Question *QuestionSnapshot `json:"question,omitempty"`
}

func (s State) Revealed() bool {
	return s.Question != nil && s.Question.CorrectAnswer != ""
}

func (s State) Encode() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

// ParseState decodes a stored state document. An empty document yields a zero
// State with an empty Stage, meaning the game has not been started.
func ParseState(raw string) (State, error) {
	if raw == "" {
		return State{}, nil
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, err
	}
	return state, nil
}
