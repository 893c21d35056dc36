// Package scoreboard maintains the denormalized team roster and score view
// stored on the game record. Membership events from any number of players can
// race; the full rebuild is idempotent and self-healing, so concurrent runs
// converge regardless of ordering.
package scoreboard

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strconv"

	"trivia-party/internal/store"
)

const (
	CollectionGames         = "games"
	CollectionRounds        = "rounds"
	CollectionGameQuestions = "game_questions"
	CollectionTeams         = "teams"
	CollectionGamePlayers   = "game_players"
	CollectionGameAnswers   = "game_answers"
)

// NoTeamID is the synthetic bucket for players who have not picked a team.
// It is always present in the document, even when empty.
const NoTeamID = "no-team"

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TeamScore struct {
	Name        string         `json:"name"`
	Players     []Player       `json:"players"`
	Score       int            `json:"score"`
	RoundScores map[string]int `json:"round_scores"`
}

// Document is the scoreboard stored on the game record, keyed by team id.
type Document map[string]*TeamScore

// ParseDocument decodes a stored scoreboard. Empty input yields a document
// holding only the no-team bucket.
func ParseDocument(raw string) (Document, error) {
	doc := Document{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, err
		}
	}
	doc.normalize()
	return doc, nil
}

func (d Document) Encode() string {
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(data)
}

func (d Document) normalize() {
	if d[NoTeamID] == nil {
		d[NoTeamID] = &TeamScore{}
	}
	for _, team := range d {
		if team.Players == nil {
			team.Players = []Player{}
		}
		if team.RoundScores == nil {
			team.RoundScores = map[string]int{}
		}
	}
}

// bucket returns the entry for a team id, creating it on first reference.
func (d Document) bucket(teamID, name string) *TeamScore {
	if teamID == "" {
		teamID = NoTeamID
	}
	team := d[teamID]
	if team == nil {
		team = &TeamScore{Players: []Player{}, RoundScores: map[string]int{}}
		d[teamID] = team
	}
	if name != "" {
		team.Name = name
	}
	return team
}

// removePlayer drops a player id from every roster. Membership is exclusive,
// so this runs before any insert.
func (d Document) removePlayer(playerID string) {
	for _, team := range d {
		kept := team.Players[:0]
		for _, player := range team.Players {
			if player.ID != playerID {
				kept = append(kept, player)
			}
		}
		team.Players = kept
	}
}

func (d Document) sortPlayers() {
	for _, team := range d {
		sort.Slice(team.Players, func(i, j int) bool {
			if team.Players[i].Name != team.Players[j].Name {
				return team.Players[i].Name < team.Players[j].Name
			}
			return team.Players[i].ID < team.Players[j].ID
		})
	}
}

type Aggregator struct {
	client store.Client
}

func NewAggregator(client store.Client) *Aggregator {
	return &Aggregator{client: client}
}

// Rebuild recomputes the whole scoreboard from the teams, players, and answers
// on record and replaces the stored document. Duplicate player records for the
// same player id are resolved by latest created timestamp. Running it twice on
// unchanged data writes an identical document.
func (a *Aggregator) Rebuild(ctx context.Context, gameID string) (Document, error) {
	doc := Document{}
	doc.normalize()

	teams, err := a.client.List(ctx, CollectionTeams, store.Eq("game", gameID))
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		doc.bucket(team.ID, team.String("name"))
	}

	players, err := a.client.List(ctx, CollectionGamePlayers, store.Eq("game", gameID))
	if err != nil {
		return nil, err
	}
	// List order is created-ascending, so the last record seen per player id
	// is the authoritative one.
	latest := map[string]store.Record{}
	order := []string{}
	for _, player := range players {
		id := player.String("player")
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = player
	}
	for _, id := range order {
		record := latest[id]
		team := doc.bucket(record.String("team"), "")
		team.Players = append(team.Players, Player{ID: id, Name: record.String("name")})
	}

	if err := a.applyScores(ctx, gameID, doc); err != nil {
		return nil, err
	}

	doc.sortPlayers()
	if err := a.write(ctx, gameID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// applyScores folds every correct answer into its team's total and into the
// per-round tally keyed by the answer's round sequence number.
func (a *Aggregator) applyScores(ctx context.Context, gameID string, doc Document) error {
	answers, err := a.client.List(ctx, CollectionGameAnswers, store.Eq("game", gameID))
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		return nil
	}

	assignments, err := a.client.List(ctx, CollectionGameQuestions, store.Eq("game", gameID))
	if err != nil {
		return err
	}
	roundOf := map[string]string{}
	for _, assignment := range assignments {
		roundOf[assignment.ID] = assignment.String("round")
	}
	rounds, err := a.client.List(ctx, CollectionRounds, store.Eq("game", gameID))
	if err != nil {
		return err
	}
	sequenceOf := map[string]int{}
	for _, round := range rounds {
		sequenceOf[round.ID] = round.Int("sequence_number")
	}

	for _, answer := range answers {
		if !answer.Bool("is_correct") {
			continue
		}
		team := doc.bucket(answer.String("team"), "")
		team.Score++
		if sequence, ok := sequenceOf[roundOf[answer.String("game_questions_id")]]; ok {
			team.RoundScores[strconv.Itoa(sequence)]++
		}
	}
	return nil
}

// FoldTeamCreated is the incremental handler for a new team: ensure its bucket
// exists in the current document and write the document back. Cheaper than a
// rebuild, but two near-simultaneous folds can each start from the same stale
// base and one write can be lost; Rebuild is the recovery path.
func (a *Aggregator) FoldTeamCreated(ctx context.Context, gameID, teamID, teamName string) (Document, error) {
	doc, err := a.read(ctx, gameID)
	if err != nil {
		return nil, err
	}
	doc.bucket(teamID, teamName)
	if err := a.write(ctx, gameID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FoldPlayerChanged is the incremental handler for a player joining or
// switching teams: remove the player from every roster, insert into the
// target bucket, write back. Same lost-update caveat as FoldTeamCreated.
func (a *Aggregator) FoldPlayerChanged(ctx context.Context, gameID, playerID, playerName, teamID string) (Document, error) {
	doc, err := a.read(ctx, gameID)
	if err != nil {
		return nil, err
	}
	doc.removePlayer(playerID)
	team := doc.bucket(teamID, "")
	team.Players = append(team.Players, Player{ID: playerID, Name: playerName})
	doc.sortPlayers()
	if err := a.write(ctx, gameID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Watch subscribes the aggregator to membership and answer changes and runs a
// full rebuild on every event. Failures are logged and swallowed; the next
// event rebuilds from scratch anyway. Returns a stop function.
func (a *Aggregator) Watch() func() {
	rebuild := func(event store.Event) {
		gameID := event.Record.String("game")
		if gameID == "" {
			return
		}
		if _, err := a.Rebuild(context.Background(), gameID); err != nil {
			log.Printf("scoreboard rebuild failed game_id=%s err=%v", gameID, err)
		}
	}
	stops := []func(){
		a.client.Subscribe(CollectionTeams, rebuild),
		a.client.Subscribe(CollectionGamePlayers, rebuild),
		a.client.Subscribe(CollectionGameAnswers, rebuild),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func (a *Aggregator) read(ctx context.Context, gameID string) (Document, error) {
	game, err := a.client.Get(ctx, CollectionGames, gameID)
	if err != nil {
		return nil, err
	}
	return ParseDocument(game.String("scoreboard"))
}

func (a *Aggregator) write(ctx context.Context, gameID string, doc Document) error {
	_, err := a.client.Update(ctx, CollectionGames, gameID, map[string]any{
		"scoreboard": doc.Encode(),
	})
	return err
}
