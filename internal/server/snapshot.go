package server

import (
	"encoding/json"

	"trivia-party/internal/store"
)

// gameSnapshot is the payload every viewer re-derives its rendering from.
// The state and scoreboard documents are embedded verbatim; they are already
// JSON and re-encoding them would only reorder keys.
func (s *Server) gameSnapshot(game store.Record) map[string]any {
	return map[string]any{
		"game_id":    game.ID,
		"join_code":  game.String("code"),
		"name":       game.String("name"),
		"status":     game.String("status"),
		"state":      rawDocument(game.String("state")),
		"scoreboard": rawDocument(game.String("scoreboard")),
	}
}

func rawDocument(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
