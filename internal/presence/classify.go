package presence

import (
	"time"

	"trivia-party/internal/store"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusStale    Status = "stale"
	StatusInactive Status = "inactive"
)

// Classify derives a viewer-facing status from the stored flag and heartbeat
// age. It is computed at render time, never persisted: an inactive flag wins
// outright, then a heartbeat at least staleAfter old means stale.
func Classify(active bool, updated, now time.Time, staleAfter time.Duration) Status {
	if !active {
		return StatusInactive
	}
	if now.Sub(updated) >= staleAfter {
		return StatusStale
	}
	return StatusActive
}

// Entry is one row of the host's online-players panel.
type Entry struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	TeamID     string `json:"team_id"`
	TeamName   string `json:"team_name"`
	Status     Status `json:"status"`
}

// ClassifyRecord maps a presence record to a panel entry.
func ClassifyRecord(record store.Record, now time.Time, staleAfter time.Duration) Entry {
	return Entry{
		PlayerID:   record.String("player"),
		PlayerName: record.String("player_name"),
		TeamID:     record.String("team_id"),
		TeamName:   record.String("team_name"),
		Status:     Classify(record.Bool("active"), record.Updated, now, staleAfter),
	}
}
