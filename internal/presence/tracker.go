// Package presence keeps a per-player liveness record current while a player
// is looking at a game, and classifies those records for the host's online
// panel. Presence is advisory: no write here may block or affect game flow,
// scoring, or team membership, so every failure is logged and dropped.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"trivia-party/internal/store"
)

const CollectionOnline = "online"

const (
	DefaultHeartbeat          = 5 * time.Second
	DefaultVisibilityDebounce = 200 * time.Millisecond
	DefaultStaleAfter         = 15 * time.Second
)

// Identity names the player a tracker reports for. One tracker instance runs
// per player device; the presence record is owned exclusively by that device.
type Identity struct {
	PlayerID   string
	PlayerName string
	GameID     string
	TeamID     string
	TeamName   string
}

type Options struct {
	Heartbeat          time.Duration
	VisibilityDebounce time.Duration
}

type Tracker struct {
	client   store.Client
	identity Identity
	interval time.Duration
	debounce time.Duration

	mu            sync.Mutex
	recordID      string
	visible       bool
	debounceTimer *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

func NewTracker(client store.Client, identity Identity, opts Options) *Tracker {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.VisibilityDebounce <= 0 {
		opts.VisibilityDebounce = DefaultVisibilityDebounce
	}
	return &Tracker{
		client:   client,
		identity: identity,
		interval: opts.Heartbeat,
		debounce: opts.VisibilityDebounce,
		visible:  true,
		done:     make(chan struct{}),
	}
}

// Start upserts the presence record keyed by player id and begins the
// heartbeat. A record left behind by an earlier session is reused, never
// duplicated.
func (t *Tracker) Start(ctx context.Context, visible bool) {
	t.mu.Lock()
	t.visible = visible
	t.mu.Unlock()

	if err := t.upsert(ctx, visible); err != nil {
		log.Printf("presence upsert failed player_id=%s err=%v", t.identity.PlayerID, err)
	}
	go t.heartbeatLoop()
}

func (t *Tracker) upsert(ctx context.Context, active bool) error {
	fields := map[string]any{
		"player":      t.identity.PlayerID,
		"player_name": t.identity.PlayerName,
		"game":        t.identity.GameID,
		"team_id":     t.identity.TeamID,
		"team_name":   t.identity.TeamName,
		"active":      active,
	}

	existing, err := t.client.List(ctx, CollectionOnline, store.Eq("player", t.identity.PlayerID))
	if err != nil {
		return err
	}
	var record store.Record
	if len(existing) > 0 {
		record, err = t.client.Update(ctx, CollectionOnline, existing[0].ID, fields)
	} else {
		record, err = t.client.Create(ctx, CollectionOnline, fields)
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.recordID = record.ID
	t.mu.Unlock()
	return nil
}

// heartbeatLoop touches the record on a fixed interval while the page is
// visible. The touch is what lets viewers tell an active player from a stale
// one; a hidden page stays silent and ages into stale on its own.
func (t *Tracker) heartbeatLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			recordID, visible := t.recordID, t.visible
			t.mu.Unlock()
			if recordID == "" || !visible {
				continue
			}
			if _, err := t.client.Update(context.Background(), CollectionOnline, recordID, map[string]any{
				"active": true,
			}); err != nil {
				log.Printf("presence heartbeat failed player_id=%s err=%v", t.identity.PlayerID, err)
			}
		}
	}
}

// SetVisible records a visibility change after a short debounce, so that
// rapid tab switches collapse into the final state instead of a write per
// toggle.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible = visible
	if t.debounceTimer != nil {
		t.debounceTimer.Stop()
	}
	t.debounceTimer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		recordID, current := t.recordID, t.visible
		t.mu.Unlock()
		if recordID == "" {
			return
		}
		if _, err := t.client.Update(context.Background(), CollectionOnline, recordID, map[string]any{
			"active": current,
		}); err != nil {
			log.Printf("presence visibility write failed player_id=%s err=%v", t.identity.PlayerID, err)
		}
	})
}

// Stop ends the heartbeat and sends one best-effort deactivation write from a
// detached goroutine. The caller does not wait on it and the page may be gone
// before it lands; at most one teardown fires no matter how often Stop is
// called.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		if t.debounceTimer != nil {
			t.debounceTimer.Stop()
		}
		recordID := t.recordID
		t.mu.Unlock()
		if recordID == "" {
			return
		}
		go func() {
			if _, err := t.client.Update(context.Background(), CollectionOnline, recordID, map[string]any{
				"active": false,
			}); err != nil {
				log.Printf("presence teardown write failed player_id=%s err=%v", t.identity.PlayerID, err)
			}
		}()
	})
}
