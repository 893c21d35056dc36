package store

import (
	"context"
	"testing"
)

func TestMemoryCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	created, err := mem.Create(ctx, "games", map[string]any{"code": "ABC123", "status": "setup"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	updated, err := mem.Update(ctx, "games", created.ID, map[string]any{"status": "ready"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.String("status") != "ready" || updated.String("code") != "ABC123" {
		t.Fatalf("update did not merge fields: %#v", updated.Fields)
	}
	if !updated.Updated.After(created.Updated) && !updated.Updated.Equal(created.Updated) {
		t.Fatalf("updated timestamp went backwards")
	}

	got, err := mem.Get(ctx, "games", created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.String("status") != "ready" {
		t.Fatalf("last write lost: %#v", got.Fields)
	}

	if _, err := mem.Get(ctx, "games", "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListFilter(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	for i, game := range []string{"g1", "g1", "g2"} {
		if _, err := mem.Create(ctx, "game_questions", map[string]any{
			"game":     game,
			"round":    "r1",
			"sequence": i,
		}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	records, err := mem.List(ctx, "game_questions", Eq("game", "g1"), Gt("sequence", 0))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 || records[0].Int("sequence") != 1 {
		t.Fatalf("filter returned %d records: %#v", len(records), records)
	}

	records, err = mem.List(ctx, "game_questions", NotEmpty("round"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records with round set, got %d", len(records))
	}
}

func TestMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	var events []Event
	unsubscribe := mem.Subscribe("teams", func(e Event) {
		events = append(events, e)
	})

	created, err := mem.Create(ctx, "teams", map[string]any{"name": "Team Alpha"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := mem.Update(ctx, "teams", created.ID, map[string]any{"name": "Team Beta"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != ActionCreate || events[1].Action != ActionUpdate {
		t.Fatalf("unexpected actions: %v %v", events[0].Action, events[1].Action)
	}
	if events[1].Record.String("name") != "Team Beta" {
		t.Fatalf("event carried stale record: %#v", events[1].Record.Fields)
	}

	unsubscribe()
	if _, err := mem.Create(ctx, "teams", map[string]any{"name": "Team Gamma"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("subscriber fired after unsubscribe")
	}
}

func TestMemoryRecordIsolation(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	created, err := mem.Create(ctx, "games", map[string]any{"status": "setup"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	created.Fields["status"] = "mutated"

	got, err := mem.Get(ctx, "games", created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.String("status") != "setup" {
		t.Fatalf("caller mutation leaked into store")
	}
}
