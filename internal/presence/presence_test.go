package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"trivia-party/internal/store"
)

func TestClassify(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		active  bool
		updated time.Time
		want    Status
	}{
		{"fresh heartbeat", true, now.Add(-2 * time.Second), StatusActive},
		{"just under the window", true, now.Add(-DefaultStaleAfter + time.Millisecond), StatusActive},
		{"exactly at the window", true, now.Add(-DefaultStaleAfter), StatusStale},
		{"long silent", true, now.Add(-time.Minute), StatusStale},
		{"hidden wins over fresh", false, now, StatusInactive},
		{"hidden wins over stale", false, now.Add(-time.Minute), StatusInactive},
	}
	for _, tc := range cases {
		if got := Classify(tc.active, tc.updated, now, DefaultStaleAfter); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestTrackerUpsertsSingleRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	identity := Identity{PlayerID: "p1", PlayerName: "Ana", GameID: "g1"}

	first := NewTracker(mem, identity, Options{Heartbeat: time.Hour})
	first.Start(ctx, true)
	first.Stop()

	// A later session for the same player reuses the record.
	second := NewTracker(mem, identity, Options{Heartbeat: time.Hour})
	second.Start(ctx, true)
	defer second.Stop()

	records, err := mem.List(ctx, CollectionOnline, store.Eq("player", "p1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one presence record, got %d", len(records))
	}
	if !records[0].Bool("active") || records[0].String("game") != "g1" {
		t.Fatalf("record not refreshed: %#v", records[0].Fields)
	}
}

func TestHeartbeatTouchesRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tracker := NewTracker(mem, Identity{PlayerID: "p1", GameID: "g1"}, Options{
		Heartbeat: 10 * time.Millisecond,
	})
	tracker.Start(ctx, true)
	defer tracker.Stop()

	records, err := mem.List(ctx, CollectionOnline, store.Eq("player", "p1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	before := records[0].Updated

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		records, err = mem.List(ctx, CollectionOnline, store.Eq("player", "p1"))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if records[0].Updated.After(before) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("heartbeat never touched the record")
}

func TestVisibilityDebounceCollapsesToggles(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tracker := NewTracker(mem, Identity{PlayerID: "p1", GameID: "g1"}, Options{
		Heartbeat:          time.Hour,
		VisibilityDebounce: 20 * time.Millisecond,
	})
	tracker.Start(ctx, true)
	defer tracker.Stop()

	// Rapid toggles inside the debounce window; only the final state lands.
	tracker.SetVisible(false)
	tracker.SetVisible(true)
	tracker.SetVisible(false)
	time.Sleep(100 * time.Millisecond)

	records, err := mem.List(ctx, CollectionOnline, store.Eq("player", "p1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].Bool("active") {
		t.Fatalf("final hidden state was not written")
	}
}

func TestStopDeactivatesOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	var mu sync.Mutex
	updates := 0
	unsubscribe := mem.Subscribe(CollectionOnline, func(e store.Event) {
		if e.Action == store.ActionUpdate && !e.Record.Bool("active") {
			mu.Lock()
			updates++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	tracker := NewTracker(mem, Identity{PlayerID: "p1", GameID: "g1"}, Options{Heartbeat: time.Hour})
	tracker.Start(ctx, true)
	tracker.Stop()
	tracker.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		records, err := mem.List(ctx, CollectionOnline, store.Eq("player", "p1"))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !records[0].Bool("active") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	records, err := mem.List(ctx, CollectionOnline, store.Eq("player", "p1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].Bool("active") {
		t.Fatalf("teardown write never landed")
	}
	mu.Lock()
	got := updates
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected exactly one deactivation write, got %d", got)
	}
}
