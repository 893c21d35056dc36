package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trivia-party/internal/flow"

	"github.com/gorilla/websocket"
)

func TestWebsocketPushesGameUpdates(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	seedQuestions(t, mem, "Sports", 1)
	gameID := createGame(t, handler)
	doJSON(t, handler, "POST", "/api/games/"+gameID+"/rounds", map[string]any{"count": 1})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/" + gameID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		payload := map[string]any{}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return payload
	}

	initial := read()
	if initial["status"] != flow.StatusSetup {
		t.Fatalf("initial snapshot status = %v", initial["status"])
	}

	doJSON(t, handler, "POST", "/api/games/"+gameID+"/ready", nil)
	update := read()
	if update["status"] != flow.StatusReady {
		t.Fatalf("expected ready broadcast, got %v", update)
	}
}

func TestWebsocketRejectsUnknownGame(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for unknown game")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 handshake, got %+v", resp)
	}
}
