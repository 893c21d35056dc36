package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"trivia-party/internal/config"
	"trivia-party/internal/flow"
	"trivia-party/internal/scoreboard"
	"trivia-party/internal/shuffle"
	"trivia-party/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	srv := New(mem, nil, config.Default())
	t.Cleanup(srv.Close)
	return srv, mem
}

func seedQuestions(t *testing.T, mem *store.Memory, category string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		if _, err := mem.Create(context.Background(), flow.CollectionQuestions, map[string]any{
			"category":   category,
			"difficulty": "easy",
			"question":   fmt.Sprintf("%s question %d?", category, i),
			"answer_a":   fmt.Sprintf("right %d", i),
			"answer_b":   fmt.Sprintf("wrong %d-b", i),
			"answer_c":   fmt.Sprintf("wrong %d-c", i),
			"answer_d":   fmt.Sprintf("wrong %d-d", i),
		}); err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func createGame(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/games", map[string]any{
		"name": "Pub Quiz",
		"host": "host-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create game returned %d: %s", rec.Code, rec.Body.String())
	}
	code, _ := body["join_code"].(string)
	if len(code) != 6 {
		t.Fatalf("join code %q is not 6 characters", code)
	}
	gameID, _ := body["game_id"].(string)
	if gameID == "" {
		t.Fatalf("missing game_id in response")
	}
	return gameID
}

func TestGameSetupLifecycle(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	seedQuestions(t, mem, "Geography", 5)
	gameID := createGame(t, handler)

	// Ready without rounds is refused.
	rec, _ := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/ready", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("ready with no rounds returned %d", rec.Code)
	}

	rec, body := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/rounds", map[string]any{
		"title":      "Warm up",
		"count":      3,
		"categories": []string{"Geography"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("build round returned %d: %s", rec.Code, rec.Body.String())
	}
	if body["question_count"].(float64) != 3 {
		t.Fatalf("unexpected round response: %v", body)
	}

	// Only 2 unused Geography questions remain.
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/rounds", map[string]any{
		"count":      3,
		"categories": []string{"Geography"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overdrawn round returned %d", rec.Code)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/ready", nil)
	if rec.Code != http.StatusOK || body["status"] != flow.StatusReady {
		t.Fatalf("ready returned %d status=%v", rec.Code, body["status"])
	}

	// Round building is closed once the game leaves setup.
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/rounds", map[string]any{"count": 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("round after ready returned %d", rec.Code)
	}
}

func TestQuestionReplacementKeepsUsedList(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	ctx := context.Background()
	seedQuestions(t, mem, "History", 4)
	gameID := createGame(t, handler)

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/rounds", map[string]any{
		"count":      2,
		"categories": []string{"History"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("build round returned %d", rec.Code)
	}
	live, err := mem.List(ctx, flow.CollectionGameQuestions, store.Eq("game", gameID))
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	target := live[0]

	rec, body := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/replace-question", map[string]any{
		"assignment_id": target.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("replace returned %d: %s", rec.Code, rec.Body.String())
	}
	replacementID, _ := body["assignment_id"].(string)

	retired, err := mem.Get(ctx, flow.CollectionGameQuestions, target.ID)
	if err != nil {
		t.Fatalf("get retired assignment: %v", err)
	}
	if retired.String("game") != "" || retired.Int("sequence") != 0 {
		t.Fatalf("assignment not soft-deleted: %#v", retired.Fields)
	}
	replacement, err := mem.Get(ctx, flow.CollectionGameQuestions, replacementID)
	if err != nil {
		t.Fatalf("get replacement: %v", err)
	}
	if replacement.Int("sequence") != target.Int("sequence") || replacement.String("round") != target.String("round") {
		t.Fatalf("replacement lost its slot: %#v", replacement.Fields)
	}
	if replacement.String("question") == target.String("question") {
		t.Fatalf("replacement reused the retired question")
	}
	if replacement.String("key") == target.String("key") {
		t.Fatalf("replacement reused the shuffle key")
	}
}

func TestAnswerSubmissionUpserts(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	ctx := context.Background()
	seedQuestions(t, mem, "Science", 2)
	gameID := createGame(t, handler)

	doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/rounds", map[string]any{"count": 2})
	doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/ready", nil)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/teams", map[string]any{"name": "Team Alpha"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create team returned %d", rec.Code)
	}
	teamID := body["team_id"].(string)

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/join", map[string]any{
		"player_id": "p1",
		"name":      "Ana",
		"team_id":   teamID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("join returned %d", rec.Code)
	}

	assignments, err := mem.List(ctx, flow.CollectionGameQuestions, store.Eq("game", gameID), store.Eq("sequence", 1))
	if err != nil || len(assignments) != 1 {
		t.Fatalf("expected one first assignment, got %d err=%v", len(assignments), err)
	}
	assignment := assignments[0]
	correctLabel := shuffle.CorrectLabel(assignment.String("key"))
	wrongLabel := "A"
	if wrongLabel == correctLabel {
		wrongLabel = "B"
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/answers", map[string]any{
		"team_id":       teamID,
		"assignment_id": assignment.ID,
		"answer":        wrongLabel,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer returned %d: %s", rec.Code, rec.Body.String())
	}
	if correct, ok := body["correct"]; ok {
		t.Fatalf("response leaked correctness: %v", correct)
	}
	firstID := body["answer_id"].(string)

	rec, body = doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/answers", map[string]any{
		"team_id":       teamID,
		"assignment_id": assignment.ID,
		"answer":        correctLabel,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resubmit returned %d", rec.Code)
	}
	if body["answer_id"].(string) != firstID {
		t.Fatalf("resubmission created a second row")
	}

	answers, err := mem.List(ctx, scoreboard.CollectionGameAnswers, store.Eq("game", gameID))
	if err != nil || len(answers) != 1 {
		t.Fatalf("expected a single answer row, got %d err=%v", len(answers), err)
	}
	if !answers[0].Bool("is_correct") || answers[0].String("answer") != correctLabel {
		t.Fatalf("grading wrong: %#v", answers[0].Fields)
	}

	// The aggregator saw the answer land and scored it.
	game, err := mem.Get(ctx, flow.CollectionGames, gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	doc, err := scoreboard.ParseDocument(game.String("scoreboard"))
	if err != nil {
		t.Fatalf("parse scoreboard: %v", err)
	}
	if doc[teamID] == nil || doc[teamID].Score != 1 {
		t.Fatalf("scoreboard missed the point: %s", game.String("scoreboard"))
	}
}

func TestFlowEndpoints(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	seedQuestions(t, mem, "Movies", 2)
	gameID := createGame(t, handler)

	// Start before ready is a conflict.
	rec, _ := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("premature start returned %d", rec.Code)
	}

	doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/rounds", map[string]any{"count": 2})
	doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/ready", nil)

	type stateResponse struct {
		State flow.State `json:"state"`
	}
	post := func(action string) (int, flow.State) {
		rec, _ := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/"+action, nil)
		var resp stateResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return rec.Code, resp.State
	}

	code, state := post("start")
	if code != http.StatusOK || state.Stage != flow.StageGameStart {
		t.Fatalf("start returned %d stage=%s", code, state.Stage)
	}
	code, state = post("next")
	if code != http.StatusOK || state.Stage != flow.StageRoundStart {
		t.Fatalf("next returned %d stage=%s", code, state.Stage)
	}
	code, state = post("next")
	if code != http.StatusOK || state.Stage != flow.StageRoundPlay || state.Question == nil {
		t.Fatalf("next returned %d state=%#v", code, state)
	}
	if state.Question.CorrectAnswer != "" {
		t.Fatalf("question arrived revealed")
	}
	code, state = post("previous")
	if code != http.StatusOK || state.Stage != flow.StageRoundStart {
		t.Fatalf("previous returned %d stage=%s", code, state.Stage)
	}
}

func TestPresenceBeaconAndOnline(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	seedQuestions(t, mem, "Music", 1)
	gameID := createGame(t, handler)

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/presence", map[string]any{
		"player_id":   "p1",
		"player_name": "Ana",
		"active":      true,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("presence returned %d", rec.Code)
	}

	rec, body := doJSON(t, handler, http.MethodGet, "/api/games/"+gameID+"/online", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("online returned %d", rec.Code)
	}
	players := body["players"].([]any)
	if len(players) != 1 {
		t.Fatalf("expected 1 online player, got %d", len(players))
	}
	entry := players[0].(map[string]any)
	if entry["status"] != "active" {
		t.Fatalf("expected active, got %v", entry["status"])
	}

	// The teardown beacon flips the same record to inactive.
	doJSON(t, handler, http.MethodPost, "/api/games/"+gameID+"/presence", map[string]any{
		"player_id": "p1",
		"active":    false,
	})
	_, body = doJSON(t, handler, http.MethodGet, "/api/games/"+gameID+"/online", nil)
	players = body["players"].([]any)
	if len(players) != 1 {
		t.Fatalf("beacon duplicated the presence record")
	}
	if players[0].(map[string]any)["status"] != "inactive" {
		t.Fatalf("expected inactive after beacon")
	}
}

func TestQuestionCategories(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Handler()
	seedQuestions(t, mem, "Music", 1)
	seedQuestions(t, mem, "Art", 1)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/questions/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("categories returned %d", rec.Code)
	}
	categories := body["categories"].([]any)
	if len(categories) != 2 || categories[0] != "Art" || categories[1] != "Music" {
		t.Fatalf("unexpected categories: %v", categories)
	}
}
