package server

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"trivia-party/internal/flow"
	"trivia-party/internal/presence"
	"trivia-party/internal/scoreboard"
	"trivia-party/internal/shuffle"
	"trivia-party/internal/store"
)

type createGameRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
}

type buildRoundRequest struct {
	Title      string   `json:"title"`
	Count      int      `json:"count"`
	Categories []string `json:"categories"`
}

type replaceQuestionRequest struct {
	AssignmentID string `json:"assignment_id"`
}

type joinRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	TeamID   string `json:"team_id"`
}

type teamRequest struct {
	Name string `json:"name"`
}

type answerRequest struct {
	TeamID       string `json:"team_id"`
	AssignmentID string `json:"assignment_id"`
	Answer       string `json:"answer"`
}

type presenceRequest struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	TeamID     string `json:"team_id"`
	TeamName   string `json:"team_name"`
	Active     bool   `json:"active"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name, err := validateName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := s.uniqueJoinCode(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}
	game, err := s.client.Create(r.Context(), flow.CollectionGames, map[string]any{
		"name":       name,
		"code":       code,
		"status":     flow.StatusSetup,
		"host":       req.Host,
		"state":      "",
		"scoreboard": "",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}
	s.persistGame(game)
	s.persistEvent(game.ID, "game_created", EventPayload{
		GameID:   game.ID,
		JoinCode: game.String("code"),
	})
	log.Printf("game created game_id=%s join_code=%s", game.ID, game.String("code"))
	writeJSON(w, http.StatusCreated, map[string]string{
		"game_id":   game.ID,
		"join_code": game.String("code"),
	})
}

// uniqueJoinCode retries until the code collides with no game that can still
// be joined. Completed games may keep their code; it is free for reuse.
func (s *Server) uniqueJoinCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code := newJoinCode()
		games, err := s.client.List(ctx, flow.CollectionGames, store.Eq("code", code))
		if err != nil {
			return "", err
		}
		taken := false
		for _, game := range games {
			if game.String("status") != flow.StatusCompleted {
				taken = true
				break
			}
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a join code")
}

func (s *Server) handleGameSubroutes(w http.ResponseWriter, r *http.Request) {
	gameID, action, ok := parseGamePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		switch action {
		case "":
			s.handleGetGame(w, r, gameID)
		case "online":
			s.handleOnline(w, r, gameID)
		case "qr":
			s.handleJoinQR(w, r, gameID)
		case "events":
			s.handleEvents(w, r, gameID)
		default:
			http.NotFound(w, r)
		}
	case http.MethodPost:
		switch action {
		case "ready":
			s.handleReadyGame(w, r, gameID)
		case "rounds":
			s.handleBuildRound(w, r, gameID)
		case "replace-question":
			s.handleReplaceQuestion(w, r, gameID)
		case "join":
			s.handleJoinGame(w, r, gameID)
		case "teams":
			s.handleCreateTeam(w, r, gameID)
		case "start":
			s.handleFlow(w, r, gameID, s.controller.Start, "game_started")
		case "next":
			s.handleFlow(w, r, gameID, s.controller.Next, "game_advanced")
		case "previous":
			s.handleFlow(w, r, gameID, s.controller.Previous, "game_rewound")
		case "answers":
			s.handleSubmitAnswer(w, r, gameID)
		case "presence":
			s.handlePresenceBeacon(w, r, gameID)
		default:
			http.NotFound(w, r)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.gameSnapshot(game))
}

// handleReadyGame flips a setup game to ready once it has something to play.
func (s *Server) handleReadyGame(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if game.String("status") != flow.StatusSetup {
		writeError(w, http.StatusConflict, "game is not in setup")
		return
	}
	rounds, err := s.client.List(r.Context(), flow.CollectionRounds, store.Eq("game", gameID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rounds")
		return
	}
	if len(rounds) == 0 {
		writeError(w, http.StatusConflict, "game has no rounds")
		return
	}
	game, err = s.client.Update(r.Context(), flow.CollectionGames, gameID, map[string]any{
		"status": flow.StatusReady,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update game")
		return
	}
	s.persistGameDoc(game)
	log.Printf("game ready game_id=%s rounds=%d", gameID, len(rounds))
	writeJSON(w, http.StatusOK, s.gameSnapshot(game))
}

// handleBuildRound assigns random unused questions to a new round. Every
// assignment gets a fresh opaque key; a question ever assigned by this host
// stays excluded even after replacement.
func (s *Server) handleBuildRound(w http.ResponseWriter, r *http.Request, gameID string) {
	var req buildRoundRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Count <= 0 {
		req.Count = s.cfg.QuestionsPerRound
	}
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if game.String("status") != flow.StatusSetup {
		writeError(w, http.StatusConflict, "rounds can only be added during setup")
		return
	}
	categories := make([]string, 0, len(req.Categories))
	for _, raw := range req.Categories {
		category, err := validateCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if category != "" {
			categories = append(categories, category)
		}
	}

	candidates, err := s.pickQuestions(r.Context(), game.String("host"), categories, req.Count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load questions")
		return
	}
	if len(candidates) < req.Count {
		writeError(w, http.StatusConflict, "not enough unused questions")
		return
	}

	rounds, err := s.client.List(r.Context(), flow.CollectionRounds, store.Eq("game", gameID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rounds")
		return
	}
	round, err := s.client.Create(r.Context(), flow.CollectionRounds, map[string]any{
		"game":            gameID,
		"sequence_number": len(rounds) + 1,
		"title":           req.Title,
		"question_count":  req.Count,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create round")
		return
	}
	s.persistRound(game, round)
	for i, question := range candidates {
		assignment, err := s.client.Create(r.Context(), flow.CollectionGameQuestions, map[string]any{
			"host":          game.String("host"),
			"game":          gameID,
			"round":         round.ID,
			"question":      question.ID,
			"sequence":      i + 1,
			"key":           newShuffleKey(),
			"category_name": question.String("category"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to assign questions")
			return
		}
		s.persistAssignment(game, round, assignment, question)
	}
	log.Printf("round built game_id=%s round=%d questions=%d", gameID, round.Int("sequence_number"), req.Count)
	writeJSON(w, http.StatusCreated, map[string]any{
		"round_id":        round.ID,
		"sequence_number": round.Int("sequence_number"),
		"question_count":  req.Count,
	})
}

// pickQuestions returns up to count random questions matching the category
// filter, excluding every question this host has ever assigned.
func (s *Server) pickQuestions(ctx context.Context, host string, categories []string, count int) ([]store.Record, error) {
	used := map[string]bool{}
	assignments, err := s.client.List(ctx, flow.CollectionGameQuestions, store.Eq("host", host))
	if err != nil {
		return nil, err
	}
	for _, assignment := range assignments {
		used[assignment.String("question")] = true
	}

	questions, err := s.client.List(ctx, flow.CollectionQuestions)
	if err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	for _, category := range categories {
		wanted[category] = true
	}
	candidates := make([]store.Record, 0, len(questions))
	for _, question := range questions {
		if used[question.ID] {
			continue
		}
		if len(wanted) > 0 && !wanted[question.String("category")] {
			continue
		}
		candidates = append(candidates, question)
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

// handleReplaceQuestion swaps a pending assignment for a fresh question from
// the same category. The old assignment is soft-deleted so the question stays
// on the host's used list.
func (s *Server) handleReplaceQuestion(w http.ResponseWriter, r *http.Request, gameID string) {
	var req replaceQuestionRequest
	if err := readJSON(r.Body, &req); err != nil || req.AssignmentID == "" {
		writeError(w, http.StatusBadRequest, "assignment_id is required")
		return
	}
	assignment, err := s.client.Get(r.Context(), flow.CollectionGameQuestions, req.AssignmentID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if assignment.String("game") != gameID || assignment.Int("sequence") == 0 {
		writeError(w, http.StatusConflict, "assignment is not replaceable")
		return
	}
	category := assignment.String("category_name")
	host := assignment.String("host")
	candidates, err := s.pickQuestions(r.Context(), host, []string{category}, 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load questions")
		return
	}
	if len(candidates) == 0 {
		writeError(w, http.StatusConflict, "no unused questions left in category")
		return
	}

	roundID := assignment.String("round")
	sequence := assignment.Int("sequence")
	if _, err := s.client.Update(r.Context(), flow.CollectionGameQuestions, assignment.ID, map[string]any{
		"game":     "",
		"round":    "",
		"sequence": 0,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retire assignment")
		return
	}
	replacement, err := s.client.Create(r.Context(), flow.CollectionGameQuestions, map[string]any{
		"host":          host,
		"game":          gameID,
		"round":         roundID,
		"question":      candidates[0].ID,
		"sequence":      sequence,
		"key":           newShuffleKey(),
		"category_name": candidates[0].String("category"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create replacement")
		return
	}
	s.persistAssignmentRetired(assignment.ID)
	if game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID); err == nil {
		if round, err := s.client.Get(r.Context(), flow.CollectionRounds, roundID); err == nil {
			s.persistAssignment(game, round, replacement, candidates[0])
		}
	}
	log.Printf("question replaced game_id=%s assignment=%s replacement=%s", gameID, assignment.ID, replacement.ID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"assignment_id": replacement.ID,
	})
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request, gameID string) {
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name, err := validateName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if status := game.String("status"); status == flow.StatusCompleted {
		writeError(w, http.StatusConflict, "game is over")
		return
	}
	// Rejoining or switching teams just appends another record; the
	// scoreboard resolves duplicates by latest created.
	player, err := s.client.Create(r.Context(), scoreboard.CollectionGamePlayers, map[string]any{
		"game":   gameID,
		"player": req.PlayerID,
		"team":   req.TeamID,
		"name":   name,
		"email":  req.Email,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to join game")
		return
	}
	s.persistPlayer(game, player)
	s.persistEvent(gameID, "player_joined", EventPayload{
		Player:   name,
		PlayerID: req.PlayerID,
		TeamID:   req.TeamID,
	})
	log.Printf("player joined game_id=%s player_id=%s team_id=%s", gameID, req.PlayerID, req.TeamID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"game_player_id": player.ID,
	})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request, gameID string) {
	var req teamRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name, err := validateName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	team, err := s.client.Create(r.Context(), scoreboard.CollectionTeams, map[string]any{
		"game": gameID,
		"name": name,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create team")
		return
	}
	s.persistTeam(game, team)
	log.Printf("team created game_id=%s team_id=%s name=%q", gameID, team.ID, name)
	writeJSON(w, http.StatusCreated, map[string]string{
		"team_id": team.ID,
	})
}

// handleFlow runs one controller operation and reports the resulting state.
// The broadcast to viewers rides on the store's change feed, not this handler.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request, gameID string, op func(context.Context, string) (flow.State, error), eventType string) {
	state, err := op(r.Context(), gameID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, flow.ErrGameNotReady),
		errors.Is(err, flow.ErrGameNotStarted),
		errors.Is(err, flow.ErrNoFurtherState):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "transition failed")
		return
	}
	if game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID); err == nil {
		s.persistGameDoc(game)
	}
	payload := EventPayload{Stage: string(state.Stage)}
	if state.Round != nil {
		payload.RoundNumber = state.Round.RoundNumber
	}
	if state.Question != nil {
		payload.QuestionNumber = state.Question.QuestionNumber
	}
	s.persistEvent(gameID, eventType, payload)
	log.Printf("game transition game_id=%s stage=%s", gameID, state.Stage)
	writeJSON(w, http.StatusOK, map[string]any{
		"state": rawDocument(state.Encode()),
	})
}

// handleSubmitAnswer grades and stores a team's answer. One row per
// (question assignment, team); a resubmission overwrites in place. The
// response never discloses correctness, that waits for the host's reveal.
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request, gameID string) {
	var req answerRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeamID == "" || req.AssignmentID == "" {
		writeError(w, http.StatusBadRequest, "team_id and assignment_id are required")
		return
	}
	if len(req.Answer) != 1 || req.Answer < "A" || req.Answer > "D" {
		writeError(w, http.StatusBadRequest, "answer must be A, B, C or D")
		return
	}
	assignment, err := s.client.Get(r.Context(), flow.CollectionGameQuestions, req.AssignmentID)
	if err != nil || assignment.String("game") != gameID {
		http.NotFound(w, r)
		return
	}
	correct := shuffle.IsCorrect(assignment.String("key"), req.Answer)

	fields := map[string]any{
		"game":              gameID,
		"game_questions_id": req.AssignmentID,
		"team":              req.TeamID,
		"answer":            req.Answer,
		"is_correct":        correct,
	}
	existing, err := s.client.List(r.Context(), scoreboard.CollectionGameAnswers,
		store.Eq("game", gameID),
		store.Eq("game_questions_id", req.AssignmentID),
		store.Eq("team", req.TeamID),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load answers")
		return
	}
	var answer store.Record
	if len(existing) > 0 {
		answer, err = s.client.Update(r.Context(), scoreboard.CollectionGameAnswers, existing[0].ID, fields)
	} else {
		answer, err = s.client.Create(r.Context(), scoreboard.CollectionGameAnswers, fields)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store answer")
		return
	}
	s.persistAnswer(gameID, answer)
	s.persistEvent(gameID, "answer_submitted", EventPayload{
		TeamID: req.TeamID,
		Answer: req.Answer,
	})
	log.Printf("answer submitted game_id=%s team_id=%s assignment=%s", gameID, req.TeamID, req.AssignmentID)
	writeJSON(w, http.StatusOK, map[string]string{
		"answer_id": answer.ID,
	})
}

// handlePresenceBeacon is the teardown and visibility write target. It is
// shaped for navigator.sendBeacon: the page never waits on the response, so
// the body is empty and failures only get logged.
func (s *Server) handlePresenceBeacon(w http.ResponseWriter, r *http.Request, gameID string) {
	var req presenceRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}
	fields := map[string]any{
		"player":      req.PlayerID,
		"player_name": req.PlayerName,
		"game":        gameID,
		"team_id":     req.TeamID,
		"team_name":   req.TeamName,
		"active":      req.Active,
	}
	existing, err := s.client.List(r.Context(), presence.CollectionOnline, store.Eq("player", req.PlayerID))
	if err == nil {
		if len(existing) > 0 {
			_, err = s.client.Update(r.Context(), presence.CollectionOnline, existing[0].ID, fields)
		} else {
			_, err = s.client.Create(r.Context(), presence.CollectionOnline, fields)
		}
	}
	if err != nil {
		log.Printf("presence write failed game_id=%s player_id=%s err=%v", gameID, req.PlayerID, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request, gameID string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"players": s.classifyOnline(r.Context(), gameID, time.Now()),
	})
}

func (s *Server) classifyOnline(ctx context.Context, gameID string, now time.Time) []map[string]any {
	entries := make([]map[string]any, 0)
	records, err := s.client.List(ctx, presence.CollectionOnline, store.Eq("game", gameID))
	if err != nil {
		log.Printf("online list failed game_id=%s err=%v", gameID, err)
		return entries
	}
	for _, record := range records {
		entry := presence.ClassifyRecord(record, now, s.staleAfter())
		entries = append(entries, map[string]any{
			"player_id":   entry.PlayerID,
			"player_name": entry.PlayerName,
			"team_id":     entry.TeamID,
			"team_name":   entry.TeamName,
			"status":      entry.Status,
		})
	}
	return entries
}

func (s *Server) handleQuestionCategories(w http.ResponseWriter, r *http.Request) {
	questions, err := s.client.List(r.Context(), flow.CollectionQuestions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load questions")
		return
	}
	seen := map[string]bool{}
	categories := make([]string, 0)
	for _, question := range questions {
		category := question.String("category")
		if category != "" && !seen[category] {
			seen[category] = true
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
	})
}
