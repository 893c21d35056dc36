package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"trivia-party/internal/db"
	"trivia-party/internal/store"

	"github.com/jackc/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// The record store is the live source of truth; Postgres is the durable
// mirror behind it. Mirror writes are best effort: a failure is logged and
// the game carries on from the store alone.

func (s *Server) persistGame(game store.Record) {
	if s.db == nil {
		return
	}
	record := db.Game{
		RecordID: game.ID,
		JoinCode: game.String("code"),
		Name:     game.String("name"),
		Status:   game.String("status"),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			log.Printf("persist game skipped duplicate join_code=%s", game.String("code"))
			return
		}
		log.Printf("persist game failed game_id=%s err=%v", game.ID, err)
	}
}

// persistGameDoc mirrors the mutable part of the game record: status plus the
// state and scoreboard JSON documents.
func (s *Server) persistGameDoc(game store.Record) {
	if s.db == nil {
		return
	}
	updates := map[string]any{
		"status": game.String("status"),
	}
	if state := game.String("state"); state != "" {
		updates["state"] = datatypes.JSON(state)
	}
	if doc := game.String("scoreboard"); doc != "" {
		updates["scoreboard"] = datatypes.JSON(doc)
	}
	if err := s.db.Model(&db.Game{}).Where("record_id = ?", game.ID).Updates(updates).Error; err != nil {
		log.Printf("persist game doc failed game_id=%s err=%v", game.ID, err)
	}
}

func (s *Server) persistRound(game, round store.Record) {
	if s.db == nil {
		return
	}
	gameID, err := s.gameDBID(game.ID)
	if err != nil {
		log.Printf("persist round failed game_id=%s err=%v", game.ID, err)
		return
	}
	record := db.Round{
		RecordID:       round.ID,
		GameID:         gameID,
		SequenceNumber: round.Int("sequence_number"),
		Title:          round.String("title"),
		QuestionCount:  round.Int("question_count"),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Printf("persist round failed game_id=%s round=%s err=%v", game.ID, round.ID, err)
	}
}

func (s *Server) persistAssignment(game, round, assignment, question store.Record) {
	if s.db == nil {
		return
	}
	questionRow := db.Question{
		RecordID:   question.ID,
		Category:   question.String("category"),
		Difficulty: question.String("difficulty"),
		Question:   question.String("question"),
		AnswerA:    question.String("answer_a"),
		AnswerB:    question.String("answer_b"),
		AnswerC:    question.String("answer_c"),
		AnswerD:    question.String("answer_d"),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&questionRow).Error; err != nil {
		log.Printf("persist question failed question=%s err=%v", question.ID, err)
		return
	}
	if questionRow.ID == 0 {
		if err := s.db.Where("record_id = ?", question.ID).First(&questionRow).Error; err != nil {
			log.Printf("persist assignment failed assignment=%s err=%v", assignment.ID, err)
			return
		}
	}
	gameID, err := s.gameDBID(game.ID)
	if err != nil {
		log.Printf("persist assignment failed assignment=%s err=%v", assignment.ID, err)
		return
	}
	var roundRow db.Round
	if err := s.db.Where("record_id = ?", round.ID).First(&roundRow).Error; err != nil {
		log.Printf("persist assignment failed assignment=%s err=%v", assignment.ID, err)
		return
	}
	record := db.GameQuestion{
		RecordID:     assignment.ID,
		GameID:       &gameID,
		RoundID:      &roundRow.ID,
		QuestionID:   questionRow.ID,
		HostID:       assignment.String("host"),
		Sequence:     assignment.Int("sequence"),
		Key:          assignment.String("key"),
		CategoryName: assignment.String("category_name"),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Printf("persist assignment failed assignment=%s err=%v", assignment.ID, err)
	}
}

// persistAssignmentRetired detaches a replaced assignment from its game and
// round while keeping the row, so the host's used list survives in the mirror.
func (s *Server) persistAssignmentRetired(assignmentRecordID string) {
	if s.db == nil {
		return
	}
	updates := map[string]any{
		"game_id":  nil,
		"round_id": nil,
		"sequence": 0,
	}
	if err := s.db.Model(&db.GameQuestion{}).Where("record_id = ?", assignmentRecordID).Updates(updates).Error; err != nil {
		log.Printf("persist assignment retire failed assignment=%s err=%v", assignmentRecordID, err)
	}
}

func (s *Server) persistTeam(game, team store.Record) {
	if s.db == nil {
		return
	}
	gameID, err := s.gameDBID(game.ID)
	if err != nil {
		log.Printf("persist team failed game_id=%s err=%v", game.ID, err)
		return
	}
	record := db.Team{
		RecordID: team.ID,
		GameID:   gameID,
		Name:     team.String("name"),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Printf("persist team failed team=%s err=%v", team.ID, err)
	}
}

func (s *Server) persistPlayer(game, player store.Record) {
	if s.db == nil {
		return
	}
	gameID, err := s.gameDBID(game.ID)
	if err != nil {
		log.Printf("persist player failed game_id=%s err=%v", game.ID, err)
		return
	}
	record := db.GamePlayer{
		RecordID: player.ID,
		GameID:   gameID,
		PlayerID: player.String("player"),
		Name:     player.String("name"),
		Email:    player.String("email"),
	}
	if teamRecordID := player.String("team"); teamRecordID != "" {
		var team db.Team
		if err := s.db.Where("record_id = ?", teamRecordID).First(&team).Error; err == nil {
			record.TeamID = &team.ID
		}
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Printf("persist player failed player=%s err=%v", player.ID, err)
	}
}

func (s *Server) persistAnswer(gameRecordID string, answer store.Record) {
	if s.db == nil {
		return
	}
	gameID, err := s.gameDBID(gameRecordID)
	if err != nil {
		log.Printf("persist answer failed game_id=%s err=%v", gameRecordID, err)
		return
	}
	var assignment db.GameQuestion
	if err := s.db.Where("record_id = ?", answer.String("game_questions_id")).First(&assignment).Error; err != nil {
		log.Printf("persist answer failed answer=%s err=%v", answer.ID, err)
		return
	}
	var team db.Team
	if err := s.db.Where("record_id = ?", answer.String("team")).First(&team).Error; err != nil {
		log.Printf("persist answer failed answer=%s err=%v", answer.ID, err)
		return
	}
	record := db.GameAnswer{
		RecordID:       answer.ID,
		GameID:         gameID,
		GameQuestionID: assignment.ID,
		TeamID:         team.ID,
		Answer:         answer.String("answer"),
		IsCorrect:      answer.Bool("is_correct"),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_question_id"}, {Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer", "is_correct", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		log.Printf("persist answer failed answer=%s err=%v", answer.ID, err)
	}
}

func (s *Server) persistEvent(gameRecordID, eventType string, payload EventPayload) {
	if s.db == nil {
		return
	}
	gameID, err := s.gameDBID(gameRecordID)
	if err != nil {
		log.Printf("persist event failed game_id=%s type=%s err=%v", gameRecordID, eventType, err)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("persist event failed game_id=%s type=%s err=%v", gameRecordID, eventType, err)
		return
	}
	event := db.Event{
		GameID:  gameID,
		Type:    eventType,
		Payload: datatypes.JSON(data),
	}
	if err := s.db.Create(&event).Error; err != nil {
		log.Printf("persist event failed game_id=%s type=%s err=%v", gameRecordID, eventType, err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, gameID string) {
	type eventView struct {
		Type      string          `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt time.Time       `json:"created_at"`
	}
	views := make([]eventView, 0)
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": views})
		return
	}
	dbID, err := s.gameDBID(gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	var events []db.Event
	if err := s.db.Where("game_id = ?", dbID).Order("created_at desc").Limit(100).Find(&events).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	for _, event := range events {
		views = append(views, eventView{
			Type:      event.Type,
			Payload:   json.RawMessage(event.Payload),
			CreatedAt: event.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func (s *Server) gameDBID(recordID string) (uint, error) {
	var record db.Game
	if err := s.db.Where("record_id = ?", recordID).First(&record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
