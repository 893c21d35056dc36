package db

import "time"

type Round struct {
	ID             uint      `gorm:"primaryKey"`
	RecordID       string    `gorm:"size:32;uniqueIndex;not null"`
	GameID         uint      `gorm:"index;not null;uniqueIndex:idx_rounds_game_sequence"`
	SequenceNumber int       `gorm:"not null;uniqueIndex:idx_rounds_game_sequence"`
	Title          string    `gorm:"size:120"`
	QuestionCount  int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
	Assignments    []GameQuestion
}
