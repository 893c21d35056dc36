package db

import "time"

type GameAnswer struct {
	ID             uint      `gorm:"primaryKey"`
	RecordID       string    `gorm:"size:32;uniqueIndex;not null"`
	GameID         uint      `gorm:"index;not null"`
	GameQuestionID uint      `gorm:"index;not null;uniqueIndex:idx_answers_question_team"`
	TeamID         uint      `gorm:"index;not null;uniqueIndex:idx_answers_question_team"`
	Answer         string    `gorm:"size:4;not null"`
	IsCorrect      bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
