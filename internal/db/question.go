package db

import "time"

type Question struct {
	ID         uint      `gorm:"primaryKey"`
	RecordID   string    `gorm:"size:32;uniqueIndex;not null"`
	Category   string    `gorm:"size:64;index;not null"`
	Difficulty string    `gorm:"size:32"`
	Question   string    `gorm:"size:500;not null"`
	AnswerA    string    `gorm:"size:280;not null"`
	AnswerB    string    `gorm:"size:280;not null"`
	AnswerC    string    `gorm:"size:280;not null"`
	AnswerD    string    `gorm:"size:280;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
