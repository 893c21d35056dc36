package db

import "time"

type Team struct {
	ID        uint      `gorm:"primaryKey"`
	RecordID  string    `gorm:"size:32;uniqueIndex;not null"`
	GameID    uint      `gorm:"index;not null"`
	Name      string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Players   []GamePlayer
	Answers   []GameAnswer
}
