package db

import "time"

// GameQuestion binds a question to a round with its play order and shuffle
// key. A replaced assignment keeps its row with round/sequence cleared so the
// question stays on the host's used list.
type GameQuestion struct {
	ID           uint      `gorm:"primaryKey"`
	RecordID     string    `gorm:"size:32;uniqueIndex;not null"`
	GameID       *uint     `gorm:"index"`
	RoundID      *uint     `gorm:"index"`
	QuestionID   uint      `gorm:"index;not null"`
	HostID       string    `gorm:"size:64;index;not null"`
	Sequence     int       `gorm:"not null;default:0"`
	Key          string    `gorm:"size:64;not null"`
	CategoryName string    `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}
