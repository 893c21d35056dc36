package db

import "time"

// GamePlayer rows are append-only: a player rejoining or switching teams adds
// a new row, and readers resolve duplicates per (game, player) by latest
// created timestamp.
type GamePlayer struct {
	ID        uint      `gorm:"primaryKey"`
	RecordID  string    `gorm:"size:32;uniqueIndex;not null"`
	GameID    uint      `gorm:"index;not null"`
	TeamID    *uint     `gorm:"index"`
	PlayerID  string    `gorm:"size:64;index;not null"`
	Name      string    `gorm:"size:64;not null"`
	Email     string    `gorm:"size:120"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
