package db

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID         uint           `gorm:"primaryKey"`
	RecordID   string         `gorm:"size:32;uniqueIndex;not null"`
	JoinCode   string         `gorm:"size:12;uniqueIndex;not null"`
	Name       string         `gorm:"size:120;not null"`
	Status     string         `gorm:"size:32;not null"`
	State      datatypes.JSON `gorm:"type:jsonb"`
	Scoreboard datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
	Rounds     []Round
	Teams      []Team
	Players    []GamePlayer
	Events     []Event
}
