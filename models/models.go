// models/models.go
package models

import (
	"time"
)

// GameRecord is the archived outcome of one finished game.
type GameRecord struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	RoomID    string            `gorm:"uniqueIndex;size:64;not null" json:"room_id"`
	Turns     int               `gorm:"not null" json:"turns"`
	StormTurn int               `gorm:"not null" json:"storm_turn"`
	Weather   []int             `gorm:"serializer:json;type:jsonb" json:"weather"`
	Water     int               `gorm:"not null" json:"water"`
	Wood      int               `gorm:"not null" json:"wood"`
	Food      int               `gorm:"not null" json:"food"`
	Players   map[string]string `gorm:"serializer:json;type:jsonb" json:"players"` // player id -> name
	CreatedAt time.Time         `json:"created_at"`
}

// TableName 指定表名
func (GameRecord) TableName() string {
	return "game_records"
}
