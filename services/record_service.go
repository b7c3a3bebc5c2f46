package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/models"
	"github.com/wfunc/islandserver/persistence"
)

// DefaultRecentLimit bounds RecentGames when the caller asks for nothing specific.
const DefaultRecentLimit = 20

// RecordService archives finished games.
type RecordService struct {
	db persistence.Database
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

// Archive stores the outcome of a finished game.
func (s *RecordService) Archive(ctx context.Context, roomID string, summary game.Summary) error {
	record := NewGameRecord(roomID, summary)
	if err := s.db.SaveGameRecord(ctx, record); err != nil {
		return fmt.Errorf("archive room %s: %w", roomID, err)
	}
	return nil
}

// Game returns the archived record of a room.
func (s *RecordService) Game(ctx context.Context, roomID string) (*models.GameRecord, error) {
	return s.db.LoadGameRecord(ctx, roomID)
}

// RecentGames lists the newest archived games.
func (s *RecordService) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.db.RecentGameRecords(ctx, limit)
}

// NewGameRecord flattens a game summary into its archive row.
func NewGameRecord(roomID string, summary game.Summary) *models.GameRecord {
	weather := make([]int, len(summary.Schedule))
	for i, code := range summary.Schedule {
		weather[i] = int(code)
	}
	players := make(map[string]string, len(summary.Board.Players))
	for id, p := range summary.Board.Players {
		players[strconv.Itoa(int(id))] = p.Name
	}

	return &models.GameRecord{
		RoomID:    roomID,
		Turns:     int(summary.Board.TurnCount) + 1,
		StormTurn: summary.StormTurn,
		Weather:   weather,
		Water:     int(summary.Board.CurrentWater),
		Wood:      int(summary.Board.CurrentWood),
		Food:      int(summary.Board.CurrentFood),
		Players:   players,
	}
}
