// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/islandserver/models"
)

// Database stores the archive of finished games.
type Database interface {
	SaveGameRecord(ctx context.Context, record *models.GameRecord) error
	LoadGameRecord(ctx context.Context, roomID string) (*models.GameRecord, error)
	RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("game already archived")
)
