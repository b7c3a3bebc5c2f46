package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/islandserver/models"
)

// Memory keeps the archive in process. It is used when no database is configured.
type Memory struct {
	records map[string]models.GameRecord
	nextID  uint
	mu      sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.GameRecord)}
}

func (m *Memory) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.RoomID]; exists {
		return ErrDuplicateRecord
	}
	m.nextID++
	record.ID = m.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records[record.RoomID] = *record
	return nil
}

func (m *Memory) LoadGameRecord(ctx context.Context, roomID string) (*models.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[roomID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &record, nil
}

func (m *Memory) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]models.GameRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	// insertion order breaks ties between equal timestamps
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *Memory) Close() error {
	return nil
}
