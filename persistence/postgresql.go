// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/islandserver/models"
)

// PostgreSQL is the database/sql backend on lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(64) UNIQUE NOT NULL,
            turns INT NOT NULL,
            storm_turn INT NOT NULL,
            weather JSONB NOT NULL,
            water INT NOT NULL,
            wood INT NOT NULL,
            food INT NOT NULL,
            players JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	return err
}

const uniqueViolation = "23505"

func (p *PostgreSQL) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	weather, err := json.Marshal(record.Weather)
	if err != nil {
		return err
	}
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	err = p.db.QueryRowContext(ctx, `
        INSERT INTO game_records (room_id, turns, storm_turn, weather, water, wood, food, players)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`,
		record.RoomID, record.Turns, record.StormTurn, weather,
		record.Water, record.Wood, record.Food, players,
	).Scan(&record.ID, &record.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateRecord
	}
	return err
}

const selectRecord = `
    SELECT id, room_id, turns, storm_turn, weather, water, wood, food, players, created_at
    FROM game_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.GameRecord, error) {
	var (
		record           models.GameRecord
		weather, players []byte
	)
	if err := row.Scan(&record.ID, &record.RoomID, &record.Turns, &record.StormTurn, &weather,
		&record.Water, &record.Wood, &record.Food, &players, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weather, &record.Weather); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(players, &record.Players); err != nil {
		return nil, err
	}
	return &record, nil
}

func (p *PostgreSQL) LoadGameRecord(ctx context.Context, roomID string) (*models.GameRecord, error) {
	record, err := scanRecord(p.db.QueryRowContext(ctx, selectRecord+` WHERE room_id = $1`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return record, err
}

func (p *PostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	rows, err := p.db.QueryContext(ctx, selectRecord+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.GameRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
