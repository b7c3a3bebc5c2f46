package persistence

import (
	"github.com/wfunc/islandserver/config"
)

// Open connects the configured archive backend, or an in-memory one when the
// database is disabled.
func Open(cfg config.DatabaseConfig) (Database, error) {
	if !cfg.Enabled {
		return NewMemory(), nil
	}

	pg := cfg.Postgres
	switch cfg.Driver {
	case "sql":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, config.ErrUnknownDriver
	}
}
