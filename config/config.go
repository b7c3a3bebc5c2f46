package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// GameConfig holds the rules a room is created with.
type GameConfig struct {
	MinPlayers     int           `mapstructure:"min_players"`
	MaxPlayers     int           `mapstructure:"max_players"`
	LobbyCountdown time.Duration `mapstructure:"lobby_countdown"`
	TurnTimeout    time.Duration `mapstructure:"turn_timeout"` // 0 disables the turn timer
	TickInterval   time.Duration `mapstructure:"tick_interval"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Driver   string         `mapstructure:"driver"` // "gorm" or "sql"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")

	v.SetDefault("game.min_players", 3)
	v.SetDefault("game.max_players", 12)
	v.SetDefault("game.lobby_countdown", 30*time.Second)
	v.SetDefault("game.turn_timeout", 2*time.Minute)
	v.SetDefault("game.tick_interval", time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	// empty defaults register the keys so DATABASE_POSTGRES_* reach Unmarshal
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. A missing file is fine, defaults and
// environment variables (SERVER_HTTP_ADDRESS, GAME_MAX_PLAYERS, ...) still apply.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return config, config.Validate()
}

var (
	ErrInvalidPlayerBounds = errors.New("game.min_players must be >= 1 and <= game.max_players")
	ErrTooManyPlayers      = errors.New("game.max_players cannot exceed 256")
	ErrUnknownDriver       = errors.New("database.driver must be gorm or sql")
)

// Validate checks the values LoadConfig cannot express as defaults.
func (c *Config) Validate() error {
	if c.Game.MinPlayers < 1 || c.Game.MinPlayers > c.Game.MaxPlayers {
		return ErrInvalidPlayerBounds
	}
	// player ids are a single byte on the wire
	if c.Game.MaxPlayers > 256 {
		return ErrTooManyPlayers
	}
	if c.Database.Enabled && c.Database.Driver != "gorm" && c.Database.Driver != "sql" {
		return ErrUnknownDriver
	}
	return nil
}
