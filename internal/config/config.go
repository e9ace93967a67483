// Package config loads the server configuration: YAML over built-in
// defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/world"
)

// Config is the full static configuration, loaded once at startup.
type Config struct {
	Server   ServerConfig       `yaml:"server"`
	Database DatabaseConfig     `yaml:"database"`
	Log      LogConfig          `yaml:"log"`
	Game     GameConfig         `yaml:"game"`
	Agents   agents.SpawnConfig `yaml:"agents"`
	World    world.GenConfig    `yaml:"world"`
	Economy  economy.Catalog    `yaml:"economy"`
	Cache    CacheConfig        `yaml:"cache"`
	Webhook  WebhookConfig      `yaml:"webhook"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	AdminKey    string   `yaml:"admin_key"`
	Debug       bool     `yaml:"debug"`
	RatePerSec  float64  `yaml:"rate_per_sec"`
	RateBurst   int      `yaml:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Dialect string `yaml:"dialect"` // sqlite or postgres
	DSN     string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type GameConfig struct {
	MinutesPerDay   int           `yaml:"minutes_per_day"`
	SeasonDays      int           `yaml:"season_days"`
	LeaderboardSize int           `yaml:"leaderboard_size"`
	AuctionLength   time.Duration `yaml:"auction_length"`
	// FireSaleFactor prices parcels seized from bankrupt agents.
	FireSaleFactor float64 `yaml:"fire_sale_factor"`
	// MaxOrderQuantity caps a single purchase or consumption line.
	MaxOrderQuantity float64 `yaml:"max_order_quantity"`
	TickOnStart      bool    `yaml:"tick_on_start"`
}

type CacheConfig struct {
	PriceTTL  time.Duration `yaml:"price_ttl"`
	PriceSize int           `yaml:"price_size"`
}

type WebhookConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	UserAgent   string        `yaml:"user_agent"`
	// A failed batch waits RetryBase × 2^attempts, capped at RetryMax.
	RetryBase time.Duration `yaml:"retry_base"`
	RetryMax  time.Duration `yaml:"retry_max"`
}

// Default returns a configuration that runs out of the box on SQLite.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:       8080,
			RatePerSec: 5,
			RateBurst:  20,
		},
		Database: DatabaseConfig{
			Dialect: "sqlite",
			DSN:     "data/tycoon.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Game: GameConfig{
			MinutesPerDay:    10,
			SeasonDays:       30,
			LeaderboardSize:  100,
			AuctionLength:    time.Hour,
			FireSaleFactor:   0.5,
			MaxOrderQuantity: 1_000_000,
			TickOnStart:      true,
		},
		Agents:  agents.DefaultSpawnConfig(),
		World:   world.DefaultGenConfig(),
		Economy: economy.DefaultCatalog(),
		Cache: CacheConfig{
			PriceTTL:  5 * time.Second,
			PriceSize: 64,
		},
		Webhook: WebhookConfig{
			Enabled:     true,
			Interval:    5 * time.Second,
			Timeout:     5 * time.Second,
			Concurrency: 10,
			BatchSize:   50,
			MaxAttempts: 5,
			UserAgent:   "AgentTycoon-Webhook/1.0",
			RetryBase:   30 * time.Second,
			RetryMax:    30 * time.Minute,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("TYCOON_DB_DIALECT")); v != "" {
		c.Database.Dialect = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TYCOON_DB_DSN")); v != "" {
		c.Database.DSN = v
	} else if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" && c.Database.Dialect == "postgres" {
		c.Database.DSN = v
	}
	if v := os.Getenv("TYCOON_ADMIN_KEY"); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv("TYCOON_MINUTES_PER_DAY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TYCOON_MINUTES_PER_DAY: %w", err)
		}
		c.Game.MinutesPerDay = n
	}
	if v := os.Getenv("TYCOON_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TYCOON_PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, origin)
			}
		}
	}
	return nil
}

// Validate rejects configurations the simulation cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Dialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database dialect %q", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Game.MinutesPerDay <= 0 {
		return errors.New("game.minutes_per_day must be positive")
	}
	if c.Game.SeasonDays <= 0 {
		return errors.New("game.season_days must be positive")
	}
	if !(c.Game.MaxOrderQuantity > 0) {
		return errors.New("game.max_order_quantity must be positive")
	}
	if c.Agents.StartingPopulation < 0 || c.Agents.StartingBalance < 0 {
		return errors.New("agents starting values must not be negative")
	}
	if err := c.Economy.Validate(); err != nil {
		return fmt.Errorf("economy: %w", err)
	}
	return nil
}

// DayLength is the wall-clock duration of one simulated day.
func (c *Config) DayLength() time.Duration {
	return c.Game.DayLength()
}

// DayLength is the wall-clock duration of one simulated day.
func (g GameConfig) DayLength() time.Duration {
	return time.Duration(g.MinutesPerDay) * time.Minute
}

// SlogLevel maps the configured level name.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
