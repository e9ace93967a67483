package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/tycoon/internal/economy"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.DayLength() != 10*time.Minute {
		t.Fatalf("day length = %v, want 10m", cfg.DayLength())
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	t.Setenv("TYCOON_DB_DIALECT", "")
	t.Setenv("TYCOON_DB_DSN", "")
	t.Setenv("TYCOON_MINUTES_PER_DAY", "")

	path := filepath.Join(t.TempDir(), "tycoon.yaml")
	raw := `
game:
  minutes_per_day: 2
  auction_length: 30m
agents:
  starting_balance: 5000
economy:
  loans:
    short:
      max_amount: 9000
      daily_rate: 0.004
      max_days: 5
cache:
  price_ttl: 1s
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Game.MinutesPerDay != 2 || cfg.Game.AuctionLength != 30*time.Minute {
		t.Fatalf("game section not applied: %+v", cfg.Game)
	}
	if cfg.Agents.StartingBalance != 5000 || cfg.Agents.StartingPopulation != 100 {
		t.Fatalf("agents section not merged over defaults: %+v", cfg.Agents)
	}
	if cfg.Economy.Loans[economy.LoanShort].MaxAmount != 9000 {
		t.Fatalf("loan override missing: %+v", cfg.Economy.Loans[economy.LoanShort])
	}
	if _, ok := cfg.Economy.Loans[economy.LoanLong]; !ok {
		t.Fatalf("partial loan table dropped default rows")
	}
	if cfg.Cache.PriceTTL != time.Second {
		t.Fatalf("price ttl = %v, want 1s", cfg.Cache.PriceTTL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TYCOON_DB_DIALECT", "postgres")
	t.Setenv("TYCOON_DB_DSN", "postgres://localhost/tycoon")
	t.Setenv("TYCOON_MINUTES_PER_DAY", "1")
	t.Setenv("TYCOON_ADMIN_KEY", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Dialect != "postgres" || cfg.Database.DSN != "postgres://localhost/tycoon" {
		t.Fatalf("database env not applied: %+v", cfg.Database)
	}
	if cfg.Game.MinutesPerDay != 1 || cfg.Server.AdminKey != "secret" {
		t.Fatalf("env overrides missing: %+v %+v", cfg.Game, cfg.Server)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Setenv("TYCOON_DB_DIALECT", "bogus")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "unsupported database dialect") {
		t.Fatalf("expected dialect error, got %v", err)
	}

	t.Setenv("TYCOON_DB_DIALECT", "")
	t.Setenv("TYCOON_MINUTES_PER_DAY", "abc")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected parse error for minutes per day")
	}

	cfg := Default()
	delete(cfg.Economy.BasePrices, economy.ItemCar)
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "car") {
		t.Fatalf("expected missing price error, got %v", err)
	}

	cfg = Default()
	cfg.Game.MaxOrderQuantity = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "max_order_quantity") {
		t.Fatalf("expected order cap error, got %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	if (LogConfig{Level: "DEBUG"}).SlogLevel() != slog.LevelDebug {
		t.Fatalf("debug level not parsed")
	}
	if (LogConfig{Level: ""}).SlogLevel() != slog.LevelInfo {
		t.Fatalf("empty level should default to info")
	}
}
