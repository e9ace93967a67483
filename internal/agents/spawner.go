// Agent spawning: creates a freshly registered agent and its population.
package agents

import (
	"time"

	"github.com/talgya/tycoon/internal/economy"
)

// SpawnConfig controls the starting state of new agents.
type SpawnConfig struct {
	StartingBalance    int64   `yaml:"starting_balance"`
	StartingPopulation int     `yaml:"starting_population"`
	GrowthRate         float64 `yaml:"growth_rate"`
	LossRate           float64 `yaml:"loss_rate"`
	Rates              Rates   `yaml:"consumption"`
}

// DefaultSpawnConfig returns the stock starting conditions.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		StartingBalance:    10000,
		StartingPopulation: 100,
		GrowthRate:         0.005,
		LossRate:           0.01,
		Rates:              DefaultRates(),
	}
}

// Spawner creates agents for registration.
type Spawner struct {
	cfg SpawnConfig
}

// NewSpawner creates an agent spawner.
func NewSpawner(cfg SpawnConfig) *Spawner {
	return &Spawner{cfg: cfg}
}

// Config returns the spawner's starting conditions.
func (s *Spawner) Config() SpawnConfig {
	return s.cfg
}

// Spawn returns a new mid-tier agent with the starting balance and a fully
// unemployed population.
func (s *Spawner) Spawn(id, name, apiKey, webhookURL string, season int, now time.Time) (*Agent, *Population) {
	a := &Agent{
		ID:         id,
		Name:       name,
		APIKey:     apiKey,
		WebhookURL: webhookURL,
		Balance:    s.cfg.StartingBalance,
		Tier:       economy.TierB,
		Wealth:     s.cfg.StartingBalance,
		Season:     season,
		CreatedAt:  now.UnixMilli(),
	}
	p := NewPopulation(id, s.cfg.StartingPopulation, s.cfg.GrowthRate)
	p.UpdatedAt = now.UnixMilli()
	return a, p
}
