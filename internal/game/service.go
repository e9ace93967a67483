// Package game implements the request-side operations agents call between
// ticks. Every mutation goes through one conditional store update so that
// concurrent requests and the daily tick never lose a write.
package game

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/config"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/engine"
	"github.com/talgya/tycoon/internal/entropy"
	"github.com/talgya/tycoon/internal/persistence"
	"github.com/talgya/tycoon/internal/world"
)

// Service holds the game's request-side operations.
type Service struct {
	DB      *persistence.DB
	Catalog economy.Catalog
	Game    config.GameConfig
	World   world.GenConfig
	Spawner *agents.Spawner
	Sim     *engine.Simulation

	Rand  entropy.Source
	Clock func() time.Time
	NewID func() string
}

// NewService wires a Service to the running simulation.
func NewService(db *persistence.DB, sim *engine.Simulation, cfg config.Config) *Service {
	return &Service{
		DB:      db,
		Catalog: cfg.Economy,
		Game:    cfg.Game,
		World:   cfg.World,
		Spawner: agents.NewSpawner(cfg.Agents),
		Sim:     sim,
		Rand:    entropy.Crypto{},
		Clock:   time.Now,
		NewID:   uuid.NewString,
	}
}

// SeedWorld creates the land and market on first start. It is safe to call
// on every start.
func (s *Service) SeedWorld(ctx context.Context) error {
	var seed []*economy.MarketPrice
	for _, it := range economy.Items {
		seed = append(seed, economy.NewMarketPrice(it, s.Catalog.BasePrices[it], s.Catalog.InitialVolume))
	}
	if err := s.DB.SeedMarket(ctx, seed); err != nil {
		return translate(err, "market")
	}

	n, err := s.DB.CountParcels(ctx)
	if err != nil {
		return translate(err, "parcels")
	}
	if n > 0 {
		return nil
	}
	parcels := world.Generate(s.World, s.Rand, s.NewID, s.Clock())
	if err := s.DB.InsertParcels(ctx, parcels); err != nil {
		return translate(err, "parcels")
	}
	slog.Info("world seeded", "parcels", len(parcels), "items", len(seed))
	return nil
}

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Registration is returned once, at sign-up. The API key is not shown again.
type Registration struct {
	Agent   *agents.Agent `json:"agent"`
	APIKey  string        `json:"api_key"`
	Starter *world.Parcel `json:"starter_parcel"`
}

// Register creates an agent with the starting balance, a fully unemployed
// population and a random starter parcel.
func (s *Service) Register(ctx context.Context, agentID, name, webhookURL string) (*Registration, error) {
	name = strings.TrimSpace(name)
	switch {
	case !agentIDPattern.MatchString(agentID):
		return nil, invalid("agent_id must be 1-64 letters, digits, '.', '_' or '-'")
	case name == "" || len(name) > 64:
		return nil, invalid("agent_name must be 1-64 characters")
	}
	if webhookURL != "" {
		u, err := url.Parse(webhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid("webhook_url must be an absolute http(s) URL")
		}
	}

	if _, err := s.DB.GetAgent(ctx, agentID); err == nil {
		return nil, newError(CodeConflict, "agent %s already exists", agentID)
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, translate(err, "agent")
	}
	if taken, err := s.DB.AgentNameTaken(ctx, name); err != nil {
		return nil, translate(err, "agent")
	} else if taken {
		return nil, newError(CodeConflict, "agent name %q is taken", name)
	}

	now := s.Clock()
	key := newAPIKey()
	a, p := s.Spawner.Spawn(agentID, name, key, webhookURL, s.season(), now)
	starter := world.StarterParcel(s.Rand, s.NewID(), agentID, s.World.PowerCapacity, now)
	if err := s.DB.CreateAgent(ctx, a, p, starter); err != nil {
		// The unique constraint catches a racing registration.
		return nil, newError(CodeConflict, "agent %s already exists", agentID)
	}

	slog.Info("agent registered", "agent", agentID, "name", name, "parcel", starter.ID)
	return &Registration{Agent: a, APIKey: key, Starter: starter}, nil
}

func newAPIKey() string {
	return "sk_live_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// Login resolves an API key to its agent.
func (s *Service) Login(ctx context.Context, apiKey string) (*agents.Agent, error) {
	if apiKey == "" {
		return nil, newError(CodeUnauthorized, "api key required")
	}
	a, err := s.DB.GetAgentByKey(ctx, apiKey)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, newError(CodeUnauthorized, "invalid api key")
	}
	if err != nil {
		return nil, translate(err, "agent")
	}
	return a, nil
}

// AgentStatus is an agent's full view of itself.
type AgentStatus struct {
	Agent      *agents.Agent       `json:"agent"`
	Population *agents.Population  `json:"population"`
	Parcels    int                 `json:"parcels"`
	Facilities []*economy.Facility `json:"facilities"`
	Loans      []*economy.Loan     `json:"loans"`
	Standing   *agents.Standing    `json:"standing,omitempty"`
	Events     []persistence.Event `json:"recent_events"`
	Date       string              `json:"date"`
}

// Status gathers everything the agent owns.
func (s *Service) Status(ctx context.Context, agentID string) (*AgentStatus, error) {
	a, err := s.DB.GetAgent(ctx, agentID)
	if err != nil {
		return nil, translate(err, "agent "+agentID)
	}
	st := &AgentStatus{Agent: a}
	if st.Population, err = s.DB.GetPopulation(ctx, agentID); err != nil {
		return nil, translate(err, "population")
	}
	parcels, err := s.DB.ListParcels(ctx, persistence.ParcelFilter{OwnerID: agentID})
	if err != nil {
		return nil, translate(err, "parcels")
	}
	st.Parcels = len(parcels)
	if st.Facilities, err = s.DB.FacilitiesByOwner(ctx, agentID); err != nil {
		return nil, translate(err, "facilities")
	}
	if st.Loans, err = s.DB.LoansByAgent(ctx, agentID); err != nil {
		return nil, translate(err, "loans")
	}
	if st.Events, err = s.DB.RecentEvents(ctx, agentID, 20); err != nil {
		return nil, translate(err, "events")
	}
	if s.Sim != nil {
		if standing, ok := s.Sim.Leaders.Lookup(agentID); ok {
			st.Standing = &standing
		}
	}
	st.Date = engine.SimDate(s.day(), s.Game.SeasonDays)
	return st, nil
}

func (s *Service) season() int {
	if s.Sim == nil {
		return 1
	}
	return s.Sim.Season()
}

func (s *Service) day() uint64 {
	if s.Sim != nil {
		if r := s.Sim.LastReport(); r != nil {
			return r.Day
		}
	}
	return 0
}
