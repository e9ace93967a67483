// Simulation ties together the economic systems and runs them each day.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/config"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

// Meta keys persisted in world_meta.
const (
	MetaDay    = "day"
	MetaSeason = "season"
)

// Phase is one step of a simulated day. Later phases read state written by
// earlier ones.
type Phase struct {
	Name string
	Run  func(ctx context.Context, r *Report) error
}

// Observer receives per-phase and per-day measurements.
type Observer interface {
	ObservePhase(name string, d time.Duration, err error)
	ObserveDay(r *Report)
}

// Simulation holds the game services and wires the daily phases together.
type Simulation struct {
	DB      *persistence.DB
	Catalog economy.Catalog
	Rates   agents.Rates
	Game    config.GameConfig

	LossRate float64
	Clock    func() time.Time
	NewID    func() string

	Leaders  *Leaderboard
	Observer Observer
	// OnReport is called with every finished day, e.g. to feed live streams.
	OnReport func(r *Report)

	events eventBuffer
	phases []Phase

	mu         sync.RWMutex
	season     int
	lastReport *Report
}

// NewSimulation creates a Simulation from loaded configuration.
func NewSimulation(db *persistence.DB, cfg config.Config) *Simulation {
	s := &Simulation{
		DB:       db,
		Catalog:  cfg.Economy,
		Rates:    cfg.Agents.Rates,
		Game:     cfg.Game,
		LossRate: cfg.Agents.LossRate,
		Clock:    time.Now,
		NewID:    uuid.NewString,
		Leaders:  NewLeaderboard(cfg.DayLength() + cfg.DayLength()/2),
		season:   1,
	}
	s.phases = []Phase{
		{"production", s.settleProduction},
		{"wages", s.payWages},
		{"consumption", s.consume},
		{"market", s.updateMarket},
		{"loan_interest", s.accrueInterest},
		{"loan_overdue", s.checkOverdue},
		{"population", s.advancePopulation},
		{"construction", s.completeConstruction},
		{"auctions", s.processAuctions},
		{"leaderboard", s.rankAgents},
		{"season", s.rollSeason},
		{"events", s.flushEvents},
	}
	return s
}

// Restore loads the persisted calendar and returns the last completed day.
func (s *Simulation) Restore(ctx context.Context) (uint64, error) {
	var day uint64
	if v, err := s.DB.GetMeta(ctx, MetaDay); err == nil {
		day, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, err := s.DB.GetMeta(ctx, MetaSeason); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.setSeason(n)
		}
	}
	if err := s.refreshLeaderboard(ctx); err != nil {
		return day, fmt.Errorf("rank agents: %w", err)
	}
	return day, nil
}

// Season returns the current season number.
func (s *Simulation) Season() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.season
}

func (s *Simulation) setSeason(n int) {
	s.mu.Lock()
	s.season = n
	s.mu.Unlock()
}

// LastReport returns the most recent day's report, or nil before the first.
func (s *Simulation) LastReport() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// TickDay runs every phase for one simulated day. A failing phase (error or
// panic) is logged and recorded; the remaining phases still run. There is
// no per-phase timeout, so a phase that blocks holds up the rest of the day
// and the next fire.
func (s *Simulation) TickDay(ctx context.Context, day uint64) *Report {
	r := newReport(day, s.Season(), s.Clock())

	for _, p := range s.phases {
		s.runPhase(ctx, p, r)
	}
	r.Duration = time.Since(r.StartedAt)

	if err := s.DB.SaveMeta(ctx, MetaDay, strconv.FormatUint(day, 10)); err != nil {
		slog.Error("save day", "day", day, "error", err)
	}

	slog.Info("daily report",
		"day", day,
		"time", SimDate(day, s.Game.SeasonDays),
		"facilities", r.Facilities,
		"revenue", r.Revenue,
		"wages", r.Wages,
		"consumption", r.Consumption,
		"layoffs", r.Layoffs,
		"population_delta", r.PopulationDelta,
		"loans_repaid", r.LoansRepaid,
		"loans_defaulted", r.LoansDefaulted,
		"completed", r.Completed,
		"auctions", r.AuctionsSettled,
		"events", r.EventsFlushed,
		"failed", len(r.Failed),
		"duration", r.Duration,
	)

	s.mu.Lock()
	s.lastReport = r
	s.mu.Unlock()
	if s.Observer != nil {
		s.Observer.ObserveDay(r)
	}
	if s.OnReport != nil {
		s.OnReport(r)
	}
	return r
}

func (s *Simulation) runPhase(ctx context.Context, p Phase, r *Report) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				slog.Debug("phase panic stack", "phase", p.Name, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", v)
			}
		}()
		return p.Run(ctx, r)
	}()
	if err != nil {
		slog.Error("tick phase failed", "phase", p.Name, "day", r.Day, "error", err)
		r.Failed = append(r.Failed, p.Name)
	}
	if s.Observer != nil {
		s.Observer.ObservePhase(p.Name, time.Since(start), err)
	}
}

// emit queues an event for one agent.
func (s *Simulation) emit(agentID, typ string, data any) {
	s.events.add(pendingEvent{AgentID: agentID, Type: typ, Data: data})
}

// broadcast queues an event for every agent.
func (s *Simulation) broadcast(typ string, data any) {
	s.events.add(pendingEvent{Type: typ, Data: data})
}
