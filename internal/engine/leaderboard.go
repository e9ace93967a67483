// Ranking cache: standings are recomputed once per day and every read is
// served from the last snapshot.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/talgya/tycoon/internal/agents"
)

// Leaderboard holds the latest standings snapshot.
type Leaderboard struct {
	TTL time.Duration

	mu         sync.RWMutex
	standings  []agents.Standing
	index      map[string]int
	computedAt time.Time
}

// NewLeaderboard returns an empty leaderboard whose snapshot is considered
// fresh for ttl.
func NewLeaderboard(ttl time.Duration) *Leaderboard {
	return &Leaderboard{TTL: ttl, index: make(map[string]int)}
}

// Rank orders agents by wealth, highest first. Equal wealth keeps the input
// order. Ranks run 1..N with no gaps.
func Rank(list []*agents.Agent) []agents.Standing {
	sorted := slices.Clone(list)
	slices.SortStableFunc(sorted, func(a, b *agents.Agent) int {
		switch {
		case a.Wealth > b.Wealth:
			return -1
		case a.Wealth < b.Wealth:
			return 1
		}
		return 0
	})
	out := make([]agents.Standing, len(sorted))
	for i, a := range sorted {
		out[i] = agents.Standing{
			Rank:    i + 1,
			AgentID: a.ID,
			Name:    a.Name,
			Wealth:  a.Wealth,
			Tier:    a.Tier,
		}
	}
	return out
}

// Set replaces the snapshot.
func (l *Leaderboard) Set(standings []agents.Standing, at time.Time) {
	index := make(map[string]int, len(standings))
	for i, s := range standings {
		index[s.AgentID] = i
	}
	l.mu.Lock()
	l.standings = standings
	l.index = index
	l.computedAt = at
	l.mu.Unlock()
}

// Top returns up to n standings from the snapshot; n <= 0 returns all.
func (l *Leaderboard) Top(n int) []agents.Standing {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.standings) {
		n = len(l.standings)
	}
	return slices.Clone(l.standings[:n])
}

// Lookup returns one agent's standing.
func (l *Leaderboard) Lookup(agentID string) (agents.Standing, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[agentID]
	if !ok {
		return agents.Standing{}, false
	}
	return l.standings[i], true
}

// ComputedAt is when the snapshot was taken; zero before the first.
func (l *Leaderboard) ComputedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.computedAt
}

// Stale reports whether the snapshot has outlived its TTL. Reads still serve
// it; callers only surface the flag.
func (l *Leaderboard) Stale(now time.Time) bool {
	at := l.ComputedAt()
	return at.IsZero() || now.Sub(at) > l.TTL
}

func (s *Simulation) rankAgents(ctx context.Context, r *Report) error {
	standings, err := s.computeStandings(ctx)
	if err != nil {
		return err
	}
	s.Leaders.Set(standings, r.Now())

	r.Top = slices.Clone(standings[:min(len(standings), 10)])
	if len(standings) > 0 {
		s.broadcast(EventLeaderboard, map[string]any{"top": r.Top})
	}
	return nil
}

// refreshLeaderboard rebuilds the snapshot outside a day, at startup.
func (s *Simulation) refreshLeaderboard(ctx context.Context) error {
	standings, err := s.computeStandings(ctx)
	if err != nil {
		return err
	}
	s.Leaders.Set(standings, s.Clock())
	return nil
}

// computeStandings values every agent as balance plus the base price of
// owned land plus the build cost of each facility level, stores the figure
// and ranks the result.
func (s *Simulation) computeStandings(ctx context.Context) ([]agents.Standing, error) {
	list, err := s.DB.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	parcels, err := s.DB.OwnedParcels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	facilities, err := s.DB.ListFacilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}

	assets := make(map[string]int64, len(list))
	for _, p := range parcels {
		assets[*p.OwnerID] += p.BasePrice
	}
	for _, f := range facilities {
		assets[f.OwnerID] += s.Catalog.Facility(f.Type).BuildCost * int64(f.Level)
	}

	for _, a := range list {
		wealth := a.Balance + assets[a.ID]
		if wealth != a.Wealth {
			if err := s.DB.SetWealth(ctx, a.ID, wealth); err != nil {
				slog.Warn("store wealth", "agent", a.ID, "error", err)
			}
		}
		a.Wealth = wealth
	}
	return Rank(list), nil
}
