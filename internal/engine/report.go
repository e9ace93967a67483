package engine

import (
	"sync"
	"time"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
)

// Report summarizes one simulated day.
type Report struct {
	Day       uint64        `json:"day"`
	Season    int           `json:"season"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Facilities      int                      `json:"facilities"`
	Produced        map[economy.Item]float64 `json:"produced"`
	Revenue         int64                    `json:"revenue"`
	Wages           int64                    `json:"wages"`
	Consumption     int64                    `json:"consumption"`
	Layoffs         int                      `json:"layoffs"`
	PopulationDelta int                      `json:"population_delta"`
	LoansRepaid     int                      `json:"loans_repaid"`
	LoansDefaulted  int                      `json:"loans_defaulted"`
	Completed       int                      `json:"completed"`
	AuctionsSettled int                      `json:"auctions_settled"`
	Bankruptcies    int                      `json:"bankruptcies"`
	EventsFlushed   int                      `json:"events_flushed"`
	Prices          map[economy.Item]int64   `json:"prices"`
	Top             []agents.Standing        `json:"top,omitempty"`
	Failed          []string                 `json:"failed,omitempty"`

	mu     sync.Mutex
	ledger map[string]*Ledger
}

// Ledger is one agent's money movements for the day.
type Ledger struct {
	Revenue         int64 `json:"revenue"`
	OperatingCost   int64 `json:"operating_cost"`
	Wages           int64 `json:"wages"`
	Consumption     int64 `json:"consumption"`
	PopulationDelta int   `json:"population_delta"`
}

// Net is revenue minus every cost.
func (l *Ledger) Net() int64 {
	return l.Revenue - l.OperatingCost - l.Wages - l.Consumption
}

func newReport(day uint64, season int, now time.Time) *Report {
	return &Report{
		Day:       day,
		Season:    season,
		StartedAt: now,
		Produced:  make(map[economy.Item]float64),
		Prices:    make(map[economy.Item]int64),
		ledger:    make(map[string]*Ledger),
	}
}

// Now is the simulated instant the day runs at.
func (r *Report) Now() time.Time {
	return r.StartedAt
}

// Ledger returns the agent's ledger, creating it on first use.
func (r *Report) Ledger(agentID string) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledger[agentID]
	if !ok {
		l = &Ledger{}
		r.ledger[agentID] = l
	}
	return l
}

// Ledgers returns a copy of every agent ledger recorded today.
func (r *Report) Ledgers() map[string]Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Ledger, len(r.ledger))
	for id, l := range r.ledger {
		out[id] = *l
	}
	return out
}
