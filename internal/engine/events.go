// Outbound events: buffered during the day, written to the outbox at the end.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/tycoon/internal/persistence"
)

// Event types emitted by the daily phases.
const (
	EventDailyReport      = "daily_report"
	EventWagesUnpaid      = "wages_unpaid"
	EventShortage         = "consumption_shortage"
	EventPricesChanged    = "prices_changed"
	EventLoanRepaid       = "loan_repaid"
	EventLoanDefaulted    = "loan_defaulted"
	EventPopulation       = "population_changed"
	EventConstructionDone = "facility_completed"
	EventUpgradeDone      = "facility_upgraded"
	EventAuctionWon       = "auction_won"
	EventAuctionSold      = "auction_sold"
	EventAuctionExpired   = "auction_expired"
	EventBankrupt         = "bankrupt"
	EventLeaderboard      = "leaderboard_updated"
	EventSeasonEnded      = "season_ended"
)

// pendingEvent is addressed to one agent, or to everyone when AgentID is empty.
type pendingEvent struct {
	AgentID string
	Type    string
	Data    any
}

type eventBuffer struct {
	mu     sync.Mutex
	events []pendingEvent
}

func (b *eventBuffer) add(e pendingEvent) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *eventBuffer) drain() []pendingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// flushEvents adds each agent's daily ledger, fans broadcasts out to every
// agent and appends the lot to the outbox.
func (s *Simulation) flushEvents(ctx context.Context, r *Report) error {
	for agentID, l := range r.Ledgers() {
		s.emit(agentID, EventDailyReport, struct {
			Ledger
			Net int64 `json:"net"`
		}{l, l.Net()})
	}

	pending := s.events.drain()
	if len(pending) == 0 {
		return nil
	}

	list, err := s.DB.ListAgents(ctx)
	if err != nil {
		// Keep the events for the next day rather than lose them.
		for _, e := range pending {
			s.events.add(e)
		}
		return fmt.Errorf("list agents: %w", err)
	}

	now := r.Now().UnixMilli()
	var out []persistence.Event
	for _, e := range pending {
		payload, err := json.Marshal(e.Data)
		if err != nil {
			slog.Error("dropping unencodable event", "type", e.Type, "agent", e.AgentID, "error", err)
			continue
		}
		row := persistence.Event{
			AgentID:   e.AgentID,
			Type:      e.Type,
			Payload:   string(payload),
			Day:       int(r.Day),
			CreatedAt: now,
		}
		if e.AgentID != "" {
			out = append(out, row)
			continue
		}
		for _, a := range list {
			row.AgentID = a.ID
			out = append(out, row)
		}
	}

	if err := s.DB.AppendEvents(ctx, out); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	r.EventsFlushed = len(out)
	return nil
}
