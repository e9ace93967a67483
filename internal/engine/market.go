// Market update: reprice every item from the day's accumulated supply and
// demand.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/tycoon/internal/economy"
)

// PriceChange is one item's move over a day.
type PriceChange struct {
	Item     economy.Item  `json:"item"`
	Previous int64         `json:"previous"`
	Current  int64         `json:"current"`
	Trend    economy.Trend `json:"trend"`
}

func (s *Simulation) updateMarket(ctx context.Context, r *Report) error {
	before, err := s.DB.ListMarket(ctx)
	if err != nil {
		return fmt.Errorf("list market: %w", err)
	}

	var (
		changes  []PriceChange
		current  []*economy.MarketPrice
		failures int
	)
	for _, m := range before {
		after, err := s.DB.Reprice(ctx, m.Item)
		if err != nil {
			slog.Warn("reprice", "item", m.Item, "error", err)
			failures++
			r.Prices[m.Item] = m.CurrentPrice
			continue
		}
		current = append(current, after)
		r.Prices[m.Item] = after.CurrentPrice
		if after.CurrentPrice != m.CurrentPrice {
			changes = append(changes, PriceChange{
				Item:     m.Item,
				Previous: m.CurrentPrice,
				Current:  after.CurrentPrice,
				Trend:    after.Trend,
			})
		}
	}

	if len(changes) > 0 {
		s.broadcast(EventPricesChanged, map[string]any{
			"changes":   changes,
			"condition": economy.Condition(current),
		})
	}
	if failures > 0 {
		return fmt.Errorf("%d items failed to reprice", failures)
	}
	return nil
}
