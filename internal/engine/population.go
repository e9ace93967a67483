// Population consumption and growth: each agent's people shop for their
// daily needs, then grow or shrink with satisfaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

// consume buys each population's daily basket at current prices, as far as
// the owner's balance allows, and records the quantities bought as demand.
func (s *Simulation) consume(ctx context.Context, r *Report) error {
	pops, err := s.DB.ListPopulations(ctx)
	if err != nil {
		return fmt.Errorf("list populations: %w", err)
	}
	prices, err := s.DB.CurrentPrices(ctx)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}

	demand := make(map[economy.Item]float64)
	var failures int
	for _, p := range pops {
		basket, err := s.buyBasket(ctx, p, prices)
		if err != nil {
			slog.Warn("consume", "agent", p.AgentID, "error", err)
			failures++
			continue
		}

		_, err = s.DB.MutatePopulation(ctx, p.AgentID, func(cur *agents.Population) error {
			for _, n := range agents.Needs {
				cur.SetMet(n, 0)
			}
			for _, b := range basket.Purchases {
				cur.SetMet(b.Need, b.Quantity)
			}
			cur.Shortage = string(basket.Shortage)
			if basket.Shortage != "" {
				cur.Satisfaction = economy.Clamp(cur.Satisfaction-agents.ShortfallPenalty, 0, 1)
			}
			cur.UpdatedAt = r.Now().UnixMilli()
			return nil
		})
		if err != nil {
			slog.Warn("record consumption", "agent", p.AgentID, "error", err)
			failures++
			continue
		}

		for _, b := range basket.Purchases {
			demand[b.Need.Item()] += b.Quantity
		}
		r.Consumption += basket.Cost
		r.Ledger(p.AgentID).Consumption += basket.Cost
		if basket.Shortage != "" {
			s.emit(p.AgentID, EventShortage, map[string]any{
				"shortage": basket.Shortage,
				"cost":     basket.Cost,
			})
		}
	}

	for _, item := range economy.Items {
		qty := demand[item]
		if qty <= 0 {
			continue
		}
		if _, err := s.DB.RecordDemand(ctx, item, qty); err != nil {
			slog.Warn("record demand", "item", item, "error", err)
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d consumption updates failed", failures)
	}
	return nil
}

// buyBasket shops with the owner's balance and debits the cost. If the
// balance moved between the read and the debit it shops once more.
func (s *Simulation) buyBasket(ctx context.Context, p *agents.Population, prices map[economy.Item]int64) (agents.Basket, error) {
	for attempt := 0; ; attempt++ {
		owner, err := s.DB.GetAgent(ctx, p.AgentID)
		if err != nil {
			return agents.Basket{}, err
		}
		basket := agents.Shop(p, s.Rates, prices, max(owner.Balance, 0))
		if basket.Cost == 0 {
			return basket, nil
		}
		err = s.DB.Debit(ctx, p.AgentID, basket.Cost)
		if err == nil {
			return basket, nil
		}
		if !errors.Is(err, persistence.ErrInsufficientFunds) || attempt > 0 {
			return agents.Basket{}, err
		}
	}
}

// advancePopulation applies growth or loss and recomputes satisfaction from
// what was met today. Jobs that disappeared with the people are shed from
// the owner's facilities, largest workforce first.
func (s *Simulation) advancePopulation(ctx context.Context, r *Report) error {
	pops, err := s.DB.ListPopulations(ctx)
	if err != nil {
		return fmt.Errorf("list populations: %w", err)
	}

	var failures int
	for _, p := range pops {
		var delta, laidOff int
		_, err := s.DB.MutatePopulation(ctx, p.AgentID, func(cur *agents.Population) error {
			delta, laidOff = cur.AdvanceDay(s.LossRate)
			cur.RecomputeSatisfaction(s.Rates)
			cur.UpdatedAt = r.Now().UnixMilli()
			return nil
		})
		if err != nil {
			slog.Warn("advance population", "agent", p.AgentID, "error", err)
			failures++
			continue
		}

		if laidOff > 0 {
			if err := s.shedJobs(ctx, p.AgentID, laidOff); err != nil {
				slog.Warn("shed jobs", "agent", p.AgentID, "error", err)
				failures++
			}
			r.Layoffs += laidOff
		}
		if delta != 0 {
			r.PopulationDelta += delta
			r.Ledger(p.AgentID).PopulationDelta += delta
			s.emit(p.AgentID, EventPopulation, map[string]any{
				"delta":    delta,
				"laid_off": laidOff,
			})
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d population updates failed", failures)
	}
	return nil
}

func (s *Simulation) shedJobs(ctx context.Context, agentID string, n int) error {
	facilities, err := s.DB.FacilitiesByOwner(ctx, agentID)
	if err != nil {
		return err
	}
	sortByWorkers(facilities)
	for _, f := range facilities {
		if n == 0 {
			break
		}
		if f.Workers == 0 {
			continue
		}
		spec := s.Catalog.Facility(f.Type)
		shed, err := s.DB.ShedWorkers(ctx, f.ID, n, economy.EfficiencyDelta(f.Type, spec, 1))
		if err != nil {
			return err
		}
		n -= shed
	}
	return nil
}

func sortByWorkers(fs []*economy.Facility) {
	slices.SortStableFunc(fs, func(a, b *economy.Facility) int {
		return b.Workers - a.Workers
	})
}
