// Production settlement and wage payment.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

// Revenue is floor(amount × price).
func Revenue(amount float64, price int64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(price)).Floor().IntPart()
}

// OperatingCharge is the daily non-labor cost rounded up to whole credits.
func OperatingCharge(f *economy.Facility, spec economy.FacilitySpec) int64 {
	return decimal.NewFromFloat(f.OperatingCost(spec)).Ceil().IntPart()
}

// settleProduction credits every operational facility's output at the
// current market price, net of fixed and power costs, and adds the output
// to market supply. Facilities with an open window are skipped entirely.
func (s *Simulation) settleProduction(ctx context.Context, r *Report) error {
	facilities, err := s.DB.ListFacilities(ctx)
	if err != nil {
		return fmt.Errorf("list facilities: %w", err)
	}
	prices, err := s.DB.CurrentPrices(ctx)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}

	now := r.Now()
	supplied := make(map[economy.Item]float64)
	var failures int
	for _, f := range facilities {
		if !f.Operational(now) {
			continue
		}
		spec := s.Catalog.Facility(f.Type)
		item, amount := f.DailyProduction(spec)
		revenue := Revenue(amount, prices[item])
		cost := OperatingCharge(f, spec)

		if _, err := s.DB.Credit(ctx, f.OwnerID, revenue-cost); err != nil {
			slog.Warn("settle facility", "facility", f.ID, "error", err)
			failures++
			continue
		}
		supplied[item] += amount
		r.Facilities++
		r.Revenue += revenue

		l := r.Ledger(f.OwnerID)
		l.Revenue += revenue
		l.OperatingCost += cost
	}

	for _, item := range economy.Items {
		amount, ok := supplied[item]
		if !ok {
			continue
		}
		if _, err := s.DB.RecordSupply(ctx, item, amount); err != nil {
			slog.Warn("record supply", "item", item, "error", err)
			failures++
			continue
		}
		r.Produced[item] = amount
	}
	if failures > 0 {
		return fmt.Errorf("%d production updates failed", failures)
	}
	return nil
}

// payWages debits each operational facility's labor bill. An owner who
// cannot pay loses the whole workforce of that facility.
func (s *Simulation) payWages(ctx context.Context, r *Report) error {
	facilities, err := s.DB.ListFacilities(ctx)
	if err != nil {
		return fmt.Errorf("list facilities: %w", err)
	}

	now := r.Now()
	var failures int
	for _, f := range facilities {
		if f.Workers == 0 || !f.Operational(now) {
			continue
		}
		spec := s.Catalog.Facility(f.Type)
		wages := f.Wages(spec)

		err := s.DB.Debit(ctx, f.OwnerID, wages)
		if err == nil {
			r.Wages += wages
			r.Ledger(f.OwnerID).Wages += wages
			continue
		}
		if !errors.Is(err, persistence.ErrInsufficientFunds) {
			slog.Warn("pay wages", "facility", f.ID, "error", err)
			failures++
			continue
		}

		laidOff, err := s.DB.LayOff(ctx, f.ID, economy.EfficiencyDelta(f.Type, spec, 1))
		if err != nil {
			slog.Warn("lay off", "facility", f.ID, "error", err)
			failures++
			continue
		}
		r.Layoffs += laidOff
		s.emit(f.OwnerID, EventWagesUnpaid, map[string]any{
			"facility_id": f.ID,
			"wages":       wages,
			"laid_off":    laidOff,
		})
	}
	if failures > 0 {
		return fmt.Errorf("%d wage updates failed", failures)
	}
	return nil
}
