package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// accrueInterest adds one day of interest to every active loan. Interest
// counts toward the repayment target, so a loan can close here.
func (s *Simulation) accrueInterest(ctx context.Context, r *Report) error {
	loans, err := s.DB.ActiveLoans(ctx)
	if err != nil {
		return fmt.Errorf("list loans: %w", err)
	}

	var failures int
	for _, l := range loans {
		updated, closed, err := s.DB.AccrueInterest(ctx, l.ID, 1)
		if err != nil {
			slog.Warn("accrue interest", "loan", l.ID, "error", err)
			failures++
			continue
		}
		if closed {
			r.LoansRepaid++
			s.emit(updated.AgentID, EventLoanRepaid, updated)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d loans failed to accrue", failures)
	}
	return nil
}

// checkOverdue defaults active loans past their due time.
func (s *Simulation) checkOverdue(ctx context.Context, r *Report) error {
	loans, err := s.DB.ActiveLoans(ctx)
	if err != nil {
		return fmt.Errorf("list loans: %w", err)
	}

	now := r.Now()
	var failures int
	for _, l := range loans {
		if !l.Overdue(now) {
			continue
		}
		defaulted, err := s.DB.DefaultIfOverdue(ctx, l.ID, now)
		if err != nil {
			slog.Warn("default loan", "loan", l.ID, "error", err)
			failures++
			continue
		}
		if defaulted {
			r.LoansDefaulted++
			slog.Info("loan defaulted", "loan", l.ID, "agent", l.AgentID, "remaining", l.Remaining())
			s.emit(l.AgentID, EventLoanDefaulted, map[string]any{
				"loan_id":   l.ID,
				"remaining": l.Remaining(),
			})
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d loans failed the overdue check", failures)
	}
	return nil
}
