package engine

import (
	"context"
	"fmt"

	"github.com/talgya/tycoon/internal/economy"
)

// completeConstruction closes every construction and upgrade window that
// ended by now. Facilities become operational from the next day's
// production phase.
func (s *Simulation) completeConstruction(ctx context.Context, r *Report) error {
	done, err := s.DB.CompleteWindows(ctx, r.Now(), s.Catalog.Facility)
	for _, c := range done {
		r.Completed++
		typ := EventConstructionDone
		if c.Kind == economy.CompletedUpgrade {
			typ = EventUpgradeDone
		}
		s.emit(c.Facility.OwnerID, typ, c.Facility)
	}
	if err != nil {
		return fmt.Errorf("complete windows: %w", err)
	}
	return nil
}
