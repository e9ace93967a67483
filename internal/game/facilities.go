package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

// Build starts construction of a new facility on a parcel the agent owns.
// The build cost is debited up front and the facility produces nothing
// until construction completes.
func (s *Service) Build(ctx context.Context, agentID, parcelID string, t economy.FacilityType) (*economy.Facility, error) {
	if !t.Valid() {
		return nil, invalid("unknown facility type %q", t)
	}
	spec := s.Catalog.Facility(t)
	f := economy.NewFacility(s.NewID(), parcelID, agentID, t, spec, s.Clock())

	err := s.DB.CreateFacility(ctx, f, spec.BuildCost)
	switch {
	case errors.Is(err, persistence.ErrConflict):
		return nil, newError(CodeConflict, "parcel %s is not yours or is under auction", parcelID)
	case err != nil:
		return nil, translate(err, "parcel "+parcelID)
	}
	slog.Info("facility construction started", "agent", agentID, "facility", f.ID, "type", t, "cost", spec.BuildCost)
	return f, nil
}

// Upgrade opens an upgrade window towards the next level and debits
// BuildCost × level. While the window is open the facility is idle.
func (s *Service) Upgrade(ctx context.Context, agentID, facilityID string) (*economy.Facility, error) {
	f, err := s.ownedFacility(ctx, agentID, facilityID)
	if err != nil {
		return nil, err
	}
	spec := s.Catalog.Facility(f.Type)
	cost := f.UpgradeCost(spec)

	if err := f.StartUpgrade(s.Clock()); err != nil {
		return nil, &Error{Code: CodeConflict, Message: err.Error(), Err: err}
	}
	err = s.DB.StartUpgrade(ctx, f, cost)
	switch {
	case errors.Is(err, persistence.ErrConflict):
		return nil, newError(CodeConflict, "facility %s is busy or at maximum level", facilityID)
	case err != nil:
		return nil, translate(err, "facility "+facilityID)
	}
	slog.Info("facility upgrade started", "agent", agentID, "facility", f.ID, "to_level", f.Level+1, "cost", cost)
	return f, nil
}

// Facilities lists the agent's facilities.
func (s *Service) Facilities(ctx context.Context, agentID string) ([]*economy.Facility, error) {
	out, err := s.DB.FacilitiesByOwner(ctx, agentID)
	if err != nil {
		return nil, translate(err, "facilities")
	}
	return out, nil
}

// Hire staffs a facility from the agent's unemployed population.
func (s *Service) Hire(ctx context.Context, agentID, facilityID string, n int) (*economy.Facility, error) {
	if n <= 0 {
		return nil, invalid("count must be positive")
	}
	f, err := s.ownedFacility(ctx, agentID, facilityID)
	if err != nil {
		return nil, err
	}
	delta := economy.EfficiencyDelta(f.Type, s.Catalog.Facility(f.Type), n)
	if err := s.DB.Hire(ctx, facilityID, agentID, n, delta); err != nil {
		return nil, translate(err, "facility "+facilityID)
	}
	return s.facility(ctx, facilityID)
}

// Fire returns workers to the unemployed pool.
func (s *Service) Fire(ctx context.Context, agentID, facilityID string, n int) (*economy.Facility, error) {
	if n <= 0 {
		return nil, invalid("count must be positive")
	}
	f, err := s.ownedFacility(ctx, agentID, facilityID)
	if err != nil {
		return nil, err
	}
	delta := economy.EfficiencyDelta(f.Type, s.Catalog.Facility(f.Type), n)
	if err := s.DB.Fire(ctx, facilityID, agentID, n, delta); err != nil {
		return nil, translate(err, "facility "+facilityID)
	}
	return s.facility(ctx, facilityID)
}

func (s *Service) facility(ctx context.Context, id string) (*economy.Facility, error) {
	f, err := s.DB.GetFacility(ctx, id)
	if err != nil {
		return nil, translate(err, "facility "+id)
	}
	return f, nil
}

// ownedFacility loads a facility and hides other agents' facilities
// behind not found.
func (s *Service) ownedFacility(ctx context.Context, agentID, id string) (*economy.Facility, error) {
	f, err := s.facility(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != agentID {
		return nil, newError(CodeNotFound, "facility %s not found", id)
	}
	return f, nil
}
