// Auctions: settle expired sales and seize the land of insolvent agents.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

func (s *Simulation) processAuctions(ctx context.Context, r *Report) error {
	var failures int
	n, err := s.settleAuctions(ctx, r)
	failures += n
	if err != nil {
		return err
	}
	n, err = s.seizeInsolvent(ctx, r)
	failures += n
	if err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("%d auction updates failed", failures)
	}
	return nil
}

// settleAuctions closes every auction past its end. A winning bid moves the
// parcel and its facilities to the bidder; the seller's workers there are
// laid off back into the seller's population.
func (s *Simulation) settleAuctions(ctx context.Context, r *Report) (int, error) {
	expired, err := s.DB.ExpiredAuctions(ctx, r.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired auctions: %w", err)
	}

	var failures int
	for _, a := range expired {
		var layoffs []persistence.Layoff
		if a.BidderID != nil {
			layoffs, err = s.layoffsOn(ctx, a.ParcelID)
			if err != nil {
				slog.Warn("auction layoffs", "auction", a.ID, "error", err)
				failures++
				continue
			}
		}

		status, err := s.DB.SettleAuction(ctx, a, layoffs)
		if err != nil {
			slog.Warn("settle auction", "auction", a.ID, "error", err)
			failures++
			continue
		}
		r.AuctionsSettled++

		info := map[string]any{
			"auction_id": a.ID,
			"parcel_id":  a.ParcelID,
			"price":      a.CurrentBid,
			"reason":     a.Reason,
		}
		switch status {
		case persistence.AuctionSold:
			slog.Info("auction sold", "auction", a.ID, "parcel", a.ParcelID, "price", a.CurrentBid)
			s.emit(*a.BidderID, EventAuctionWon, info)
			if a.SellerID != nil {
				s.emit(*a.SellerID, EventAuctionSold, info)
			}
		default:
			if a.SellerID != nil {
				s.emit(*a.SellerID, EventAuctionExpired, info)
			}
		}
	}
	return failures, nil
}

func (s *Simulation) layoffsOn(ctx context.Context, parcelID string) ([]persistence.Layoff, error) {
	facilities, err := s.DB.FacilitiesOnParcel(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	var out []persistence.Layoff
	for _, f := range facilities {
		if f.Workers == 0 {
			continue
		}
		spec := s.Catalog.Facility(f.Type)
		out = append(out, persistence.Layoff{
			FacilityID: f.ID,
			Workers:    f.Workers,
			Delta:      economy.EfficiencyDelta(f.Type, spec, f.Workers),
		})
	}
	return out, nil
}

// seizeInsolvent flags agents with a negative balance and a defaulted loan
// as bankrupt and lists each of their parcels at a fire-sale price. Parcels
// whose auction expired unsold are listed again.
func (s *Simulation) seizeInsolvent(ctx context.Context, r *Report) (int, error) {
	list, err := s.DB.ListAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list agents: %w", err)
	}

	var failures int
	for _, a := range list {
		if !a.Bankrupt {
			insolvent, err := s.insolvent(ctx, a)
			if err != nil {
				slog.Warn("insolvency check", "agent", a.ID, "error", err)
				failures++
				continue
			}
			if !insolvent {
				continue
			}
			flagged, err := s.DB.MarkBankrupt(ctx, a.ID)
			if err != nil {
				slog.Warn("mark bankrupt", "agent", a.ID, "error", err)
				failures++
				continue
			}
			if !flagged {
				continue
			}
			r.Bankruptcies++
			slog.Info("agent bankrupt", "agent", a.ID, "balance", a.Balance)
			s.emit(a.ID, EventBankrupt, map[string]any{"balance": a.Balance})
		}
		failures += s.listForSeizure(ctx, a.ID, r.Now())
	}
	return failures, nil
}

func (s *Simulation) insolvent(ctx context.Context, a *agents.Agent) (bool, error) {
	if a.Balance >= 0 {
		return false, nil
	}
	return s.DB.HasDefaulted(ctx, a.ID)
}

func (s *Simulation) listForSeizure(ctx context.Context, agentID string, now time.Time) int {
	parcels, err := s.DB.ListParcels(ctx, persistence.ParcelFilter{OwnerID: agentID})
	if err != nil {
		slog.Warn("list seized parcels", "agent", agentID, "error", err)
		return 1
	}

	var failures int
	for _, p := range parcels {
		if p.AuctionID != nil {
			continue
		}
		seller := agentID
		a := &persistence.Auction{
			ID:        s.NewID(),
			ParcelID:  p.ID,
			SellerID:  &seller,
			Reason:    persistence.ReasonBankruptcy,
			MinBid:    FireSalePrice(p.BasePrice, s.Game.FireSaleFactor),
			Status:    persistence.AuctionOpen,
			EndsAt:    now.Add(s.Game.AuctionLength).UnixMilli(),
			CreatedAt: now.UnixMilli(),
		}
		if err := s.DB.OpenAuction(ctx, a); err != nil {
			slog.Warn("open seizure auction", "parcel", p.ID, "error", err)
			failures++
		}
	}
	return failures
}

// FireSalePrice is floor(base × factor), never below 1.
func FireSalePrice(base int64, factor float64) int64 {
	p := decimal.NewFromInt(base).Mul(decimal.NewFromFloat(factor)).Floor().IntPart()
	return max(p, 1)
}
