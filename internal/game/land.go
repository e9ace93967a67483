package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/talgya/tycoon/internal/persistence"
	"github.com/talgya/tycoon/internal/world"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ParcelQuery filters the land listing.
type ParcelQuery struct {
	Type        world.ParcelType
	Available   bool
	MinLocation int
	MaxPrice    int64
	Limit       int
	Offset      int
}

// Parcels lists land, available parcels only unless q says otherwise.
func (s *Service) Parcels(ctx context.Context, q ParcelQuery) ([]*world.Parcel, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, invalid("unknown parcel type %q", q.Type)
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	q.Limit = min(q.Limit, maxPageSize)
	q.Offset = max(q.Offset, 0)

	out, err := s.DB.ListParcels(ctx, persistence.ParcelFilter{
		Type:        q.Type,
		Available:   q.Available,
		MinLocation: q.MinLocation,
		MaxPrice:    q.MaxPrice,
		Limit:       q.Limit,
		Offset:      q.Offset,
	})
	if err != nil {
		return nil, translate(err, "parcels")
	}
	return out, nil
}

// Parcel returns one parcel.
func (s *Service) Parcel(ctx context.Context, id string) (*world.Parcel, error) {
	p, err := s.DB.GetParcel(ctx, id)
	if err != nil {
		return nil, translate(err, "parcel "+id)
	}
	return p, nil
}

// PurchaseParcel buys an unowned parcel at its base price. Of two agents
// racing for the same parcel, one gets it and the other a conflict.
func (s *Service) PurchaseParcel(ctx context.Context, agentID, parcelID string) (*world.Parcel, error) {
	p, err := s.DB.ClaimParcel(ctx, parcelID, agentID)
	if err != nil {
		return nil, translate(err, "parcel "+parcelID)
	}
	slog.Info("parcel purchased", "agent", agentID, "parcel", parcelID, "price", p.BasePrice)
	return p, nil
}

// ListForAuction puts an owned parcel up for auction. The owner keeps the
// parcel and its facilities until the auction settles.
func (s *Service) ListForAuction(ctx context.Context, agentID, parcelID string, minBid int64) (*persistence.Auction, error) {
	if minBid <= 0 {
		return nil, invalid("min_bid must be positive")
	}
	p, err := s.DB.GetParcel(ctx, parcelID)
	if err != nil {
		return nil, translate(err, "parcel "+parcelID)
	}
	if !p.OwnedBy(agentID) {
		return nil, newError(CodeConflict, "parcel %s is not yours", parcelID)
	}

	now := s.Clock()
	seller := agentID
	a := &persistence.Auction{
		ID:        s.NewID(),
		ParcelID:  parcelID,
		SellerID:  &seller,
		Reason:    persistence.ReasonListing,
		MinBid:    minBid,
		Status:    persistence.AuctionOpen,
		EndsAt:    now.Add(s.Game.AuctionLength).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}
	if err := s.DB.OpenAuction(ctx, a); err != nil {
		return nil, translate(err, "parcel "+parcelID)
	}
	slog.Info("parcel listed", "agent", agentID, "parcel", parcelID, "auction", a.ID, "min_bid", minBid)
	return a, nil
}

// Bid raises the standing bid on an open auction. The bidder must be able
// to cover the bid now; the money only moves if the bid still wins when
// the auction settles.
func (s *Service) Bid(ctx context.Context, agentID, auctionID string, amount int64) (*persistence.Auction, error) {
	if amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	a, err := s.DB.PlaceBid(ctx, auctionID, agentID, amount, s.Clock())
	if errors.Is(err, persistence.ErrConflict) {
		return nil, s.bidConflict(ctx, agentID, auctionID, amount)
	}
	if err != nil {
		return nil, translate(err, "auction "+auctionID)
	}
	return a, nil
}

// bidConflict explains why a bid did not land.
func (s *Service) bidConflict(ctx context.Context, agentID, auctionID string, amount int64) error {
	a, err := s.DB.GetAuction(ctx, auctionID)
	if err != nil {
		return translate(err, "auction "+auctionID)
	}
	switch {
	case a.Status != persistence.AuctionOpen || a.EndsAt <= s.Clock().UnixMilli():
		return newError(CodeConflict, "auction %s is closed", auctionID)
	case a.SellerID != nil && *a.SellerID == agentID:
		return newError(CodeConflict, "cannot bid on your own auction")
	case amount < a.MinBid:
		return newError(CodeConflict, "bid below minimum %d", a.MinBid)
	}
	return newError(CodeConflict, "bid must beat the current bid %d", a.CurrentBid)
}

// Auctions lists auctions still taking bids.
func (s *Service) Auctions(ctx context.Context) ([]*persistence.Auction, error) {
	out, err := s.DB.OpenAuctions(ctx)
	if err != nil {
		return nil, translate(err, "auctions")
	}
	return out, nil
}
