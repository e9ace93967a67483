package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionOpen    AuctionStatus = "open"
	AuctionSold    AuctionStatus = "sold"
	AuctionExpired AuctionStatus = "expired"
)

// AuctionReason records why a parcel went under the hammer.
type AuctionReason string

const (
	ReasonListing    AuctionReason = "listing"
	ReasonBankruptcy AuctionReason = "bankruptcy"
)

// Auction is a timed sale of one parcel. The seller keeps ownership until
// settlement.
type Auction struct {
	ID         string        `db:"id" json:"id"`
	ParcelID   string        `db:"parcel_id" json:"parcel_id"`
	SellerID   *string       `db:"seller_id" json:"seller_id,omitempty"`
	Reason     AuctionReason `db:"reason" json:"reason"`
	MinBid     int64         `db:"min_bid" json:"min_bid"`
	CurrentBid int64         `db:"current_bid" json:"current_bid"`
	BidderID   *string       `db:"bidder_id" json:"bidder_id,omitempty"`
	Status     AuctionStatus `db:"status" json:"status"`
	EndsAt     int64         `db:"ends_at" json:"ends_at"`
	CreatedAt  int64         `db:"created_at" json:"created_at"`
}

const auctionColumns = `id, parcel_id, seller_id, reason, min_bid, current_bid, bidder_id, status, ends_at, created_at`

// OpenAuction marks the parcel as under auction and records a. The parcel
// must be owned by the seller and not already listed.
func (db *DB) OpenAuction(ctx context.Context, a *Auction) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if a.SellerID == nil {
			return errors.New("auction needs a seller")
		}
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE parcels SET auction_id = ? WHERE id = ? AND owner_id = ? AND auction_id IS NULL`),
			a.ID, a.ParcelID, *a.SellerID))
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO auctions (`+auctionColumns+`)
			VALUES (:id, :parcel_id, :seller_id, :reason, :min_bid, :current_bid, :bidder_id, :status, :ends_at, :created_at)`, a)
		if err != nil {
			return fmt.Errorf("insert auction %s: %w", a.ID, err)
		}
		return nil
	})
}

// GetAuction loads one auction.
func (db *DB) GetAuction(ctx context.Context, id string) (*Auction, error) {
	a := &Auction{}
	err := getOne(ctx, db.conn, a, db.conn.Rebind(`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// OpenAuctions lists auctions still taking bids, soonest ending first.
func (db *DB) OpenAuctions(ctx context.Context) ([]*Auction, error) {
	var out []*Auction
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+auctionColumns+` FROM auctions WHERE status = ? ORDER BY ends_at, id`), AuctionOpen)
	return out, err
}

// ExpiredAuctions lists open auctions whose end has passed.
func (db *DB) ExpiredAuctions(ctx context.Context, now time.Time) ([]*Auction, error) {
	var out []*Auction
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+auctionColumns+` FROM auctions WHERE status = ? AND ends_at <= ? ORDER BY ends_at, id`),
		AuctionOpen, now.UnixMilli())
	return out, err
}

// PlaceBid raises the standing bid. The update only matches an open,
// unexpired auction where amount beats the current bid and meets the
// minimum, and the bidder is not the seller. The bidder must be able to
// cover the bid now; funds move at settlement.
func (db *DB) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64, now time.Time) (*Auction, error) {
	a := &Auction{}
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var balance int64
		if err := getOne(ctx, tx, &balance, tx.Rebind(`SELECT balance FROM agents WHERE id = ?`), bidderID); err != nil {
			return err
		}
		if balance < amount {
			return ErrInsufficientFunds
		}
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE auctions SET current_bid = ?, bidder_id = ?
			 WHERE id = ? AND status = ? AND ends_at > ? AND current_bid < ? AND min_bid <= ?
			 AND (seller_id IS NULL OR seller_id <> ?)`),
			amount, bidderID, auctionID, AuctionOpen, now.UnixMilli(), amount, amount, bidderID))
		if err != nil {
			return err
		}
		return getOne(ctx, tx, a, tx.Rebind(`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`), auctionID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Layoff describes workers leaving a facility when its parcel changes hands.
type Layoff struct {
	FacilityID string
	Workers    int
	Delta      float64
}

// SettleAuction closes an expired auction. With a bid it debits the winner,
// pays the seller, hands the parcel and its facilities to the winner and
// returns the seller's workers to their pool. A winner who can no longer
// pay, or an auction without bids, leaves the parcel with the seller.
// It returns the final status.
func (db *DB) SettleAuction(ctx context.Context, a *Auction, layoffs []Layoff) (AuctionStatus, error) {
	status := AuctionExpired
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		if a.BidderID != nil {
			err := debit(ctx, tx, *a.BidderID, a.CurrentBid)
			switch {
			case err == nil:
				status = AuctionSold
			case errors.Is(err, ErrInsufficientFunds):
			default:
				return err
			}
		}

		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE auctions SET status = ? WHERE id = ? AND status = ?`), status, a.ID, AuctionOpen))
		if err != nil {
			return err
		}
		if status != AuctionSold {
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE parcels SET auction_id = NULL WHERE id = ?`), a.ParcelID)
			return err
		}

		if a.SellerID != nil {
			if err := credit(ctx, tx, *a.SellerID, a.CurrentBid); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE parcels SET owner_id = ?, auction_id = NULL WHERE id = ?`), *a.BidderID, a.ParcelID)
		if err != nil {
			return err
		}
		for _, l := range layoffs {
			err := affected(tx.ExecContext(ctx, tx.Rebind(
				`UPDATE facilities SET workers = 0, efficiency = efficiency - ? WHERE id = ? AND workers = ?`),
				l.Delta, l.FacilityID, l.Workers))
			if err != nil {
				return fmt.Errorf("lay off %s: %w", l.FacilityID, err)
			}
			if a.SellerID != nil && l.Workers > 0 {
				if err := release(ctx, tx, *a.SellerID, l.Workers); err != nil {
					return err
				}
			}
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE facilities SET owner_id = ? WHERE parcel_id = ?`), *a.BidderID, a.ParcelID)
		return err
	})
	if err != nil {
		return "", err
	}
	a.Status = status
	return status, nil
}
