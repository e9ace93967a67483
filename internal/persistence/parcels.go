package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/tycoon/internal/world"
)

const parcelColumns = `id, type, area, location, power_capacity, water, transport, policy,
	base_price, owner_id, auction_id, created_at`

// ParcelFilter narrows ListParcels. Zero values match everything.
type ParcelFilter struct {
	Type      world.ParcelType
	Available bool
	OwnerID   string

	// MinLocation keeps parcels whose location score is at least this.
	MinLocation int
	MaxPrice    int64
	Limit       int
	Offset      int
}

func insertParcels(ctx context.Context, tx *sqlx.Tx, parcels []*world.Parcel) error {
	for _, p := range parcels {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO parcels (`+parcelColumns+`)
			VALUES (:id, :type, :area, :location, :power_capacity, :water, :transport, :policy,
			:base_price, :owner_id, :auction_id, :created_at)`, p)
		if err != nil {
			return fmt.Errorf("insert parcel %s: %w", p.ID, err)
		}
	}
	return nil
}

// InsertParcels seeds world land.
func (db *DB) InsertParcels(ctx context.Context, parcels []*world.Parcel) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		return insertParcels(ctx, tx, parcels)
	})
}

// CountParcels returns the number of parcels in the world.
func (db *DB) CountParcels(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM parcels`)
	return n, err
}

// GetParcel loads one parcel.
func (db *DB) GetParcel(ctx context.Context, id string) (*world.Parcel, error) {
	p := &world.Parcel{}
	err := getOne(ctx, db.conn, p, db.conn.Rebind(`SELECT `+parcelColumns+` FROM parcels WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListParcels returns parcels matching f, ordered by id.
func (db *DB) ListParcels(ctx context.Context, f ParcelFilter) ([]*world.Parcel, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Available {
		where = append(where, "owner_id IS NULL AND auction_id IS NULL")
	}
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.MinLocation > 0 {
		where = append(where, "location >= ?")
		args = append(args, f.MinLocation)
	}
	if f.MaxPrice > 0 {
		where = append(where, "base_price <= ?")
		args = append(args, f.MaxPrice)
	}
	q := `SELECT ` + parcelColumns + ` FROM parcels`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	var out []*world.Parcel
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(q), args...)
	return out, err
}

// OwnedParcels returns every parcel that has an owner.
func (db *DB) OwnedParcels(ctx context.Context) ([]*world.Parcel, error) {
	var out []*world.Parcel
	err := db.conn.SelectContext(ctx, &out, `SELECT `+parcelColumns+` FROM parcels WHERE owner_id IS NOT NULL ORDER BY id`)
	return out, err
}

// ClaimParcel transfers an available parcel to agentID for its base price.
// The ownership change is a single conditional update, so of two
// concurrent buyers exactly one succeeds; the other gets ErrConflict.
// A buyer who cannot pay gets ErrInsufficientFunds and nothing changes.
func (db *DB) ClaimParcel(ctx context.Context, parcelID, agentID string) (*world.Parcel, error) {
	p := &world.Parcel{}
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE parcels SET owner_id = ? WHERE id = ? AND owner_id IS NULL AND auction_id IS NULL`),
			agentID, parcelID))
		if errors.Is(err, ErrConflict) {
			var n int
			if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM parcels WHERE id = ?`), parcelID); err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}
		if err != nil {
			return err
		}
		if err := getOne(ctx, tx, p, tx.Rebind(`SELECT `+parcelColumns+` FROM parcels WHERE id = ?`), parcelID); err != nil {
			return err
		}
		return debit(ctx, tx, agentID, p.BasePrice)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// parcelPowerInUse sums the draw of every facility on a parcel.
func parcelPowerInUse(ctx context.Context, tx *sqlx.Tx, parcelID string) (float64, error) {
	var used float64
	err := tx.GetContext(ctx, &used, tx.Rebind(
		`SELECT COALESCE(SUM(power_draw), 0) FROM facilities WHERE parcel_id = ?`), parcelID)
	return used, err
}
