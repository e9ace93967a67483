package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/tycoon/internal/economy"
)

const facilityColumns = `id, parcel_id, owner_id, type, level, efficiency, power_draw, workers,
	construction_start, construction_end, upgrade_start, upgrade_end, created_at`

// ErrPowerCapacity is returned when a parcel cannot power another facility.
var ErrPowerCapacity = fmt.Errorf("%w: parcel power capacity exceeded", ErrInsufficientResource)

// CreateFacility debits cost and inserts f on a parcel the owner holds
// outright. The parcel must have spare power capacity.
func (db *DB) CreateFacility(ctx context.Context, f *economy.Facility, cost int64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		var parcel struct {
			OwnerID       *string `db:"owner_id"`
			AuctionID     *string `db:"auction_id"`
			PowerCapacity float64 `db:"power_capacity"`
		}
		err := getOne(ctx, tx, &parcel, tx.Rebind(
			`SELECT owner_id, auction_id, power_capacity FROM parcels WHERE id = ?`+db.forUpdate()), f.ParcelID)
		if err != nil {
			return err
		}
		if parcel.OwnerID == nil || *parcel.OwnerID != f.OwnerID || parcel.AuctionID != nil {
			return ErrConflict
		}
		used, err := parcelPowerInUse(ctx, tx, f.ParcelID)
		if err != nil {
			return err
		}
		if used+f.PowerDraw > parcel.PowerCapacity {
			return ErrPowerCapacity
		}
		if err := debit(ctx, tx, f.OwnerID, cost); err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO facilities (`+facilityColumns+`)
			VALUES (:id, :parcel_id, :owner_id, :type, :level, :efficiency, :power_draw, :workers,
			:construction_start, :construction_end, :upgrade_start, :upgrade_end, :created_at)`, f)
		if err != nil {
			return fmt.Errorf("insert facility %s: %w", f.ID, err)
		}
		return nil
	})
}

// GetFacility loads one facility.
func (db *DB) GetFacility(ctx context.Context, id string) (*economy.Facility, error) {
	f := &economy.Facility{}
	err := getOne(ctx, db.conn, f, db.conn.Rebind(`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFacilities returns every facility ordered by id.
func (db *DB) ListFacilities(ctx context.Context) ([]*economy.Facility, error) {
	var out []*economy.Facility
	err := db.conn.SelectContext(ctx, &out, `SELECT `+facilityColumns+` FROM facilities ORDER BY id`)
	return out, err
}

// FacilitiesByOwner returns an agent's facilities.
func (db *DB) FacilitiesByOwner(ctx context.Context, ownerID string) ([]*economy.Facility, error) {
	var out []*economy.Facility
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+facilityColumns+` FROM facilities WHERE owner_id = ? ORDER BY id`), ownerID)
	return out, err
}

// FacilitiesOnParcel returns the facilities sited on a parcel.
func (db *DB) FacilitiesOnParcel(ctx context.Context, parcelID string) ([]*economy.Facility, error) {
	var out []*economy.Facility
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+facilityColumns+` FROM facilities WHERE parcel_id = ? ORDER BY id`), parcelID)
	return out, err
}

// StartUpgrade debits cost and opens the upgrade window already set on f.
// The window only opens if the stored facility has no window and is below
// the level cap; otherwise ErrConflict.
func (db *DB) StartUpgrade(ctx context.Context, f *economy.Facility, cost int64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE facilities SET upgrade_start = ?, upgrade_end = ?
			 WHERE id = ? AND owner_id = ? AND construction_end IS NULL AND upgrade_end IS NULL AND level < ?`),
			f.UpgradeStart, f.UpgradeEnd, f.ID, f.OwnerID, economy.MaxLevel))
		if err != nil {
			return err
		}
		return debit(ctx, tx, f.OwnerID, cost)
	})
}

// Hire moves n people from the owner's unemployed pool onto the facility
// and raises its efficiency by delta. The pool decrement is guarded so it
// never goes below zero.
func (db *DB) Hire(ctx context.Context, facilityID, ownerID string, n int, delta float64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE facilities SET workers = workers + ?, efficiency = efficiency + ?
			 WHERE id = ? AND owner_id = ?`), n, delta, facilityID, ownerID))
		if errors.Is(err, ErrConflict) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return employ(ctx, tx, ownerID, n)
	})
}

// Fire returns n of the facility's workers to the unemployed pool and
// lowers efficiency by delta.
func (db *DB) Fire(ctx context.Context, facilityID, ownerID string, n int, delta float64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		var workers int
		err := getOne(ctx, tx, &workers, tx.Rebind(
			`SELECT workers FROM facilities WHERE id = ? AND owner_id = ?`), facilityID, ownerID)
		if err != nil {
			return err
		}
		err = affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE facilities SET workers = workers - ?, efficiency = efficiency - ?
			 WHERE id = ? AND workers >= ?`), n, delta, facilityID, n))
		if errors.Is(err, ErrConflict) {
			return ErrInsufficientResource
		}
		if err != nil {
			return err
		}
		return release(ctx, tx, ownerID, n)
	})
}

// ShedWorkers removes up to n workers from a facility whose jobs already
// left the population (growth loss clamps employment). Efficiency drops by
// delta scaled to the workers actually shed.
func (db *DB) ShedWorkers(ctx context.Context, facilityID string, n int, deltaPerWorker float64) (int, error) {
	var shed int
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var workers int
		err := getOne(ctx, tx, &workers, tx.Rebind(`SELECT workers FROM facilities WHERE id = ?`+db.forUpdate()), facilityID)
		if err != nil {
			return err
		}
		shed = economy.Clamp(n, 0, workers)
		if shed == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE facilities SET workers = workers - ?, efficiency = efficiency - ? WHERE id = ?`),
			shed, deltaPerWorker*float64(shed), facilityID)
		return err
	})
	return shed, err
}

// LayOff zeroes a facility's workforce after unpaid wages and returns the
// workers to the owner's unemployed pool. It reports how many were laid off.
func (db *DB) LayOff(ctx context.Context, facilityID string, deltaPerWorker float64) (int, error) {
	var workers int
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var row struct {
			OwnerID string `db:"owner_id"`
			Workers int    `db:"workers"`
		}
		err := getOne(ctx, tx, &row, tx.Rebind(`SELECT owner_id, workers FROM facilities WHERE id = ?`+db.forUpdate()), facilityID)
		if err != nil {
			return err
		}
		workers = row.Workers
		if workers == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE facilities SET workers = 0, efficiency = efficiency - ? WHERE id = ?`),
			deltaPerWorker*float64(workers), facilityID)
		if err != nil {
			return err
		}
		return release(ctx, tx, row.OwnerID, workers)
	})
	return workers, err
}

// CompleteWindows closes due construction and upgrade windows. spec looks
// up the static parameters for each type. It returns the facilities that
// changed with what completed.
func (db *DB) CompleteWindows(ctx context.Context, now time.Time, spec func(economy.FacilityType) economy.FacilitySpec) ([]Completed, error) {
	var due []*economy.Facility
	err := db.conn.SelectContext(ctx, &due, db.conn.Rebind(
		`SELECT `+facilityColumns+` FROM facilities
		 WHERE construction_end <= ? OR upgrade_end <= ? ORDER BY id`), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, err
	}

	var out []Completed
	for _, f := range due {
		var done Completed
		err := db.withTx(ctx, func(tx *sqlx.Tx) error {
			cur := &economy.Facility{}
			if err := getOne(ctx, tx, cur, tx.Rebind(`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`+db.forUpdate()), f.ID); err != nil {
				return err
			}
			kind := cur.CompleteIfDue(spec(cur.Type), now)
			if kind == economy.CompletedNone {
				return nil
			}
			_, err := tx.NamedExecContext(ctx, `UPDATE facilities SET
				level = :level, efficiency = :efficiency, power_draw = :power_draw,
				construction_start = :construction_start, construction_end = :construction_end,
				upgrade_start = :upgrade_start, upgrade_end = :upgrade_end
				WHERE id = :id`, cur)
			done = Completed{Facility: cur, Kind: kind}
			return err
		})
		if err != nil {
			return out, fmt.Errorf("complete facility %s: %w", f.ID, err)
		}
		if done.Facility != nil {
			out = append(out, done)
		}
	}
	return out, nil
}

// Completed reports one closed window.
type Completed struct {
	Facility *economy.Facility
	Kind     economy.Completion
}
