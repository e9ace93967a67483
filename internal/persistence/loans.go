package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/tycoon/internal/economy"
)

const loanColumns = `id, agent_id, type, principal, duration_days, daily_interest, total_due,
	repaid, status, due_at, created_at`

// CreateLoan records a new loan and credits its principal.
func (db *DB) CreateLoan(ctx context.Context, l *economy.Loan) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO loans (`+loanColumns+`)
			VALUES (:id, :agent_id, :type, :principal, :duration_days, :daily_interest, :total_due,
			:repaid, :status, :due_at, :created_at)`, l)
		if err != nil {
			return fmt.Errorf("insert loan %s: %w", l.ID, err)
		}
		return credit(ctx, tx, l.AgentID, l.Principal)
	})
}

// GetLoan loads one loan.
func (db *DB) GetLoan(ctx context.Context, id string) (*economy.Loan, error) {
	l := &economy.Loan{}
	err := getOne(ctx, db.conn, l, db.conn.Rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// LoansByAgent returns an agent's loans, newest first.
func (db *DB) LoansByAgent(ctx context.Context, agentID string) ([]*economy.Loan, error) {
	var out []*economy.Loan
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+loanColumns+` FROM loans WHERE agent_id = ? ORDER BY created_at DESC, id`), agentID)
	return out, err
}

// ActiveLoans returns every active loan ordered by id.
func (db *DB) ActiveLoans(ctx context.Context) ([]*economy.Loan, error) {
	var out []*economy.Loan
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY id`), economy.LoanActive)
	return out, err
}

// HasDefaulted reports whether an agent holds a defaulted loan.
func (db *DB) HasDefaulted(ctx context.Context, agentID string) (bool, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, db.conn.Rebind(
		`SELECT COUNT(*) FROM loans WHERE agent_id = ? AND status = ?`), agentID, economy.LoanDefaulted)
	return n > 0, err
}

// RepayLoan applies a payment from the borrower's balance. The loan update
// is one conditional statement: it only matches an active loan with room
// for the payment, so a terminal loan never changes. Paying off the loan
// upgrades the borrower's tier.
func (db *DB) RepayLoan(ctx context.Context, loanID, agentID string, amount int64) (*economy.Loan, error) {
	l := &economy.Loan{}
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE loans SET
			 status = CASE WHEN repaid + ? >= total_due THEN ? ELSE status END,
			 repaid = repaid + ?
			 WHERE id = ? AND agent_id = ? AND status = ? AND repaid + ? <= total_due`),
			amount, economy.LoanRepaid, amount, loanID, agentID, economy.LoanActive, amount))
		if errors.Is(err, ErrConflict) {
			cur := &economy.Loan{}
			if err := getOne(ctx, tx, cur, tx.Rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ? AND agent_id = ?`), loanID, agentID); err != nil {
				return err
			}
			if cur.Status != economy.LoanActive {
				return fmt.Errorf("%w: %w", ErrConflict, economy.ErrLoanClosed)
			}
			return fmt.Errorf("%w: %w", ErrConflict, economy.ErrOverpayment)
		}
		if err != nil {
			return err
		}
		if err := debit(ctx, tx, agentID, amount); err != nil {
			return err
		}
		if err := getOne(ctx, tx, l, tx.Rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`), loanID); err != nil {
			return err
		}
		if l.Status == economy.LoanRepaid {
			_, err = db.shiftTier(ctx, tx, agentID, true)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// AccrueInterest adds days of interest to an active loan. It returns the
// loan after the update and whether this accrual closed it; closing
// upgrades the borrower's tier.
func (db *DB) AccrueInterest(ctx context.Context, loanID string, days int) (*economy.Loan, bool, error) {
	l := &economy.Loan{}
	var closed bool
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := getOne(ctx, tx, l, tx.Rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`+db.forUpdate()), loanID); err != nil {
			return err
		}
		if l.AccrueInterest(days) == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE loans SET repaid = ?, status = ? WHERE id = ? AND status = ?`),
			l.Repaid, l.Status, loanID, economy.LoanActive)
		if err != nil {
			return err
		}
		if l.Status == economy.LoanRepaid {
			closed = true
			_, err = db.shiftTier(ctx, tx, l.AgentID, true)
		}
		return err
	})
	return l, closed, err
}

// DefaultIfOverdue moves an active loan past its due date to defaulted and
// downgrades the borrower. It reports whether the transition happened.
func (db *DB) DefaultIfOverdue(ctx context.Context, loanID string, now time.Time) (bool, error) {
	var defaulted bool
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var agentID string
		err := getOne(ctx, tx, &agentID, tx.Rebind(
			`UPDATE loans SET status = ? WHERE id = ? AND status = ? AND due_at < ? RETURNING agent_id`),
			economy.LoanDefaulted, loanID, economy.LoanActive, now.UnixMilli())
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		defaulted = true
		_, err = db.shiftTier(ctx, tx, agentID, false)
		return err
	})
	return defaulted, err
}
