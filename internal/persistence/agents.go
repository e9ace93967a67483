package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/world"
)

const agentColumns = `id, name, api_key, webhook_url, balance, tier, wealth, bankrupt, season, created_at`

// CreateAgent inserts a new agent with its population and starter parcel.
func (db *DB) CreateAgent(ctx context.Context, a *agents.Agent, p *agents.Population, starter *world.Parcel) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO agents (`+agentColumns+`)
			VALUES (:id, :name, :api_key, :webhook_url, :balance, :tier, :wealth, :bankrupt, :season, :created_at)`, a)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
		if err := insertPopulation(ctx, tx, p); err != nil {
			return err
		}
		if starter != nil {
			if err := insertParcels(ctx, tx, []*world.Parcel{starter}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAgent loads one agent.
func (db *DB) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	a := &agents.Agent{}
	err := getOne(ctx, db.conn, a, db.conn.Rebind(`SELECT `+agentColumns+` FROM agents WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAgentByKey resolves an API key.
func (db *DB) GetAgentByKey(ctx context.Context, apiKey string) (*agents.Agent, error) {
	a := &agents.Agent{}
	err := getOne(ctx, db.conn, a, db.conn.Rebind(`SELECT `+agentColumns+` FROM agents WHERE api_key = ?`), apiKey)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AgentNameTaken reports whether a name is already registered.
func (db *DB) AgentNameTaken(ctx context.Context, name string) (bool, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, db.conn.Rebind(`SELECT COUNT(*) FROM agents WHERE name = ?`), name)
	return n > 0, err
}

// ListAgents returns every agent in registration order.
func (db *DB) ListAgents(ctx context.Context) ([]*agents.Agent, error) {
	var out []*agents.Agent
	err := db.conn.SelectContext(ctx, &out, `SELECT `+agentColumns+` FROM agents ORDER BY created_at, id`)
	return out, err
}

// CountAgents returns the number of registered agents.
func (db *DB) CountAgents(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM agents`)
	return n, err
}

// Credit adds delta to the balance unconditionally (delta may be negative)
// and returns the new balance.
func (db *DB) Credit(ctx context.Context, agentID string, delta int64) (int64, error) {
	var balance int64
	err := getOne(ctx, db.conn, &balance, db.conn.Rebind(
		`UPDATE agents SET balance = balance + ? WHERE id = ? RETURNING balance`), delta, agentID)
	return balance, err
}

// Debit subtracts amount only if the balance covers it.
func (db *DB) Debit(ctx context.Context, agentID string, amount int64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		return debit(ctx, tx, agentID, amount)
	})
}

func debit(ctx context.Context, tx *sqlx.Tx, agentID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit %d from %s: %w", amount, agentID, ErrNegativeAmount)
	}
	err := affected(tx.ExecContext(ctx, tx.Rebind(
		`UPDATE agents SET balance = balance - ? WHERE id = ? AND balance >= ?`), amount, agentID, amount))
	if errors.Is(err, ErrConflict) {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM agents WHERE id = ?`), agentID); err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrInsufficientFunds
	}
	return err
}

func credit(ctx context.Context, tx *sqlx.Tx, agentID string, amount int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE agents SET balance = balance + ? WHERE id = ?`), amount, agentID)
	return err
}

// shiftTier moves an agent's credit tier one step inside tx.
func (db *DB) shiftTier(ctx context.Context, tx *sqlx.Tx, agentID string, up bool) (economy.Tier, error) {
	var tier economy.Tier
	err := getOne(ctx, tx, &tier, tx.Rebind(`SELECT tier FROM agents WHERE id = ?`+db.forUpdate()), agentID)
	if err != nil {
		return "", err
	}
	next := tier.Downgrade()
	if up {
		next = tier.Upgrade()
	}
	if next == tier {
		return tier, nil
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE agents SET tier = ? WHERE id = ?`), next, agentID)
	return next, err
}

// SetWealth stores a recomputed wealth figure.
func (db *DB) SetWealth(ctx context.Context, agentID string, wealth int64) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(`UPDATE agents SET wealth = ? WHERE id = ?`), wealth, agentID)
	return err
}

// MarkBankrupt flags an agent. It reports false when already flagged.
func (db *DB) MarkBankrupt(ctx context.Context, agentID string) (bool, error) {
	err := affected(db.conn.ExecContext(ctx, db.conn.Rebind(
		`UPDATE agents SET bankrupt = ? WHERE id = ? AND bankrupt = ?`), true, agentID, false))
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	return err == nil, err
}

// SetSeason moves every agent into season.
func (db *DB) SetSeason(ctx context.Context, season int) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(`UPDATE agents SET season = ?`), season)
	return err
}
