package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/tycoon/internal/agents"
)

const populationColumns = `agent_id, total, employed, unemployed, satisfaction, growth_rate,
	food_met, clothing_met, housing_met, entertainment_met, shortage, updated_at`

func insertPopulation(ctx context.Context, tx *sqlx.Tx, p *agents.Population) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO population (`+populationColumns+`)
		VALUES (:agent_id, :total, :employed, :unemployed, :satisfaction, :growth_rate,
		:food_met, :clothing_met, :housing_met, :entertainment_met, :shortage, :updated_at)`, p)
	if err != nil {
		return fmt.Errorf("insert population %s: %w", p.AgentID, err)
	}
	return nil
}

// GetPopulation loads an agent's population.
func (db *DB) GetPopulation(ctx context.Context, agentID string) (*agents.Population, error) {
	p := &agents.Population{}
	err := getOne(ctx, db.conn, p, db.conn.Rebind(`SELECT `+populationColumns+` FROM population WHERE agent_id = ?`), agentID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPopulations returns every population ordered by agent.
func (db *DB) ListPopulations(ctx context.Context) ([]*agents.Population, error) {
	var out []*agents.Population
	err := db.conn.SelectContext(ctx, &out, `SELECT `+populationColumns+` FROM population ORDER BY agent_id`)
	return out, err
}

// MutatePopulation locks the row, applies fn and writes the result back.
// fn returning an error aborts without writing.
func (db *DB) MutatePopulation(ctx context.Context, agentID string, fn func(p *agents.Population) error) (*agents.Population, error) {
	p := &agents.Population{}
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := getOne(ctx, tx, p, tx.Rebind(`SELECT `+populationColumns+` FROM population WHERE agent_id = ?`+db.forUpdate()), agentID)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		return updatePopulation(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func updatePopulation(ctx context.Context, tx *sqlx.Tx, p *agents.Population) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE population SET
		total = :total, employed = :employed, unemployed = :unemployed,
		satisfaction = :satisfaction, growth_rate = :growth_rate,
		food_met = :food_met, clothing_met = :clothing_met, housing_met = :housing_met,
		entertainment_met = :entertainment_met, shortage = :shortage, updated_at = :updated_at
		WHERE agent_id = :agent_id`, p)
	return err
}

// employ moves n people into jobs with a single guarded update.
func employ(ctx context.Context, tx *sqlx.Tx, agentID string, n int) error {
	err := affected(tx.ExecContext(ctx, tx.Rebind(
		`UPDATE population SET employed = employed + ?, unemployed = unemployed - ?
		 WHERE agent_id = ? AND unemployed >= ?`), n, n, agentID, n))
	if errors.Is(err, ErrConflict) {
		return ErrInsufficientResource
	}
	return err
}

// release moves n people out of jobs, clamped to the employed pool.
func release(ctx context.Context, tx *sqlx.Tx, agentID string, n int) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE population SET
		 unemployed = unemployed + CASE WHEN employed < ? THEN employed ELSE ? END,
		 employed = CASE WHEN employed < ? THEN 0 ELSE employed - ? END
		 WHERE agent_id = ?`), n, n, n, n, agentID)
	return err
}
