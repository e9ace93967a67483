package persistence

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Event is one outbox row addressed to a single agent.
type Event struct {
	ID          int64  `db:"id" json:"id"`
	AgentID     string `db:"agent_id" json:"agent_id"`
	Type        string `db:"type" json:"type"`
	Payload     string `db:"payload" json:"payload"`
	Day         int    `db:"day" json:"day"`
	CreatedAt   int64  `db:"created_at" json:"created_at"`
	Attempts    int    `db:"attempts" json:"attempts"`
	DeliveredAt *int64 `db:"delivered_at" json:"delivered_at,omitempty"`
	Dead        bool   `db:"dead" json:"dead"`
	LastError   string `db:"last_error" json:"last_error,omitempty"`
	// NextAttemptAt holds a failed event back until then.
	NextAttemptAt *int64 `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
}

const eventColumns = `id, agent_id, type, payload, day, created_at, attempts, delivered_at, dead, last_error, next_attempt_at`

// AppendEvents writes events to the outbox in one transaction.
func (db *DB) AppendEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range events {
			_, err := tx.ExecContext(ctx, tx.Rebind(
				`INSERT INTO events (agent_id, type, payload, day, created_at, dead) VALUES (?, ?, ?, ?, ?, ?)`),
				e.AgentID, e.Type, e.Payload, e.Day, e.CreatedAt, false)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingEvents returns undelivered, live events that are due at now,
// oldest first. Events backing off after a failure are skipped.
func (db *DB) PendingEvents(ctx context.Context, limit int, now time.Time) ([]Event, error) {
	var out []Event
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+eventColumns+` FROM events
		 WHERE delivered_at IS NULL AND dead = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY id LIMIT ?`), false, now.UnixMilli(), limit)
	return out, err
}

// RecentEvents returns an agent's latest events, newest first.
func (db *DB) RecentEvents(ctx context.Context, agentID string, limit int) ([]Event, error) {
	var out []Event
	err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(
		`SELECT `+eventColumns+` FROM events WHERE agent_id = ? ORDER BY id DESC LIMIT ?`), agentID, limit)
	return out, err
}

// MarkDelivered stamps events as delivered.
func (db *DB) MarkDelivered(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE events SET delivered_at = ?, attempts = attempts + 1 WHERE id IN (?)`, at.UnixMilli(), ids)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, db.conn.Rebind(q), args...)
	return err
}

// MarkFailed records a failed attempt and holds the events back until
// retryAt. Events that reached maxAttempts, or that failed permanently, are
// marked dead and never retried.
func (db *DB) MarkFailed(ctx context.Context, ids []int64, cause string, permanent bool, maxAttempts int, retryAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(
		`UPDATE events SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?,
		 dead = CASE WHEN ? OR attempts + 1 >= ? THEN ? ELSE dead END
		 WHERE id IN (?)`, cause, retryAt.UnixMilli(), permanent, maxAttempts, true, ids)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, db.conn.Rebind(q), args...)
	return err
}

// OutboxDepth counts events still waiting for delivery.
func (db *DB) OutboxDepth(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, db.conn.Rebind(
		`SELECT COUNT(*) FROM events WHERE delivered_at IS NULL AND dead = ?`), false)
	return n, err
}
