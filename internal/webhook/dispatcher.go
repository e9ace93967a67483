// Package webhook delivers outbox events to agents' webhook URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/config"
	"github.com/talgya/tycoon/internal/persistence"
)

// Store is the part of the database the dispatcher needs.
type Store interface {
	PendingEvents(ctx context.Context, limit int, now time.Time) ([]persistence.Event, error)
	MarkDelivered(ctx context.Context, ids []int64, at time.Time) error
	MarkFailed(ctx context.Context, ids []int64, cause string, permanent bool, maxAttempts int, retryAt time.Time) error
	GetAgent(ctx context.Context, id string) (*agents.Agent, error)
}

// Outcome classifies one delivery attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeRetry     Outcome = "retry"
	OutcomeDropped   Outcome = "dropped"
)

// Dispatcher polls the outbox and posts each agent's pending events as one
// batch. Batches for different agents go out concurrently, bounded by the
// configured concurrency.
type Dispatcher struct {
	store  Store
	client *http.Client
	cfg    config.WebhookConfig
	clock  func() time.Time

	// OnResult, if set, is called once per batch.
	OnResult func(outcome Outcome, events int)
}

// NewDispatcher creates a dispatcher over store.
func NewDispatcher(store Store, cfg config.WebhookConfig) *Dispatcher {
	return &Dispatcher{
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		clock:  time.Now,
	}
}

// Run flushes the outbox every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("webhook flush failed", "error", err)
			}
		}
	}
}

// Flush delivers one page of pending events and reports how many were
// delivered.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	pending, err := d.store.PendingEvents(ctx, d.cfg.BatchSize, d.clock())
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var (
		order   []string
		byAgent = make(map[string][]persistence.Event)
	)
	for _, e := range pending {
		if _, ok := byAgent[e.AgentID]; !ok {
			order = append(order, e.AgentID)
		}
		byAgent[e.AgentID] = append(byAgent[e.AgentID], e)
	}

	var (
		mu        sync.Mutex
		delivered int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.cfg.Concurrency, 1))
	for _, agentID := range order {
		events := byAgent[agentID]
		g.Go(func() error {
			ok, err := d.deliver(gctx, agentID, events)
			if ok {
				mu.Lock()
				delivered += len(events)
				mu.Unlock()
			}
			return err
		})
	}
	err = g.Wait()
	return delivered, err
}

// Envelope is the body posted to an agent's webhook.
type Envelope struct {
	AgentID string          `json:"agent_id"`
	SentAt  int64           `json:"sent_at"`
	Events  []EnvelopeEvent `json:"events"`
}

// EnvelopeEvent is one event inside an Envelope.
type EnvelopeEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Day       int             `json:"day"`
	CreatedAt int64           `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// deliver posts one agent's batch and records the result. Only store
// failures are returned as errors.
func (d *Dispatcher) deliver(ctx context.Context, agentID string, events []persistence.Event) (bool, error) {
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	a, err := d.store.GetAgent(ctx, agentID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return false, fmt.Errorf("load agent %s: %w", agentID, err)
	}
	if a == nil || a.WebhookURL == "" {
		return false, d.fail(ctx, events, "no webhook url", true)
	}

	env := Envelope{AgentID: agentID, SentAt: d.clock().UnixMilli()}
	for _, e := range events {
		data := json.RawMessage(e.Payload)
		if !json.Valid(data) {
			data = json.RawMessage("null")
		}
		env.Events = append(env.Events, EnvelopeEvent{
			ID: e.ID, Type: e.Type, Day: e.Day, CreatedAt: e.CreatedAt, Data: data,
		})
	}
	body, err := json.Marshal(env)
	if err != nil {
		return false, d.fail(ctx, events, err.Error(), true)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, d.fail(ctx, events, err.Error(), true)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		slog.Debug("webhook post failed", "agent", agentID, "error", err)
		return false, d.fail(ctx, events, err.Error(), false)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := d.store.MarkDelivered(ctx, ids, d.clock()); err != nil {
			return false, fmt.Errorf("mark delivered: %w", err)
		}
		d.report(OutcomeDelivered, len(ids))
		return true, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, d.fail(ctx, events, resp.Status, true)
	default:
		return false, d.fail(ctx, events, resp.Status, false)
	}
}

func (d *Dispatcher) fail(ctx context.Context, events []persistence.Event, cause string, permanent bool) error {
	ids := make([]int64, len(events))
	attempts := 0
	for i, e := range events {
		ids[i] = e.ID
		attempts = max(attempts, e.Attempts)
	}
	retryAt := d.clock().Add(d.backoff(attempts))
	if err := d.store.MarkFailed(ctx, ids, cause, permanent, d.cfg.MaxAttempts, retryAt); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if permanent {
		d.report(OutcomeDropped, len(ids))
	} else {
		d.report(OutcomeRetry, len(ids))
	}
	return nil
}

// backoff is how long a batch waits after its attempts-th failure:
// RetryBase doubled per earlier attempt, capped at RetryMax.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.RetryBase
	for i := 0; i < attempts && delay < d.cfg.RetryMax; i++ {
		delay *= 2
	}
	return min(delay, d.cfg.RetryMax)
}

func (d *Dispatcher) report(o Outcome, n int) {
	if d.OnResult != nil {
		d.OnResult(o, n)
	}
}
