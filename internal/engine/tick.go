// Package engine provides the tick-based simulation loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the orchestrator state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Engine drives the simulation forward one simulated day per fire. A single
// goroutine owns the ticker, so days never overlap. Fires that arrive while
// a day is running collapse into at most one queued fire; missed fires are
// never replayed.
type Engine struct {
	Interval  time.Duration // Wall-clock length of one simulated day
	Immediate bool          // Run one day as soon as Run starts

	// OnDay processes one simulated day. It is populated during setup.
	OnDay func(ctx context.Context, day uint64)

	mu           sync.Mutex
	day          uint64
	state        State
	paused       bool
	lastTickAt   time.Time
	lastDuration time.Duration
	running      bool

	trigger chan struct{}
	stop    chan struct{}
	stopped sync.Once
}

// Status is a snapshot of the orchestrator.
type Status struct {
	Day          uint64        `json:"day"`
	State        State         `json:"state"`
	Paused       bool          `json:"paused"`
	Interval     time.Duration `json:"interval"`
	LastTickAt   time.Time     `json:"last_tick_at"`
	LastDuration time.Duration `json:"last_duration"`
}

// NewEngine creates an engine that resumes after day startDay.
func NewEngine(interval time.Duration, startDay uint64) *Engine {
	return &Engine{
		Interval: interval,
		day:      startDay,
		state:    StateIdle,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Run starts the simulation loop. Blocks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	slog.Info("simulation engine started", "day", e.Day(), "interval", e.Interval)
	if e.Immediate {
		e.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "day", e.Day())
			return ctx.Err()
		case <-e.stop:
			slog.Info("simulation engine stopped", "day", e.Day())
			return nil
		case <-ticker.C:
			if e.Paused() {
				continue
			}
			e.step(ctx)
		case <-e.trigger:
			e.step(ctx)
		}
	}
}

// Trigger queues one day to run as soon as the loop is free. Manual
// triggers run even while paused. It reports false when a fire is already
// queued.
func (e *Engine) Trigger() bool {
	select {
	case e.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop halts the simulation loop after the current day finishes.
func (e *Engine) Stop() {
	e.stopped.Do(func() { close(e.stop) })
}

// Pause suspends timer-driven days.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	slog.Info("simulation paused", "day", e.Day())
}

// Resume re-enables timer-driven days.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	slog.Info("simulation resumed", "day", e.Day())
}

// Paused reports whether timer fires are being ignored.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Day returns the last day started.
func (e *Engine) Day() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.day
}

// Status returns a snapshot of the orchestrator.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Day:          e.day,
		State:        e.state,
		Paused:       e.paused,
		Interval:     e.Interval,
		LastTickAt:   e.lastTickAt,
		LastDuration: e.lastDuration,
	}
}

// step advances the simulation by one day.
func (e *Engine) step(ctx context.Context) {
	e.mu.Lock()
	e.day++
	day := e.day
	e.state = StateRunning
	e.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("simulation day panicked", "day", day, "panic", r)
		}
		e.mu.Lock()
		e.state = StateIdle
		e.lastTickAt = start
		e.lastDuration = time.Since(start)
		e.mu.Unlock()
	}()

	if e.OnDay != nil {
		e.OnDay(ctx, day)
	}
}

// SimDate returns a human-readable date for a simulated day.
func SimDate(day uint64, seasonDays int) string {
	if day == 0 || seasonDays <= 0 {
		return fmt.Sprintf("Day %d", day)
	}
	season := (day-1)/uint64(seasonDays) + 1
	dayOfSeason := (day-1)%uint64(seasonDays) + 1
	return fmt.Sprintf("Season %d Day %d", season, dayOfSeason)
}

// SeasonOf returns the season a day belongs to, starting at 1.
func SeasonOf(day uint64, seasonDays int) int {
	if day == 0 || seasonDays <= 0 {
		return 1
	}
	return int((day-1)/uint64(seasonDays)) + 1
}
