// Command tycoond runs the Agent Tycoon economy: the daily tick engine, the
// HTTP API agents play through and the webhook dispatcher.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/tycoon/internal/api"
	"github.com/talgya/tycoon/internal/config"
	"github.com/talgya/tycoon/internal/engine"
	"github.com/talgya/tycoon/internal/game"
	"github.com/talgya/tycoon/internal/metrics"
	"github.com/talgya/tycoon/internal/persistence"
	"github.com/talgya/tycoon/internal/webhook"
)

func main() {
	configPath := flag.String("config", os.Getenv("TYCOON_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("tycoond failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("Agent Tycoon starting",
		"dialect", cfg.Database.Dialect,
		"day_length", cfg.DayLength(),
		"season_days", cfg.Game.SeasonDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(ctx, persistence.Dialect(cfg.Database.Dialect), cfg.Database.DSN, persistence.Options{
		PriceTTL:  cfg.Cache.PriceTTL,
		PriceSize: cfg.Cache.PriceSize,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "dialect", db.Dialect())

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(db, cfg)
	svc := game.NewService(db, sim, cfg)
	if err := svc.SeedWorld(ctx); err != nil {
		return fmt.Errorf("seed world: %w", err)
	}
	startDay, err := sim.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if startDay > 0 {
		slog.Info("resuming", "day", startDay, "date", engine.SimDate(startDay, cfg.Game.SeasonDays), "season", sim.Season())
	}

	eng := engine.NewEngine(cfg.DayLength(), startDay)
	eng.Immediate = cfg.Game.TickOnStart
	eng.OnDay = func(ctx context.Context, day uint64) {
		sim.TickDay(ctx, day)
	}

	// ── Metrics ───────────────────────────────────────────────────────
	m := metrics.New()
	m.WatchOutbox(func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := db.OutboxDepth(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
	sim.Observer = m

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("TYCOON_ADMIN_KEY not set, admin endpoints will be disabled")
	}
	srv := api.NewServer(svc, eng, cfg.Server)
	srv.Metrics = m.Handler()
	sim.OnReport = srv.Stream.Publish
	srv.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	if cfg.Webhook.Enabled {
		d := webhook.NewDispatcher(db, cfg.Webhook)
		d.OnResult = m.ObserveWebhook
		g.Go(func() error {
			return d.Run(ctx)
		})
	}

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)

	<-ctx.Done()
	slog.Info("shutting down")
	eng.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("stopped", "day", eng.Day())
	return nil
}
