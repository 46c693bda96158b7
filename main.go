package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"serpmonitor/config"
	"serpmonitor/db"
	"serpmonitor/handlers"
	"serpmonitor/middleware"
	"serpmonitor/models"
	"serpmonitor/services"
)

func main() {
	app := &cli.App{
		Name:  "serpmonitor",
		Usage: "SerpApi parser and upstream health monitor",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the recurring scheduler",
				Action: serveAction,
			},
			{
				Name:  "scan",
				Usage: "scan configured engines once and print the results as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "engine", Usage: "scan only this engine"},
				},
				Action: scanAction,
			},
			{
				Name:   "migrate",
				Usage:  "create missing tables and indexes",
				Action: migrateAction,
			},
			{
				Name:   "engines",
				Usage:  "list monitored targets and the section tables of every engine",
				Action: enginesAction,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("serpmonitor failed", "error", err)
		os.Exit(1)
	}
}

// newLogger logs JSON for the long-running server and text on stderr for
// one-shot commands, whose stdout carries their output.
func newLogger(server bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("LOG_LEVEL") == "debug" {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if server {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// app holds the wiring shared by every command.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	store    *db.Store
	targets  *services.ConfigTargetProvider
	alerts   *services.AlertService
	scanner  *services.Orchestrator
}

func setup(ctx context.Context, server bool) (*app, error) {
	logger := newLogger(server)
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := db.InitDB(settings.DBDriver, settings.DatabaseURL); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.ApplySchema(ctx, db.GetDB()); err != nil {
		return nil, err
	}
	logger.Info("database schema verified", "driver", settings.DBDriver)

	store := db.NewStore(db.GetDB(), settings.DBDriver)

	base := config.DefaultTargets()
	if settings.TargetsFile != "" {
		if base, err = config.LoadTargets(settings.TargetsFile); err != nil {
			return nil, err
		}
	}
	targets := services.NewTargetProvider(base, store)

	alerts := services.NewAlertService(store, settings.AlertDedupe, logger)
	if settings.Features.SlackAlertsEnabled && settings.SlackWebhookURL != "" {
		alerts.Slack = services.NewSlackNotifier(settings.SlackWebhookURL)
	}
	if settings.Features.EmailAlertsEnabled && settings.SendGridAPIKey != "" && settings.AlertEmail != "" {
		alerts.Email = services.NewEmailNotifier(settings.SendGridAPIKey, settings.AlertEmail)
	}

	scanner := services.NewOrchestrator(services.OrchestratorConfig{
		API:         services.NewSerpAPIClient(settings.APIRatePerSec),
		Fetcher:     services.NewHTTPFetcher(),
		History:     store,
		Targets:     targets,
		Alerts:      alerts,
		APIKey:      settings.APIKey,
		Logger:      logger,
		Concurrency: settings.ScanConcurrency,
	})

	logger.Info("features",
		"monitoring", settings.Features.MonitoringEnabled,
		"rate_limit", settings.Features.RateLimitEnabled,
		"email_alerts", alerts.Email != nil,
		"slack_alerts", alerts.Slack != nil,
	)

	return &app{
		settings: settings,
		logger:   logger,
		store:    store,
		targets:  targets,
		alerts:   alerts,
		scanner:  scanner,
	}, nil
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer db.GetDB().Close()
	s := a.settings

	var sched *services.Scheduler
	if s.Features.MonitoringEnabled {
		if err := s.Validate(); err != nil {
			a.logger.Warn("scheduler disabled", "error", err)
		} else {
			sched = services.NewScheduler(a.scanner, s.Interval, a.logger)
			sched.Pruner = a.store
			if err := sched.Start(ctx); err != nil {
				return err
			}
			go func() {
				if err, ok := <-sched.Err(); ok && err != nil {
					a.logger.Error("scheduler halted", "error", err)
				}
			}()
		}
	}

	r := gin.New()
	if err := r.SetTrustedProxies(s.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	r.Use(middleware.RequestLogger(a.logger), middleware.SecurityHeaders(gin.Mode() == gin.ReleaseMode), gin.Recovery())

	var limiter gin.HandlerFunc
	if s.Features.RateLimitEnabled {
		rl := middleware.NewRateLimiter(100, time.Minute)
		go rl.RunCleanup(ctx, 5*time.Minute)
		limiter = rl.Middleware()
	}

	h := handlers.New(a.store, db.GetDB(), a.scanner, a.targets, a.logger)
	h.MonitoringEnabled = s.Features.MonitoringEnabled
	h.IntervalHours = int(s.Interval / time.Hour)
	h.Register(r, limiter)

	srv := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "port", s.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown", "error", err)
		}
	}

	if sched != nil {
		sched.Stop()
	}
	a.alerts.Wait()
	return nil
}

func scanAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer db.GetDB().Close()

	results, err := a.scanner.ScanNow(ctx, c.String("engine"))
	if err != nil {
		return err
	}
	a.alerts.Wait()

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func migrateAction(c *cli.Context) error {
	a, err := setup(c.Context, false)
	if err != nil {
		return err
	}
	a.logger.Info("migrations applied")
	return db.GetDB().Close()
}

func enginesAction(c *cli.Context) error {
	a, err := setup(c.Context, false)
	if err != nil {
		return err
	}
	defer db.GetDB().Close()

	targets, err := a.targets.ListTargets(c.Context)
	if err != nil {
		return err
	}

	type engineView struct {
		Name     string               `json:"engine"`
		Known    bool                 `json:"known"`
		Target   *models.TargetConfig `json:"target,omitempty"`
		Sections config.EngineSpec    `json:"sections"`
	}
	views := []engineView{}
	seen := map[string]bool{}
	for i := range targets {
		t := &targets[i]
		spec, ok := config.Engine(t.Engine)
		views = append(views, engineView{Name: t.Engine, Known: ok, Target: t, Sections: spec})
		seen[t.Engine] = true
	}
	for _, name := range config.EngineNames() {
		if seen[name] {
			continue
		}
		spec, _ := config.Engine(name)
		views = append(views, engineView{Name: name, Known: true, Sections: spec})
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}
