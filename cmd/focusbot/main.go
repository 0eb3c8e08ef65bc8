package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/focusguild/focusbot/internal/bot"
	"github.com/focusguild/focusbot/internal/cache"
	"github.com/focusguild/focusbot/internal/config"
	"github.com/focusguild/focusbot/internal/health"
	"github.com/focusguild/focusbot/internal/metrics"
	"github.com/focusguild/focusbot/internal/mgmt"
	"github.com/focusguild/focusbot/internal/notify"
	"github.com/focusguild/focusbot/internal/quota"
	"github.com/focusguild/focusbot/internal/reset"
	"github.com/focusguild/focusbot/internal/scoring"
	"github.com/focusguild/focusbot/internal/session"
	"github.com/focusguild/focusbot/internal/store"
	"github.com/focusguild/focusbot/internal/task"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = logger

	logger.Info().
		Str("environment", cfg.Environment).
		Str("db_path", cfg.DBPath).
		Str("admin_addr", cfg.AdminListenAddr).
		Int("daily_task_limit", cfg.DailyTaskLimit).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting focusbot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Persistence
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Scoring model, optionally from YAML
	scoringCfg := scoring.DefaultConfig()
	if cfg.ScoringConfigPath != "" {
		scoringCfg, err = scoring.LoadConfig(cfg.ScoringConfigPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ScoringConfigPath).Msg("failed to load scoring config")
		}
	}

	// Core services
	queryCache := cache.New(cfg.CacheCapacity, cfg.CacheTTL)
	m := metrics.New()
	registry := session.NewRegistry()
	scorer := scoring.NewService(st, scoringCfg, logger)
	tracker := session.NewTracker(registry, scorer, cfg.GraceWindow, logger)
	quotas := quota.NewManager(st, queryCache, cfg.DailyTaskLimit, m, logger)
	tasks := task.NewService(st, quotas, scorer, logger)

	// Slack surface (optional; without tokens the bot runs admin-only)
	var notifier notify.Notifier = notify.NopNotifier{}
	var slackApp *bot.App
	if cfg.SlackEnabled() {
		handler := bot.NewHandler(tasks, tracker, scorer, st, registry, queryCache, m, cfg.AdminUserIDs, logger)
		slackApp = bot.NewApp(cfg.SlackBotToken, cfg.SlackAppToken, handler, logger)
		notifier = notify.NewSlackNotifier(slackApp.Client(), logger)
	} else {
		logger.Info().Msg("Slack not configured, running in admin-only mode")
	}

	// Daily reset
	engine := reset.NewEngine(registry, scorer, tracker, st, queryCache, notifier, m, logger)
	scheduler := reset.NewScheduler(engine, cfg.PollInterval, cfg.ResetHour, cfg.ResetMinute, logger)
	scheduler.Start(ctx)

	// Health probes
	checker := health.NewChecker(logger)
	checker.Register("store", health.PingProbe(st.Ping))

	// Admin API
	handlers := mgmt.NewHandlers(scheduler, registry, checker, logger)
	adminServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.AdminListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.AdminAuthMode,
			APIKey:    cfg.AdminAPIKey,
			JWTSecret: cfg.AdminJWTSecret,
		},
	}, handlers, m, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminServer.Start(); err != nil {
			logger.Error().Err(err).Msg("admin API server error")
		}
	}()

	if slackApp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := slackApp.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Slack Socket Mode error")
			}
		}()
	}

	// Keep the session gauges fresh for scraping
	wg.Add(1)
	go func() {
		defer wg.Done()
		gaugeLoop(ctx, registry, m)
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	scheduler.Stop()
	tracker.Stop()
	if err := adminServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("admin API shutdown error")
	}

	wg.Wait()
	logger.Info().Msg("focusbot stopped")
}

// gaugeLoop refreshes the session gauges every few seconds so scrapes
// see the registry's current state.
func gaugeLoop(ctx context.Context, registry *session.Registry, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, grace := registry.Counts()
			m.SetSessionGauges(active, grace)
		}
	}
}
