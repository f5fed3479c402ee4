package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/config"
	"mt5-fvg-bot/internal/api"
	"mt5-fvg-bot/internal/cache"
	"mt5-fvg-bot/internal/confluence"
	"mt5-fvg-bot/internal/controller"
	"mt5-fvg-bot/internal/events"
	"mt5-fvg-bot/internal/execution"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/market"
	"mt5-fvg-bot/internal/predictor"
	"mt5-fvg-bot/internal/quality"
	"mt5-fvg-bot/internal/risk"
	"mt5-fvg-bot/internal/session"
	sig "mt5-fvg-bot/internal/signal"
	"mt5-fvg-bot/internal/sizing"
	"mt5-fvg-bot/internal/store"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	genConfig := flag.Bool("generate-config", false, "write a sample config file and exit")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSample(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample config written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().Str("config", *configPath).Bool("dry_run", cfg.Controller.DryRun).
		Bool("mock_mode", cfg.Bridge.MockMode).Msg("Starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Market data and execution: real bridge or simulated.
	var (
		data      market.DataClient
		executor  execution.Executor
		account   execution.AccountProvider
		positions execution.PositionProvider
	)
	if cfg.Bridge.MockMode {
		data = market.NewMockClient(time.Now().UnixNano())
		mock := execution.NewMockExecutor()
		executor, account, positions = mock, mock, mock
		logger.Warn().Msg("Mock mode: simulated market data and orders")
	} else {
		data = market.NewMT5Client(cfg.Bridge.BaseURL, cfg.BridgeTimeout(), logger)
		mt5 := execution.NewMT5Executor(cfg.Bridge.BaseURL, cfg.BridgeTimeout(), logger)
		executor, account, positions = mt5, mt5, mt5
	}
	executor = execution.NewRetryingExecutor(executor, 3, 2*time.Second, logger)

	var db *store.DB
	if cfg.Database.Enabled {
		db, err = store.NewDB(cfg.Database.Config, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Migrations failed")
		}
	}

	var cacheSvc *cache.Service
	if cfg.Redis.Enabled {
		cacheSvc = cache.NewService(cfg.Redis.Config, logger)
	} else {
		cacheSvc = cache.NewMemoryService(logger)
	}
	defer cacheSvc.Close()

	var model *predictor.Model
	if m, err := predictor.LoadFile(cfg.ModelPath); err == nil {
		model = m
		logger.Info().Str("path", cfg.ModelPath).Int("trained_on", m.TrainedOn()).
			Msg("Fill model loaded")
	} else {
		logger.Warn().Err(err).Msg("No fill model, using heuristic fallback")
	}

	scorer, err := quality.NewScorer(cfg.Quality, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid quality weights")
	}

	bus := events.NewBus()
	deps := controller.Deps{
		Data:       data,
		Detector:   fvg.NewDetector(cfg.Detector, logger),
		Aggregator: confluence.NewAggregator(cfg.Confluence),
		Scorer:     scorer,
		Predictor:  predictor.New(model, logger),
		Generator:  sig.NewGenerator(cfg.Signal, logger),
		Gate:       risk.NewGate(cfg.Risk, logger),
		Sizer:      sizing.NewSizer(cfg.Sizing, logger),
		Sessions:   session.NewTracker(cfg.Sessions, cfg.Cycle, logger),
		Executor:   executor,
		Account:    account,
		Positions:  positions,
		Cache:      cacheSvc,
		Bus:        bus,
	}
	if db != nil {
		deps.DB = db
	}

	ctrl := controller.New(cfg.Controller, deps, logger)
	if err := ctrl.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Initialization failed")
	}
	if err := ctrl.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Start failed")
	}

	server := api.NewServer(api.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, ctrl, bus, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("API server stopped")
			stop()
		}
	}()

	ctrl.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API shutdown incomplete")
	}
	logger.Info().Msg("Stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
