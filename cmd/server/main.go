// Package main starts the trading engine: the periodic decision loop, the
// risk engine, and the operator API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/halcyon-desk/trading-engine/internal/alpaca"
	"github.com/halcyon-desk/trading-engine/internal/analyst"
	"github.com/halcyon-desk/trading-engine/internal/api"
	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/internal/config"
	"github.com/halcyon-desk/trading-engine/internal/data"
	"github.com/halcyon-desk/trading-engine/internal/events"
	"github.com/halcyon-desk/trading-engine/internal/execution"
	"github.com/halcyon-desk/trading-engine/internal/indicators"
	"github.com/halcyon-desk/trading-engine/internal/orchestrator"
	"github.com/halcyon-desk/trading-engine/internal/portfolio"
	"github.com/halcyon-desk/trading-engine/internal/signals"
	"github.com/halcyon-desk/trading-engine/internal/store"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := setupLogger(settings.LogLevel)
	defer logger.Sync()

	logger.Info("trading engine starting",
		zap.String("mode", settings.Mode),
		zap.String("watchlist", settings.Watchlist),
		zap.Int("interval_minutes", settings.SignalIntervalMinutes))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(ctx, settings.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}

	journal := audit.New(db, logger)
	bus := events.NewBus(logger)

	broker := alpaca.NewClient(
		settings.AlpacaBaseURL, settings.AlpacaDataURL,
		settings.AlpacaAPIKey, settings.AlpacaSecretKey, logger)
	yahoo := data.NewYahooFallback()
	ingestion := data.NewService(broker, db, yahoo.DailyBars, logger)

	indicatorEngine := indicators.NewEngine(db, logger)

	model, err := signals.LoadModel(settings.ModelDir)
	if err != nil {
		logger.Warn("model load failed, using heuristic scoring", zap.Error(err))
	}
	signalEngine := signals.NewEngine(db, journal, model, logger)

	reviewer := analyst.NewClient(
		settings.AnthropicAPIKey, settings.ClaudeModel,
		settings.MaxReviewsPerDay, journal, logger)

	// The in-memory breaker level is advisory; reconcile it against
	// persisted risk events on startup.
	level, err := db.LatestCircuitLevel(ctx)
	if err != nil {
		logger.Fatal("circuit level recovery failed", zap.Error(err))
	}
	riskManager := execution.NewRiskManager(settings, db, journal, level, logger)
	executor := execution.NewExecutor(broker, db, riskManager, journal, logger)
	tracker := portfolio.NewTracker(broker, db, logger)

	orch := orchestrator.New(settings, orchestrator.Deps{
		Data:       ingestion,
		Indicators: indicatorEngine,
		Signals:    signalEngine,
		Analyst:    reviewer,
		Risk:       riskManager,
		Executor:   executor,
		Portfolio:  tracker,
		Store:      db,
		Journal:    journal,
		Bus:        bus,
	}, logger)

	server := api.NewServer(settings, db, orch, reviewer, bus, logger)

	if err := orch.Start(ctx); err != nil {
		logger.Fatal("orchestrator start failed", zap.Error(err))
	}
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server exited", zap.Error(err))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	orch.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", zap.Error(err))
	}

	logger.Info("trading engine stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
