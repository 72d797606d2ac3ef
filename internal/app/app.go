// Package app wires configuration, logging, storage, and the learning
// engine into one runnable unit shared by every command.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/a-kowalski/mindkeep/internal/analysis"
	"github.com/a-kowalski/mindkeep/internal/config"
	"github.com/a-kowalski/mindkeep/internal/consolidate"
	"github.com/a-kowalski/mindkeep/internal/learning"
	"github.com/a-kowalski/mindkeep/internal/llm"
	"github.com/a-kowalski/mindkeep/internal/logging"
	"github.com/a-kowalski/mindkeep/internal/memctx"
	"github.com/a-kowalski/mindkeep/internal/storage"
	"go.uber.org/zap"
)

// App holds the core components of the application.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *storage.DB

	Provider llm.Provider
	Learning *learning.Service
	Context  *memctx.Builder

	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewApp initializes and returns a new App instance.
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.NewDB(cfg)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis provider: %w", err)
	}

	analyzer := analysis.NewLLMAnalyzer(provider)

	consolidator := consolidate.NewConsolidator(db, consolidate.Thresholds{
		RecentMessages: cfg.ConsolidationThreshold,
		ActiveFacts:    cfg.ActiveFactCeiling,
	}, logger)

	service := learning.NewService(db, analyzer, provider, consolidator, learning.Options{
		Enabled:         cfg.LearningEnabled,
		UpdateInterval:  cfg.LearningInterval,
		AnalysisWindow:  cfg.AnalysisWindow,
		AnalysisTimeout: time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Provider: provider,
		Learning: service,
		Context:  memctx.NewBuilder(db, logger),
		Ctx:      ctx,
		Cancel:   cancel,
	}, nil
}

// Close gracefully shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		} else {
			a.Logger.Info("Database connection closed.")
		}
	}
	if a.Logger != nil {
		if err := a.Logger.Sync(); err != nil {
			// Sync on stderr sinks fails on some platforms; only surface the rest.
			if !strings.Contains(err.Error(), "sync /dev/stderr: invalid argument") &&
				!strings.Contains(err.Error(), "sync <file descriptor>: bad file descriptor") &&
				!strings.Contains(err.Error(), "sync /dev/stderr: inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}

// ContextWithLogger returns a new context with the application's logger.
func (a *App) ContextWithLogger(ctx context.Context) context.Context {
	return logging.ContextWithLogger(ctx, a.Logger)
}

// LoggerFromContext retrieves the logger from the given context, or returns the default app logger.
func (a *App) LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := logging.LoggerFromContext(ctx); ok {
		return logger
	}
	return a.Logger
}
