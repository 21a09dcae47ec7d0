// Package cli provides the process setup shared by the ledger commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledger/internal/amqp"
	"ledger/internal/config"
	applog "ledger/internal/log"
	"ledger/internal/storage"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger. Unknown levels fall back to info.
func SetupLogger(level string) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	cfg := applog.DefaultConfig()
	cfg.Level = lvl
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info logging", applog.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads configuration, sets up logging at the configured level
// and validates the rest. It exits the process on validation failure.
func LoadConfig() (*config.Config, *applog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitStore opens the expense store described by cfg.
// Returns the store or exits the process on failure.
func InitStore(ctx context.Context, logger *applog.Logger, cfg *config.Config) *storage.Store {
	store, err := storage.Open(ctx, storage.Options{
		Path:         cfg.DBPath,
		BusyTimeout:  cfg.BusyTimeout,
		ReadOnly:     cfg.ReadOnly,
		SkipSelfTest: !cfg.SelfTest,
		Logger:       logger.Base(),
	})
	if err != nil {
		logger.Error("Failed to initialize expense store", applog.FieldError, err, "path", cfg.DBPath)
		os.Exit(1)
	}
	return store
}

// InitPublisher connects to the broker when AMQP_URL is set. It returns nil
// when change events are disabled or the broker cannot be reached; the
// ledger keeps working without them.
func InitPublisher(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, change events will not be published")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		logger.Base())
	if err != nil {
		logger.Warn("Failed to connect to AMQP, change events disabled", applog.FieldError, err)
		return nil
	}
	return client
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
