package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	applog "ledger/internal/log"
	"ledger/internal/mcp"
	"ledger/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, logger := cli.LoadConfig()

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	store := cli.InitStore(ctx, logger, cfg)

	opts := services.Options{
		CategoriesPath: cfg.CategoriesPath,
		Logger:         logger,
	}
	// A nil *amqp.Client must not become a non-nil interface.
	if publisher := cli.InitPublisher(logger, cfg); publisher != nil {
		opts.Publisher = publisher
	}
	svc := services.NewExpenseService(store, opts)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close expense service", applog.FieldError, err)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{Ledger: svc, Logger: logger})
	if err != nil {
		logger.Error("Failed to create MCP server", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:      ":" + cfg.Port,
		MCP:       mcpServer,
		Store:     store,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"db_path", store.Path(),
			"read_only", store.ReadOnly())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down ledger server", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
