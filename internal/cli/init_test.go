package cli

import (
	"context"
	"log/slog"
	"testing"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestSetupLogger(t *testing.T) {
	restoreDefaultLogger(t)

	tests := []struct {
		level    string
		debug    bool
		infoOrUp bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"", false, true},
		{"bogus", false, true},
		{"error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(tt.level)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.infoOrUp {
				t.Errorf("info enabled = %v, want %v", got, tt.infoOrUp)
			}
		})
	}
}

func TestLoadConfig_LogLevelFromConfig(t *testing.T) {
	restoreDefaultLogger(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LEDGER_DB_PATH", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("LEDGER_BUSY_TIMEOUT", "")

	cfg, logger := LoadConfig()

	if cfg.LogLevel != "debug" {
		t.Fatalf("cfg.LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger ignores the configured level")
	}
}
