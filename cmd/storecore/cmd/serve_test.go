package cmd

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/verdant-market/storecore/internal/adapter/outbound/memory"
	"github.com/verdant-market/storecore/internal/adapter/outbound/sqlite"
	"github.com/verdant-market/storecore/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseDur(t *testing.T) {
	t.Parallel()

	logger := testLogger()

	if got := parseDur("15m", time.Hour, "f", logger); got != 15*time.Minute {
		t.Errorf("parseDur(15m) = %v, want 15m", got)
	}
	if got := parseDur("garbage", time.Hour, "f", logger); got != time.Hour {
		t.Errorf("parseDur(garbage) = %v, want fallback 1h", got)
	}
	if got := parseDur("-5m", time.Hour, "f", logger); got != time.Hour {
		t.Errorf("parseDur(-5m) = %v, want fallback 1h", got)
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	logger := testLogger()

	var cfg config.Config
	cfg.SetDefaults()
	store, closeStore, err := openStore(&cfg, logger)
	if err != nil {
		t.Fatalf("openStore(memory) error: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*memory.DataStore); !ok {
		t.Errorf("openStore(memory) = %T, want *memory.DataStore", store)
	}

	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = t.TempDir() + "/store.db"
	store, closeStore, err = openStore(&cfg, logger)
	if err != nil {
		t.Fatalf("openStore(sqlite) error: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*sqlite.DataStore); !ok {
		t.Errorf("openStore(sqlite) = %T, want *sqlite.DataStore", store)
	}
}
