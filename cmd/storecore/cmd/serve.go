package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/verdant-market/storecore/internal/adapter/inbound/http"
	"github.com/verdant-market/storecore/internal/adapter/outbound/local"
	"github.com/verdant-market/storecore/internal/adapter/outbound/memory"
	"github.com/verdant-market/storecore/internal/adapter/outbound/rest"
	"github.com/verdant-market/storecore/internal/adapter/outbound/sqlite"
	"github.com/verdant-market/storecore/internal/config"
	"github.com/verdant-market/storecore/internal/domain/cart"
	"github.com/verdant-market/storecore/internal/domain/csrf"
	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/favorites"
	"github.com/verdant-market/storecore/internal/domain/monitor"
	"github.com/verdant-market/storecore/internal/domain/ratelimit"
	"github.com/verdant-market/storecore/internal/domain/sanitize"
	"github.com/verdant-market/storecore/internal/domain/session"
	"github.com/verdant-market/storecore/internal/port/outbound"
	"github.com/verdant-market/storecore/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dev server",
	Long: `Start the storecore dev server.

The server wires the session controller, rate limiter, CSRF manager,
cart and favorites engines against the configured store backend, and
exposes /healthz and /metrics on the configured address.

Store backends:
  memory   In-process store, state is lost on exit.
  sqlite   Local database file, survives restarts.
  rest     The hosted record store over HTTPS.

Examples:
  # Start with config file settings
  storecore serve

  # Start in dev mode (sqlite file, debug logging)
  storecore serve --dev

  # Start with a specific config file
  storecore --config /path/to/config.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, sqlite store)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown. stop() restores default
	// signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	return run(ctx, cfg, logger)
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provider := local.NewProvider(logger)
	provider.SetSessionTTL(parseDur(cfg.Auth.MaxSessionAge, 24*time.Hour, "auth.max_session_age", logger))

	if cfg.Auth.SeedFile != "" {
		if err := applySeed(ctx, cfg, store, provider, logger); err != nil {
			return err
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:           parseDur(cfg.RateLimit.Window, ratelimit.DefaultWindow, "rate_limit.window", logger),
		MaxAttempts:      cfg.RateLimit.MaxAttempts,
		BlockDuration:    parseDur(cfg.RateLimit.BlockDuration, ratelimit.DefaultBlockDuration, "rate_limit.block_duration", logger),
		ExemptOperations: cfg.RateLimit.ExemptOperations,
		CleanupInterval:  parseDur(cfg.RateLimit.CleanupInterval, 5*time.Minute, "rate_limit.cleanup_interval", logger),
	}, logger)
	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	tokens := csrf.NewManagerWithClock(
		parseDur(cfg.CSRF.TTL, csrf.DefaultTTL, "csrf.ttl", logger),
		parseDur(cfg.CSRF.RefreshWindow, csrf.DefaultRefreshWindow, "csrf.refresh_window", logger),
		time.Now,
	)

	bus := event.NewBus(logger)

	ctrl := session.NewController(provider, store, limiter, tokens, bus, session.Config{
		RecheckInterval: parseDur(cfg.Auth.RecheckInterval, 5*time.Minute, "auth.recheck_interval", logger),
		MaxSessionAge:   parseDur(cfg.Auth.MaxSessionAge, 24*time.Hour, "auth.max_session_age", logger),
	}, logger)
	ctrl.Start(ctx)
	defer ctrl.Stop()

	cartEngine := cart.NewEngine(store, ctrl, bus, logger)
	defer cartEngine.Close()
	favEngine := favorites.NewEngine(store, ctrl, bus, logger)
	defer favEngine.Close()

	svc := service.NewStorefrontService(sanitize.New(), limiter, tokens, ctrl,
		cartEngine, favEngine, provider, store, bus, logger)

	mon := monitor.New(limiter, ctrl, logger,
		parseDur(cfg.Monitor.SweepInterval, monitor.DefaultInterval, "monitor.sweep_interval", logger))
	mon.Start(ctx)
	defer mon.Stop()

	logger.Info("storecore starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"store_backend", cfg.Store.Backend,
		"rate_limit_max_attempts", cfg.RateLimit.MaxAttempts,
	)

	srv := http.NewServer(cfg.Server.HTTPAddr, Version, svc, mon, prometheus.NewRegistry(), logger)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start() }()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("storecore stopped")
	return nil
}

// openStore creates the configured store backend. The returned func
// releases backend resources and is safe to call for all backends.
func openStore(cfg *config.Config, logger *slog.Logger) (outbound.DataStore, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("store backend: sqlite", "path", cfg.Store.SQLitePath)
		return db, func() { _ = db.Close() }, nil

	case "rest":
		timeout := parseDur(cfg.Store.Timeout, 15*time.Second, "store.timeout", logger)
		client := rest.New(cfg.Store.RESTURL, cfg.Store.RESTAPIKey, rest.WithTimeout(timeout))
		logger.Info("store backend: rest", "url", cfg.Store.RESTURL, "timeout", timeout)
		return client, func() {}, nil

	default:
		logger.Info("store backend: memory")
		return memory.NewDataStore(), func() {}, nil
	}
}

// applySeed loads the YAML seed file and applies it: identities go to
// the local provider, products to the store's catalog.
func applySeed(ctx context.Context, cfg *config.Config, store outbound.DataStore, provider *local.Provider, logger *slog.Logger) error {
	seed, err := local.LoadSeed(cfg.Auth.SeedFile)
	if err != nil {
		return fmt.Errorf("load seed file: %w", err)
	}
	seed.Apply(provider)

	products := seed.ProductRecords()
	if len(products) > 0 {
		switch s := store.(type) {
		case *memory.DataStore:
			s.SeedProducts(products)
		case *sqlite.DataStore:
			if err := s.SeedProducts(ctx, products); err != nil {
				return fmt.Errorf("seed products: %w", err)
			}
		default:
			// The hosted store owns its catalog; seeding it from a
			// local file would fight the real ingestion pipeline.
			logger.Warn("seed products ignored for this backend", "backend", cfg.Store.Backend)
		}
	}

	logger.Info("seed applied",
		"file", cfg.Auth.SeedFile,
		"identities", len(seed.Identities),
		"products", len(products),
	)
	return nil
}

// parseDur converts a config duration string to time.Duration.
// Invalid values fall back to the default with a warning, matching the
// lenient handling of already-validated config elsewhere.
func parseDur(value string, fallback time.Duration, field string, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default", "field", field, "value", value, "default", fallback)
		return fallback
	}
	return d
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
