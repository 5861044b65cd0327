package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/config"
	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/storage/csvstore"
	"github.com/hazyhaar/redflag/internal/storage/pgstore"
	"github.com/hazyhaar/redflag/internal/storage/sqlitestore"
	"github.com/hazyhaar/redflag/internal/survey"
	"github.com/hazyhaar/redflag/pkg/audit"
	"github.com/hazyhaar/redflag/pkg/trace"
)

// app holds what every subcommand needs: config, the storage port and the
// survey service on top of it.
type app struct {
	cfg     *config.Config
	store   storage.Store
	catalog *catalog.Catalog
	survey  *survey.Service
	audit   *audit.StoreLogger
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	tolerance, err := decimal.NewFromString(cfg.Survey.DesyncTolerance)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("parsing desync_tolerance: %w", err)
	}
	comparison, err := decimal.NewFromString(cfg.Survey.ComparisonDefault)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("parsing comparison_default: %w", err)
	}
	if cfg.Survey.SeedCatalog {
		n, err := catalog.Seed(ctx, store)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("seeding catalog: %w", err)
		}
		if n > 0 {
			log.Printf("catalog: seeded %d rows", n)
		}
	}
	return &app{
		cfg:     cfg,
		store:   store,
		catalog: catalog.New(store),
		survey:  survey.NewService(store, tolerance, comparison),
		audit:   audit.NewStoreLogger(store),
	}, nil
}

func (a *app) Close() {
	a.audit.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("closing storage: %v", err)
	}
}

// openStore selects the backend once at startup.
func openStore(cfg config.StorageConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case "csv", "":
		store, err = csvstore.Open(cfg.CSVDir)
	case "sqlite":
		store, err = sqlitestore.Open(cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("storage backend postgres needs postgres_url or DATABASE_URL")
		}
		store, err = pgstore.Open(cfg.PostgresURL)
	case "memory":
		store = storage.NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Trace {
		return trace.Wrap(store), nil
	}
	return store, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encoding output: %v", err)
	}
}
