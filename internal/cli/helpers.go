package cli

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fundraisehq/tracker/analytics"
	"github.com/fundraisehq/tracker/internal/config"
	"github.com/fundraisehq/tracker/internal/storage"
)

// loadConfig resolves the config file, honoring the --config override.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		return config.LoadOrCreateAt(globals.Config)
	}
	return config.LoadOrCreate()
}

// openStore opens the tracker database named by cfg, runs migrations, and
// returns a ready-to-use store and the underlying *sql.DB.
func openStore(cfg *config.Config) (*storage.SQLiteStore, *sql.DB, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	runner := storage.NewMigrationRunner(db)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, db, nil
}

// buildEngine wires an Engine over the SQLite store for headless use:
// durable and session keys share the KV table, and deliveries land in the
// local spool for a later `tracker flush`.
func buildEngine(cfg *config.Config, store storage.Store, env analytics.Environment, verbose bool) *analytics.Engine {
	logf := func(string, ...any) {}
	if verbose || cfg.Logging.Debug {
		logf = log.Printf
	}

	kv := storage.NewKV(store, logf)

	return analytics.New(analytics.Config{
		Environment:        env,
		Storage:            kv,
		SessionStorage:     kv,
		Transport:          storage.NewSpoolTransport(store),
		Beacon:             storage.NewSpoolTransport(store),
		ConsentMode:        analytics.ConsentMode(cfg.Privacy.ConsentMode),
		IgnoreDoNotTrack:   !cfg.Privacy.RespectDoNotTrack,
		SessionTimeout:     time.Duration(cfg.Engine.SessionTimeoutMinutes) * time.Minute,
		HeartbeatInterval:  time.Duration(cfg.Engine.HeartbeatSeconds) * time.Second,
		BatchSize:          cfg.Engine.BatchSize,
		BatchIdleWait:      time.Duration(cfg.Engine.BatchIdleSeconds) * time.Second,
		MaxBufferedEvents:  cfg.Engine.MaxBufferedEvents,
		ConsentValidity:    time.Duration(cfg.Privacy.ConsentValidityDays) * 24 * time.Hour,
		VisitorRetention:   time.Duration(cfg.Privacy.VisitorRetentionDays) * 24 * time.Hour,
		DisableGeolocation: !cfg.Privacy.EnableGeolocation,
		Logf:               logf,
	})
}

// deliveryTransport builds the HTTP transport for the configured endpoint.
func deliveryTransport(cfg *config.Config) *analytics.HTTPTransport {
	t := analytics.NewHTTPTransport(cfg.Delivery.Endpoint)
	if cfg.Delivery.TimeoutSeconds > 0 {
		t.Client = &http.Client{Timeout: time.Duration(cfg.Delivery.TimeoutSeconds) * time.Second}
	}
	if cfg.Delivery.AuthToken != "" {
		t.Headers = map[string]string{"Authorization": "Bearer " + cfg.Delivery.AuthToken}
	}
	return t
}
