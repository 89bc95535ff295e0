package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fundraisehq/tracker/internal/config"
	"github.com/fundraisehq/tracker/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version        string `json:"version"`
	DatabasePath   string `json:"database_path"`
	VisitorID      string `json:"visitor_id,omitempty"`
	Consent        string `json:"consent"`
	Keys           int64  `json:"keys"`
	SpooledBatches int64  `json:"spooled_batches"`
	SpooledBytes   int64  `json:"spooled_bytes"`
	OldestBatch    string `json:"oldest_batch,omitempty"`
	NewestBatch    string `json:"newest_batch,omitempty"`
	Endpoint       string `json:"endpoint"`
	ConsentMode    string `json:"consent_mode"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(cfg, store)
}

// executeWithStore runs status against a provided store (for testing).
func (c *StatusCommand) executeWithStore(cfg *config.Config, store storage.Store) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	visitorID, _, err := store.GetKey(ctx, "visitor_id")
	if err != nil {
		return fmt.Errorf("read visitor id: %w", err)
	}

	consent, ok, err := store.GetKey(ctx, "analytics_consent")
	if err != nil {
		return fmt.Errorf("read consent: %w", err)
	}
	if !ok {
		consent = "unknown"
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(cfg, stats, dbPath, visitorID, consent)
	}
	return c.printStatusHuman(cfg, stats, dbPath, visitorID, consent)
}

func (c *StatusCommand) printStatusHuman(cfg *config.Config, stats *storage.Stats, dbPath, visitorID, consent string) error {
	fmt.Println("Tracker Status")
	fmt.Println("==============")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s\n", dbPath)
	if visitorID != "" {
		fmt.Printf("Visitor:       %s\n", visitorID)
	} else {
		fmt.Printf("Visitor:       (none)\n")
	}
	fmt.Printf("Consent:       %s (mode: %s)\n", consent, cfg.Privacy.ConsentMode)
	fmt.Printf("Spool:         %d batch(es), %d bytes\n", stats.SpooledBatches, stats.SpooledBytes)

	if stats.SpooledBatches > 0 {
		fmt.Printf("Oldest batch:  %s\n", stats.OldestBatch.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Newest batch:  %s\n", stats.NewestBatch.Local().Format("2006-01-02 15:04:05"))
	}

	fmt.Println()
	fmt.Printf("Endpoint:      %s\n", cfg.Delivery.Endpoint)

	return nil
}

func (c *StatusCommand) printStatusJSON(cfg *config.Config, stats *storage.Stats, dbPath, visitorID, consent string) error {
	out := statusJSON{
		Version:        c.version,
		DatabasePath:   dbPath,
		VisitorID:      visitorID,
		Consent:        consent,
		Keys:           stats.Keys,
		SpooledBatches: stats.SpooledBatches,
		SpooledBytes:   stats.SpooledBytes,
		Endpoint:       cfg.Delivery.Endpoint,
		ConsentMode:    cfg.Privacy.ConsentMode,
	}

	if stats.SpooledBatches > 0 {
		out.OldestBatch = stats.OldestBatch.UTC().Format(time.RFC3339)
		out.NewestBatch = stats.NewestBatch.UTC().Format(time.RFC3339)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
