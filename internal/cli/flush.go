package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fundraisehq/tracker/analytics"
	"github.com/fundraisehq/tracker/internal/config"
	"github.com/fundraisehq/tracker/internal/storage"
)

// Execute implements the go-flags Commander interface for FlushCommand.
func (c *FlushCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Delivery.Endpoint == "" {
		return fmt.Errorf("no delivery endpoint configured")
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()
	defer db.Close()

	return c.executeWithStore(cfg, store, deliveryTransport(cfg))
}

// executeWithStore runs the flush logic against a provided store and
// transport (used by tests).
func (c *FlushCommand) executeWithStore(cfg *config.Config, store storage.Store, transport analytics.Transport) error {
	delivered, err := storage.FlushSpool(context.Background(), store, transport, c.Limit)

	if c.globals != nil && c.globals.JSON {
		out := map[string]any{
			"delivered": delivered,
			"endpoint":  cfg.Delivery.Endpoint,
		}
		if err != nil {
			out["error"] = err.Error()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
		return err
	}

	if delivered > 0 {
		fmt.Printf("Delivered %d batch(es) to %s\n", delivered, cfg.Delivery.Endpoint)
	} else {
		fmt.Println("Nothing to deliver.")
	}
	if err != nil {
		return fmt.Errorf("flush incomplete: %w", err)
	}
	return nil
}
