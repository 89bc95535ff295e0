package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fundraisehq/tracker/analytics"
	"github.com/fundraisehq/tracker/internal/config"
	"github.com/fundraisehq/tracker/internal/storage"
)

// Execute implements the go-flags Commander interface for ConsentCommand.
func (c *ConsentCommand) Execute(args []string) error {
	if c.Grant == c.Deny {
		return fmt.Errorf("exactly one of --grant or --deny is required")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()
	defer db.Close()

	return c.executeWithStore(cfg, store)
}

// executeWithStore runs the consent logic against a provided store (used by tests).
func (c *ConsentCommand) executeWithStore(cfg *config.Config, store storage.Store) error {
	env := analytics.NewSimulatedEnvironment(analytics.PageContext{
		UserAgent: "tracker-cli/" + c.version,
	})

	engine := buildEngine(cfg, store, env, c.globals != nil && c.globals.Verbose)
	engine.SetConsent(c.Grant)
	engine.Close()

	state := analytics.ConsentDenied
	if c.Grant {
		state = analytics.ConsentGranted
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]any{"consent": string(state)}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Consent recorded: %s\n", state)
	return nil
}
