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

// Execute implements the go-flags Commander interface for TrackCommand.
func (c *TrackCommand) Execute(args []string) error {
	if c.Type == "" && !c.Conversion {
		return fmt.Errorf("--type is required for track command")
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

// executeWithStore runs the track logic against a provided store (used by tests).
func (c *TrackCommand) executeWithStore(cfg *config.Config, store storage.Store) error {
	var data map[string]any
	if c.Data != "" {
		if err := json.Unmarshal([]byte(c.Data), &data); err != nil {
			return fmt.Errorf("invalid --data JSON: %w", err)
		}
	}

	env := analytics.NewSimulatedEnvironment(analytics.PageContext{
		URL:       c.URL,
		Referrer:  c.Referrer,
		UserAgent: "tracker-cli/" + c.version,
	})

	engine := buildEngine(cfg, store, env, c.globals != nil && c.globals.Verbose)
	engine.Start(context.Background())

	status := engine.Status()
	if status.Consent != analytics.ConsentGranted {
		return fmt.Errorf("tracking is disabled: consent is %s (run: tracker consent --grant)", status.Consent)
	}

	if c.Conversion {
		engine.TrackConversion(data)
	} else {
		engine.TrackEvent(c.Type, data)
	}
	engine.Close()

	status = engine.Status()

	if c.globals != nil && c.globals.JSON {
		out := map[string]any{
			"tracked":    true,
			"type":       c.Type,
			"conversion": c.Conversion,
			"visitor_id": status.VisitorID,
			"session_id": status.SessionID,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	label := c.Type
	if c.Conversion {
		label = "conversion"
	}
	fmt.Printf("Tracked %s event\n", label)
	fmt.Printf("  Visitor: %s\n", status.VisitorID)
	fmt.Printf("  Session: %s\n", status.SessionID)

	return nil
}
