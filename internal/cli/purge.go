package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fundraisehq/tracker/internal/storage"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete ALL tracker data.")
		fmt.Println("  - Visitor identity and consent decision")
		fmt.Println("  - Session state")
		fmt.Println("  - All spooled event batches")
		fmt.Println()
		fmt.Println("This action cannot be undone.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
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

	return c.executeWithStore(store)
}

// executeWithStore runs the purge against a provided store (used by tests).
func (c *PurgeCommand) executeWithStore(store storage.Store) error {
	ctx := context.Background()
	if err := store.PurgeAll(ctx); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]any{
			"purged":  true,
			"message": "all data deleted",
		}
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(out)
	}

	fmt.Println("Purged all data. Tracker is empty.")
	return nil
}
