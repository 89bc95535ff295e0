package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundraisehq/tracker/internal/config"
)

func TestStatus_HumanOutput(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetKey(ctx, "visitor_id", "visitor_abc123"))
	require.NoError(t, store.SetKey(ctx, "analytics_consent", "granted"))
	seedSpool(t, store, "ev-1")

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "0.1.0-test"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(config.DefaultConfig(), store))
	})

	assert.Contains(t, output, "Tracker Status")
	assert.Contains(t, output, "0.1.0-test")
	assert.Contains(t, output, "visitor_abc123")
	assert.Contains(t, output, "granted (mode: optional)")
	assert.Contains(t, output, "1 batch(es)")
}

func TestStatus_EmptyDatabase(t *testing.T) {
	store := openTestStore(t)

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "test"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(config.DefaultConfig(), store))
	})

	assert.Contains(t, output, "Visitor:       (none)")
	assert.Contains(t, output, "unknown (mode: optional)")
	assert.Contains(t, output, "0 batch(es)")
}

func TestStatus_JSONOutput(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetKey(ctx, "visitor_id", "visitor_abc123"))
	seedSpool(t, store, "ev-1", "ev-2")

	cmd := &StatusCommand{globals: &GlobalFlags{JSON: true}, version: "0.1.0-test"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(config.DefaultConfig(), store))
	})

	var out statusJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out))
	assert.Equal(t, "0.1.0-test", out.Version)
	assert.Equal(t, "visitor_abc123", out.VisitorID)
	assert.Equal(t, "unknown", out.Consent)
	assert.Equal(t, int64(2), out.SpooledBatches)
	assert.NotEmpty(t, out.OldestBatch)
	assert.Equal(t, config.DefaultConfig().Delivery.Endpoint, out.Endpoint)
}
