package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundraisehq/tracker/analytics"
)

func TestKV_ImplementsEngineStorage(t *testing.T) {
	store := openTestStore(t)
	kv := NewKV(store, nil)

	kv.Set("visitor_id", "visitor_abc123")

	value, ok := kv.Get("visitor_id")
	assert.True(t, ok)
	assert.Equal(t, "visitor_abc123", value)

	kv.Delete("visitor_id")
	_, ok = kv.Get("visitor_id")
	assert.False(t, ok)
}

func TestSpoolTransport_WritesBatchToSpool(t *testing.T) {
	store := openTestStore(t)
	tr := NewSpoolTransport(store)

	p := analytics.Payload{
		Events:         []analytics.Event{{ID: "ev-1", Type: "page_view"}},
		SessionSummary: analytics.SessionSummary{SessionID: "session_x"},
	}
	require.NoError(t, tr.Deliver(context.Background(), p))

	batches, err := store.PendingBatches(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	var got analytics.Payload
	require.NoError(t, json.Unmarshal(batches[0].Payload, &got))
	assert.Equal(t, "ev-1", got.Events[0].ID)
	assert.Equal(t, "session_x", got.SessionSummary.SessionID)
}

// recordingTransport collects delivered payloads; failAfter > 0 makes every
// delivery past the first N fail.
type recordingTransport struct {
	payloads  []analytics.Payload
	failAfter int
}

func (r *recordingTransport) Deliver(_ context.Context, p analytics.Payload) error {
	if r.failAfter > 0 && len(r.payloads) >= r.failAfter {
		return errors.New("sink unavailable")
	}
	r.payloads = append(r.payloads, p)
	return nil
}

func TestFlushSpool_DeliversOldestFirstAndClears(t *testing.T) {
	store := openTestStore(t)
	tr := NewSpoolTransport(store)
	ctx := context.Background()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		p := analytics.Payload{Events: []analytics.Event{{ID: id}}}
		require.NoError(t, tr.Deliver(ctx, p))
	}

	sink := &recordingTransport{}
	delivered, err := FlushSpool(ctx, store, sink, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	require.Len(t, sink.payloads, 3)
	assert.Equal(t, "ev-1", sink.payloads[0].Events[0].ID)
	assert.Equal(t, "ev-3", sink.payloads[2].Events[0].ID)

	batches, err := store.PendingBatches(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestFlushSpool_StopsAtFirstFailure(t *testing.T) {
	store := openTestStore(t)
	tr := NewSpoolTransport(store)
	ctx := context.Background()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		p := analytics.Payload{Events: []analytics.Event{{ID: id}}}
		require.NoError(t, tr.Deliver(ctx, p))
	}

	sink := &recordingTransport{failAfter: 1}
	delivered, err := FlushSpool(ctx, store, sink, 0)
	require.Error(t, err)
	assert.Equal(t, 1, delivered)

	// The failed batch and everything after it stay spooled, in order.
	batches, qerr := store.PendingBatches(ctx, 50)
	require.NoError(t, qerr)
	require.Len(t, batches, 2)

	var p analytics.Payload
	require.NoError(t, json.Unmarshal(batches[0].Payload, &p))
	assert.Equal(t, "ev-2", p.Events[0].ID)
}

func TestFlushSpool_DropsCorruptBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SpoolBatch(ctx, []byte("not json")))
	p := analytics.Payload{Events: []analytics.Event{{ID: "ev-good"}}}
	require.NoError(t, NewSpoolTransport(store).Deliver(ctx, p))

	sink := &recordingTransport{}
	delivered, err := FlushSpool(ctx, store, sink, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	require.Len(t, sink.payloads, 1)
	assert.Equal(t, "ev-good", sink.payloads[0].Events[0].ID)

	batches, err := store.PendingBatches(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, batches, "the corrupt batch must be dropped, not retried")
}

func TestFlushSpool_HonorsLimit(t *testing.T) {
	store := openTestStore(t)
	tr := NewSpoolTransport(store)
	ctx := context.Background()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		p := analytics.Payload{Events: []analytics.Event{{ID: id}}}
		require.NoError(t, tr.Deliver(ctx, p))
	}

	sink := &recordingTransport{}
	delivered, err := FlushSpool(ctx, store, sink, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	require.Len(t, sink.payloads, 2)
	assert.Equal(t, "ev-1", sink.payloads[0].Events[0].ID)
	assert.Equal(t, "ev-2", sink.payloads[1].Events[0].ID)

	// The batch past the limit stays spooled.
	batches, err := store.PendingBatches(ctx, 50)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	var p analytics.Payload
	require.NoError(t, json.Unmarshal(batches[0].Payload, &p))
	assert.Equal(t, "ev-3", p.Events[0].ID)
}

func TestFlushSpool_EmptySpool(t *testing.T) {
	store := openTestStore(t)

	sink := &recordingTransport{}
	delivered, err := FlushSpool(context.Background(), store, sink, 0)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Empty(t, sink.payloads)
}
