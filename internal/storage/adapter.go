package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fundraisehq/tracker/analytics"
)

// KV adapts a Store to the engine's best-effort analytics.Storage
// interface. Store errors are logged and swallowed so the engine degrades
// to in-memory state instead of failing.
type KV struct {
	store Store
	logf  func(format string, args ...any)
}

// NewKV wraps a Store. logf may be nil.
func NewKV(store Store, logf func(string, ...any)) *KV {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &KV{store: store, logf: logf}
}

func (kv *KV) Get(key string) (string, bool) {
	value, ok, err := kv.store.GetKey(context.Background(), key)
	if err != nil {
		kv.logf("storage get %q: %v", key, err)
		return "", false
	}
	return value, ok
}

func (kv *KV) Set(key, value string) {
	if err := kv.store.SetKey(context.Background(), key, value); err != nil {
		kv.logf("storage set %q: %v", key, err)
	}
}

func (kv *KV) Delete(key string) {
	if err := kv.store.DeleteKey(context.Background(), key); err != nil {
		kv.logf("storage delete %q: %v", key, err)
	}
}

// SpoolTransport is an analytics.Transport that writes payloads to the
// local spool instead of the network. Headless hosts use it to record
// offline-first; `tracker flush` later delivers the spool through a real
// transport.
type SpoolTransport struct {
	store Store
}

// NewSpoolTransport wraps a Store as a Transport.
func NewSpoolTransport(store Store) *SpoolTransport {
	return &SpoolTransport{store: store}
}

func (t *SpoolTransport) Deliver(ctx context.Context, p analytics.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return t.store.SpoolBatch(ctx, body)
}

// spoolReadChunk bounds how many batches one spool read pulls into memory.
const spoolReadChunk = 50

// FlushSpool delivers spooled batches through next, oldest first, deleting
// each on success. It stops at the first delivery failure so order is
// preserved, returning the number delivered. limit caps how many batches are
// delivered in this call; limit <= 0 means deliver everything.
func FlushSpool(ctx context.Context, store Store, next analytics.Transport, limit int) (int, error) {
	delivered := 0
	for limit <= 0 || delivered < limit {
		read := spoolReadChunk
		if limit > 0 && limit-delivered < read {
			read = limit - delivered
		}

		batches, err := store.PendingBatches(ctx, read)
		if err != nil {
			return delivered, fmt.Errorf("read spool: %w", err)
		}
		if len(batches) == 0 {
			return delivered, nil
		}

		for _, b := range batches {
			var p analytics.Payload
			if err := json.Unmarshal(b.Payload, &p); err != nil {
				// Unreadable batch; drop it rather than wedge the spool.
				if delErr := store.DeleteBatch(ctx, b.ID); delErr != nil {
					return delivered, fmt.Errorf("drop corrupt batch %d: %w", b.ID, delErr)
				}
				continue
			}

			if err := next.Deliver(ctx, p); err != nil {
				return delivered, fmt.Errorf("deliver batch %d: %w", b.ID, err)
			}
			if err := store.DeleteBatch(ctx, b.ID); err != nil {
				return delivered, fmt.Errorf("ack batch %d: %w", b.ID, err)
			}
			delivered++
		}
	}
	return delivered, nil
}
