package analytics

import (
	"context"
	"sync"
	"time"
)

// dispatcher buffers events and flushes them to the delivery sink on size or
// idle-time thresholds, or on explicit triggers (conversion, unload).
//
// Delivery is at-least-once on the normal path: a failed batch is
// re-prepended to the front of the queue, preserving enqueue order, and goes
// out before anything enqueued after it. The unload path is fire-and-forget.
// At most one delivery is in flight at a time; events arriving during a
// flight accumulate into a fresh queue segment.
type dispatcher struct {
	mu        sync.Mutex
	queue     []Event
	idleTimer *time.Timer
	inflight  bool

	batchSize   int
	idleWait    time.Duration
	maxBuffered int

	transport Transport
	beacon    Transport

	// allowed gates every flush on consent; summary builds the
	// session_summary block at flush time.
	allowed func() bool
	summary func() SessionSummary
	logf    func(format string, args ...any)
}

func newDispatcher(transport, beacon Transport, batchSize int, idleWait time.Duration, maxBuffered int, allowed func() bool, summary func() SessionSummary, logf func(string, ...any)) *dispatcher {
	return &dispatcher{
		batchSize:   batchSize,
		idleWait:    idleWait,
		maxBuffered: maxBuffered,
		transport:   transport,
		beacon:      beacon,
		allowed:     allowed,
		summary:     summary,
		logf:        logf,
	}
}

// Enqueue appends an event and triggers a flush when the batch size is
// reached, otherwise arms the debounced idle timer. Under a sustained
// delivery outage the buffer is capped and the oldest events drop first.
func (d *dispatcher) Enqueue(ev Event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	if over := len(d.queue) - d.maxBuffered; over > 0 {
		d.queue = d.queue[over:]
		d.logf("event buffer cap reached, dropped %d oldest", over)
	}

	if len(d.queue) >= d.batchSize {
		d.mu.Unlock()
		d.Flush(false)
		return
	}

	if d.idleTimer == nil {
		d.idleTimer = time.AfterFunc(d.idleWait, d.idleFlush)
	}
	d.mu.Unlock()
}

func (d *dispatcher) idleFlush() {
	d.mu.Lock()
	d.idleTimer = nil
	d.mu.Unlock()
	d.Flush(false)
}

// Flush sends everything currently queued. With sync=false the batch goes
// through the reliable transport on a background goroutine and failures
// requeue; with sync=true (page unload) it goes through the beacon
// transport, best-effort, no retry. Empty queue or missing consent is a
// no-op.
func (d *dispatcher) Flush(sync bool) {
	d.mu.Lock()

	if len(d.queue) == 0 || !d.allowed() {
		d.mu.Unlock()
		return
	}

	if sync {
		batch := d.queue
		d.queue = nil
		d.stopTimerLocked()
		p := Payload{Events: batch, SessionSummary: d.summary()}
		d.mu.Unlock()
		d.beacon.Deliver(context.Background(), p) //nolint:errcheck
		return
	}

	if d.inflight {
		// The pending flight's completion re-evaluates the queue; starting
		// a second flight here would break FIFO on failure.
		d.mu.Unlock()
		return
	}

	batch := d.queue
	d.queue = nil
	d.stopTimerLocked()
	d.inflight = true
	p := Payload{Events: batch, SessionSummary: d.summary()}
	d.mu.Unlock()

	go d.deliver(p, batch)
}

// deliver runs one reliable delivery attempt and reconciles the queue with
// its outcome.
func (d *dispatcher) deliver(p Payload, batch []Event) {
	err := d.transport.Deliver(context.Background(), p)

	d.mu.Lock()
	d.inflight = false

	if err != nil {
		// Ignore the result entirely if consent was revoked mid-flight.
		if !d.allowed() {
			d.mu.Unlock()
			return
		}
		d.logf("delivery failed, requeueing %d events: %v", len(batch), err)
		d.queue = append(batch, d.queue...)
		if over := len(d.queue) - d.maxBuffered; over > 0 {
			d.queue = d.queue[over:]
		}
		// Back off to the idle timer rather than retrying immediately.
		if d.idleTimer == nil {
			d.idleTimer = time.AfterFunc(d.idleWait, d.idleFlush)
		}
		d.mu.Unlock()
		return
	}

	d.logf("delivered %d events", len(batch))

	if len(d.queue) >= d.batchSize {
		d.mu.Unlock()
		d.Flush(false)
		return
	}
	if len(d.queue) > 0 && d.idleTimer == nil {
		d.idleTimer = time.AfterFunc(d.idleWait, d.idleFlush)
	}
	d.mu.Unlock()
}

// Pending returns the number of buffered events.
func (d *dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Clear drops all buffered events and cancels the idle timer. This is the
// consent-revocation path; an in-flight delivery completes or fails on its
// own and its result is ignored.
func (d *dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = nil
	d.stopTimerLocked()
}

func (d *dispatcher) stopTimerLocked() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
}
