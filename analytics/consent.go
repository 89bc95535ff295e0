package analytics

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ConsentState is the current collection permission.
type ConsentState string

const (
	ConsentUnknown ConsentState = "unknown"
	ConsentGranted ConsentState = "granted"
	ConsentDenied  ConsentState = "denied"
)

// ConsentMode is the policy governing whether collection requires explicit
// opt-in.
type ConsentMode string

const (
	// ConsentRequired must obtain an explicit answer before any collection.
	ConsentRequired ConsentMode = "required"
	// ConsentOptional collects by default and honors explicit opt-out.
	// This default-allow behavior is a product policy choice; hosts wanting
	// opt-in semantics configure ConsentRequired instead.
	ConsentOptional ConsentMode = "optional"
	// ConsentDisabled always grants and never prompts.
	ConsentDisabled ConsentMode = "disabled"
)

// ConsentProvider obtains an explicit consent decision from the user. The
// rendering (banner, dialog, TTY prompt) is host-supplied; the engine only
// awaits the answer, bounded by the configured prompt wait.
type ConsentProvider interface {
	Request(ctx context.Context) (granted bool, err error)
}

// ConsentProviderFunc adapts a function to the ConsentProvider interface.
type ConsentProviderFunc func(ctx context.Context) (bool, error)

func (f ConsentProviderFunc) Request(ctx context.Context) (bool, error) { return f(ctx) }

// consentController resolves and persists the consent decision.
// State machine: unknown -> {granted, denied}; terminal until the validity
// window lapses, after which the state returns to unknown.
type consentController struct {
	mu         sync.Mutex
	storage    Storage
	now        func() time.Time
	mode       ConsentMode
	respectDNT bool
	validity   time.Duration
	promptWait time.Duration
	provider   ConsentProvider

	state     ConsentState
	decidedAt time.Time
}

func newConsentController(storage Storage, mode ConsentMode, respectDNT bool, validity, promptWait time.Duration, provider ConsentProvider, now func() time.Time) *consentController {
	return &consentController{
		storage:    storage,
		now:        now,
		mode:       mode,
		respectDNT: respectDNT,
		validity:   validity,
		promptWait: promptWait,
		provider:   provider,
		state:      ConsentUnknown,
	}
}

// Resolve determines whether collection is permitted. dnt is the browser
// "do not track" signal; when respected it short-circuits to denied before
// any prompt. A persisted decision inside the validity window wins over
// policy defaults.
func (c *consentController) Resolve(ctx context.Context, dnt bool) ConsentState {
	if c.respectDNT && dnt {
		c.mu.Lock()
		c.state = ConsentDenied
		c.mu.Unlock()
		return ConsentDenied
	}

	if stored, at, ok := c.readStored(); ok {
		c.mu.Lock()
		c.state = stored
		c.decidedAt = at
		c.mu.Unlock()
		return stored
	}

	var granted bool
	switch c.mode {
	case ConsentDisabled:
		granted = true
	case ConsentOptional:
		// No stored denial exists at this point, so default-allow applies.
		granted = true
	case ConsentRequired:
		granted = c.prompt(ctx)
	default:
		granted = false
	}

	c.persist(granted)
	return c.State()
}

// prompt asks the provider for an explicit answer, failing closed on
// timeout, error, or a missing provider.
func (c *consentController) prompt(ctx context.Context) bool {
	if c.provider == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.promptWait)
	defer cancel()

	type answer struct {
		granted bool
		err     error
	}
	ch := make(chan answer, 1)
	go func() {
		granted, err := c.provider.Request(ctx)
		ch <- answer{granted, err}
	}()

	select {
	case <-ctx.Done():
		return false
	case a := <-ch:
		if a.err != nil {
			return false
		}
		return a.granted
	}
}

// readStored returns the persisted decision if still inside the validity
// window.
func (c *consentController) readStored() (ConsentState, time.Time, bool) {
	raw, ok := c.storage.Get(keyConsent)
	if !ok || (raw != string(ConsentGranted) && raw != string(ConsentDenied)) {
		return ConsentUnknown, time.Time{}, false
	}
	rawTime, ok := c.storage.Get(keyConsentTime)
	if !ok {
		return ConsentUnknown, time.Time{}, false
	}
	ms, err := strconv.ParseInt(rawTime, 10, 64)
	if err != nil {
		return ConsentUnknown, time.Time{}, false
	}
	at := time.UnixMilli(ms)
	if c.now().Sub(at) >= c.validity {
		return ConsentUnknown, time.Time{}, false
	}
	return ConsentState(raw), at, true
}

// Set records an explicit decision (privacy settings UI path) and persists
// it with the decision time.
func (c *consentController) Set(granted bool) {
	c.persist(granted)
}

func (c *consentController) persist(granted bool) {
	state := ConsentDenied
	if granted {
		state = ConsentGranted
	}
	now := c.now()

	c.mu.Lock()
	c.state = state
	c.decidedAt = now
	c.mu.Unlock()

	c.storage.Set(keyConsent, string(state))
	c.storage.Set(keyConsentTime, strconv.FormatInt(now.UnixMilli(), 10))
}

// State returns the current consent state.
func (c *consentController) State() ConsentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Granted reports whether collection is currently permitted.
func (c *consentController) Granted() bool {
	return c.State() == ConsentGranted
}

// Clear erases the persisted decision and resets to unknown.
func (c *consentController) Clear() {
	c.storage.Delete(keyConsent)
	c.storage.Delete(keyConsentTime)
	c.mu.Lock()
	c.state = ConsentUnknown
	c.decidedAt = time.Time{}
	c.mu.Unlock()
}
