// Package analytics implements an embeddable, consent-gated campaign
// analytics engine: anonymous visitor/session identity, traffic-source
// attribution, passive interaction tracking, and batched event delivery with
// retry. Host applications construct an Engine, wire their runtime in
// through the Environment and Storage interfaces, and drive it via the
// public control surface.
//
// No call on the engine ever propagates an error or panic into the host;
// failures degrade (in-memory identity, absent location, requeued batches)
// and are reported only through the optional debug logger.
package analytics

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultSessionTimeout    = 30 * time.Minute
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBatchSize         = 10
	DefaultBatchIdleWait     = 5 * time.Second
	DefaultMaxBufferedEvents = 500
	DefaultVisitorRetention  = 2 * 365 * 24 * time.Hour
	DefaultConsentValidity   = 365 * 24 * time.Hour
	DefaultPromptWait        = 30 * time.Second
)

// Config configures an Engine. Zero values take the defaults above;
// Environment is required, and either Transport or Endpoint must be set.
type Config struct {
	// Endpoint is the delivery sink URL. Ignored when Transport is set.
	Endpoint string
	// Transport overrides the default HTTP transport for normal flushes.
	Transport Transport
	// Beacon overrides the fire-and-forget transport for unload flushes.
	Beacon Transport

	Environment Environment
	// Storage persists durable keys (visitor identity, consent decision).
	// Nil degrades to in-memory storage.
	Storage Storage
	// SessionStorage persists browsing-period keys. Nil degrades to
	// in-memory storage.
	SessionStorage Storage

	ConsentMode     ConsentMode
	ConsentProvider ConsentProvider
	// IgnoreDoNotTrack disables the DNT short-circuit. The zero value
	// respects the signal.
	IgnoreDoNotTrack bool

	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	BatchSize         int
	BatchIdleWait     time.Duration
	MaxBufferedEvents int
	VisitorRetention  time.Duration
	ConsentValidity   time.Duration
	PromptWait        time.Duration

	// Feature flags; zero value means enabled, matching the default-on
	// behavior hosts expect.
	DisableGeolocation    bool
	DisableScrollTracking bool
	DisableClickTracking  bool

	// LocationProviders overrides the ordered geolocation lookup list.
	LocationProviders []string
	// HTTPClient is used for geolocation lookups.
	HTTPClient *http.Client

	// Now injects a clock for tests.
	Now func() time.Time
	// Logf receives debug output. Nil disables logging.
	Logf func(format string, args ...any)
}

func (c Config) withDefaults() Config {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logf == nil {
		c.Logf = func(string, ...any) {}
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchIdleWait <= 0 {
		c.BatchIdleWait = DefaultBatchIdleWait
	}
	if c.MaxBufferedEvents <= 0 {
		c.MaxBufferedEvents = DefaultMaxBufferedEvents
	}
	if c.VisitorRetention <= 0 {
		c.VisitorRetention = DefaultVisitorRetention
	}
	if c.ConsentValidity <= 0 {
		c.ConsentValidity = DefaultConsentValidity
	}
	if c.PromptWait <= 0 {
		c.PromptWait = DefaultPromptWait
	}
	if c.ConsentMode == "" {
		c.ConsentMode = ConsentOptional
	}
	if c.Storage == nil {
		c.Storage = NewMemoryStorage()
	}
	if c.SessionStorage == nil {
		c.SessionStorage = NewMemoryStorage()
	}
	if c.Transport == nil {
		c.Transport = NewHTTPTransport(c.Endpoint)
	}
	if c.Beacon == nil {
		c.Beacon = NewBeaconTransport(c.Endpoint)
	}
	if len(c.LocationProviders) == 0 {
		c.LocationProviders = DefaultLocationProviders
	}
	return c
}

// Status is a snapshot of the engine for host inspection.
type Status struct {
	Consent       ConsentState  `json:"consent"`
	VisitorID     string        `json:"visitor_id"`
	SessionID     string        `json:"session_id"`
	PendingEvents int           `json:"pending_events"`
	Location      *LocationInfo `json:"location,omitempty"`
}

// Engine is one analytics instance, owned by the host application. All
// methods are safe for concurrent use.
type Engine struct {
	cfg  Config
	env  Environment
	now  func() time.Time
	logf func(string, ...any)

	identity   *identityStore
	session    *sessionManager
	consent    *consentController
	dispatcher *dispatcher
	resolver   *locationResolver

	scroll *scrollTracker
	clicks *clickTracker
	forms  *formTracker

	location atomic.Pointer[LocationInfo]

	mu        sync.Mutex
	started   bool
	bound     bool
	pageViews int
	loadedAt  time.Time
}

// New constructs an Engine. The engine is inert until Start resolves
// consent and brings the pipeline up.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:  cfg,
		env:  cfg.Environment,
		now:  cfg.Now,
		logf: cfg.Logf,
	}

	e.identity = newIdentityStore(cfg.Storage, cfg.VisitorRetention, cfg.Now)
	e.session = newSessionManager(cfg.SessionStorage, cfg.SessionTimeout, cfg.HeartbeatInterval, cfg.Now)
	e.consent = newConsentController(cfg.Storage, cfg.ConsentMode, !cfg.IgnoreDoNotTrack, cfg.ConsentValidity, cfg.PromptWait, cfg.ConsentProvider, cfg.Now)
	e.resolver = newLocationResolver(cfg.HTTPClient, cfg.LocationProviders)

	e.scroll = newScrollTracker(cfg.Now, e.emitActive)
	e.clicks = newClickTracker(e.emitActive)
	e.forms = newFormTracker(e.emitActive)

	e.dispatcher = newDispatcher(
		cfg.Transport, cfg.Beacon,
		cfg.BatchSize, cfg.BatchIdleWait, cfg.MaxBufferedEvents,
		e.consent.Granted, e.sessionSummary, cfg.Logf,
	)

	e.loadedAt = cfg.Now()
	return e
}

// Start resolves consent and, when granted, initializes identity and
// session, kicks off the asynchronous location lookup, binds the
// interaction trackers, starts the heartbeat, and records the initial page
// view. Without consent it returns silently and every tracking call stays a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	dnt := false
	if e.env != nil {
		dnt = e.env.Page().DoNotTrack
	}

	if state := e.consent.Resolve(ctx, dnt); state != ConsentGranted {
		e.logf("tracking disabled: consent %s", state)
		return
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.identity.GetOrCreate()
	e.session.GetOrCreate()

	if !e.cfg.DisableGeolocation {
		go func() {
			if info := e.resolver.Resolve(context.Background()); info != nil {
				e.location.Store(info)
				e.logf("location resolved: %s/%s", info.Country, info.City)
			}
		}()
	}

	e.bindTrackers()
	e.session.StartHeartbeat(e.onHeartbeat, e.onSessionTimeout)
	e.TrackPageView()

	e.logf("analytics started: visitor=%s session=%s", e.identity.Current(), e.session.Current().ID)
}

// bindTrackers registers the passive listeners exactly once per engine.
func (e *Engine) bindTrackers() {
	e.mu.Lock()
	if e.bound || e.env == nil {
		e.mu.Unlock()
		return
	}
	e.bound = true
	e.mu.Unlock()

	if !e.cfg.DisableScrollTracking {
		e.env.OnScroll(e.scroll.Observe)
	}
	if !e.cfg.DisableClickTracking {
		e.env.OnClick(e.clicks.Observe)
	}
	e.env.OnFieldFocus(e.forms.ObserveFocus)
	e.env.OnFieldChange(e.forms.ObserveChange)
	e.env.OnSubmit(e.forms.ObserveSubmit)

	e.env.OnVisibilityChange(func(hidden bool) {
		if hidden {
			e.track(EventPageHidden, nil, false)
			e.Flush(false)
		} else {
			e.track(EventPageVisible, nil, true)
		}
	})

	e.env.OnUnload(func() {
		e.track(EventPageUnload, nil, false)
		e.Flush(true)
	})

	e.env.OnError(func(pe PageError) {
		e.track(EventAppError, map[string]any{
			"message": pe.Message,
			"source":  pe.Source,
			"line":    pe.Line,
		}, false)
	})
}

func (e *Engine) onHeartbeat(sessionDuration, inactive time.Duration) {
	e.track(EventHeartbeat, map[string]any{
		"session_duration_ms": sessionDuration.Milliseconds(),
		"inactive_ms":         inactive.Milliseconds(),
	}, false)
}

func (e *Engine) onSessionTimeout() {
	e.track(EventSessionTimeout, nil, false)
	e.Flush(false)
}

// SetConsent records an explicit consent decision at any time (privacy
// settings UI). Revocation synchronously clears the pending queue and stops
// background timers; granting re-initializes the full pipeline.
func (e *Engine) SetConsent(granted bool) {
	e.consent.Set(granted)

	if !granted {
		e.dispatcher.Clear()
		e.session.StopHeartbeat()
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		e.logf("tracking disabled by user")
		return
	}

	e.logf("tracking enabled by user")
	e.Start(context.Background())
}

// Flush delivers everything queued. sync selects the fire-and-forget beacon
// path for page unload.
func (e *Engine) Flush(sync bool) {
	e.dispatcher.Flush(sync)
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	return Status{
		Consent:       e.consent.State(),
		VisitorID:     e.identity.Current(),
		SessionID:     e.session.Current().ID,
		PendingEvents: e.dispatcher.Pending(),
		Location:      e.location.Load(),
	}
}

// ClearAllData erases every persisted and in-memory artifact: visitor
// identity, consent decision, session state, queued events, running
// counters. This is the right-to-be-forgotten path.
func (e *Engine) ClearAllData() {
	e.dispatcher.Clear()
	e.session.Clear()
	e.identity.Clear()
	e.consent.Clear()
	e.forms.Reset()
	e.scroll.Reset()
	e.clicks.Reset()

	e.mu.Lock()
	e.started = false
	e.pageViews = 0
	e.mu.Unlock()

	e.location.Store(nil)
	e.logf("all analytics data cleared")
}

// Close performs a final blocking delivery of any queued events and stops
// all background timers. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.session.StopHeartbeat()
	e.drain()
}

// drain sends whatever is queued on the caller's goroutine via the reliable
// transport. Failures are logged and dropped: there is no later retry after
// teardown.
func (e *Engine) drain() {
	d := e.dispatcher
	d.mu.Lock()
	if len(d.queue) == 0 || !d.allowed() {
		d.mu.Unlock()
		return
	}
	batch := d.queue
	d.queue = nil
	d.stopTimerLocked()
	p := Payload{Events: batch, SessionSummary: d.summary()}
	d.mu.Unlock()

	if err := d.transport.Deliver(context.Background(), p); err != nil {
		e.logf("final flush dropped %d events: %v", len(batch), err)
	}
}

// sessionSummary builds the session_summary block of the delivery payload.
func (e *Engine) sessionSummary() SessionSummary {
	sess := e.session.Current()
	e.mu.Lock()
	pages := e.pageViews
	e.mu.Unlock()

	var duration int64
	if !sess.StartedAt.IsZero() {
		duration = e.now().Sub(sess.StartedAt).Milliseconds()
	}

	return SessionSummary{
		VisitorID:        e.identity.Current(),
		SessionID:        sess.ID,
		SessionStart:     sess.StartedAt,
		SessionDuration:  duration,
		PageCount:        pages,
		MaxScrollDepth:   e.scroll.MaxDepth(),
		ClickCount:       e.clicks.Count(),
		FormInteractions: e.forms.Fields(),
	}
}

// emitActive is the tracker emit path for host-driven interactions; it
// refreshes session activity.
func (e *Engine) emitActive(eventType string, data map[string]any) {
	e.track(eventType, data, true)
}
