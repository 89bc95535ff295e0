package analytics

import (
	"strconv"
	"sync"
	"time"
)

// Storage keys for browsing-period state.
const (
	keySessionID           = "session_id"
	keySessionStart        = "session_time"
	keySessionLastActivity = "session_last_activity"
)

// Session is one bounded period of continuous activity.
type Session struct {
	ID        string
	StartedAt time.Time
}

// sessionManager issues session identifiers with a sliding inactivity
// timeout. lastActivity is the single source of truth for expiry: both the
// heartbeat and the lazy check on the next GetOrCreate read it, so they
// cannot diverge.
type sessionManager struct {
	mu      sync.Mutex
	storage Storage
	now     func() time.Time
	timeout time.Duration

	current      Session
	lastActivity time.Time

	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}

	// onTimeout fires once when the heartbeat observes an expired window.
	// onBeat fires on every non-expired tick with the session duration and
	// time since last activity.
	onTimeout func()
	onBeat    func(sessionDuration, inactive time.Duration)
}

func newSessionManager(storage Storage, timeout, heartbeatInterval time.Duration, now func() time.Time) *sessionManager {
	return &sessionManager{
		storage:           storage,
		now:               now,
		timeout:           timeout,
		heartbeatInterval: heartbeatInterval,
	}
}

// GetOrCreate returns the current session, continuing a persisted one when
// the last activity falls inside the inactivity window and rotating to a
// fresh id otherwise. Continuation preserves both the id and startedAt.
func (m *sessionManager) GetOrCreate() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked()
}

func (m *sessionManager) getOrCreateLocked() Session {
	now := m.now()

	if m.current.ID != "" {
		if now.Sub(m.lastActivity) < m.timeout {
			return m.current
		}
		// Expired in memory; fall through and rotate.
	} else if s, last, ok := m.readPersisted(); ok && now.Sub(last) < m.timeout {
		m.current = s
		m.lastActivity = last
		return m.current
	}

	m.current = Session{ID: newToken("session", now), StartedAt: now}
	m.lastActivity = now
	m.storage.Set(keySessionID, m.current.ID)
	m.storage.Set(keySessionStart, strconv.FormatInt(now.UnixMilli(), 10))
	m.storage.Set(keySessionLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
	return m.current
}

func (m *sessionManager) readPersisted() (Session, time.Time, bool) {
	id, ok := m.storage.Get(keySessionID)
	if !ok || id == "" {
		return Session{}, time.Time{}, false
	}
	rawStart, ok := m.storage.Get(keySessionStart)
	if !ok {
		return Session{}, time.Time{}, false
	}
	start, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil {
		return Session{}, time.Time{}, false
	}

	last := time.UnixMilli(start)
	if rawLast, ok := m.storage.Get(keySessionLastActivity); ok {
		if v, err := strconv.ParseInt(rawLast, 10, 64); err == nil {
			last = time.UnixMilli(v)
		}
	}

	return Session{ID: id, StartedAt: time.UnixMilli(start)}, last, true
}

// Touch slides the inactivity window forward. Write-through so that a new
// navigation in the same browsing period sees the fresh timestamp.
func (m *sessionManager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
	m.storage.Set(keySessionLastActivity, strconv.FormatInt(m.lastActivity.UnixMilli(), 10))
}

// Current returns the in-memory session without continuation checks.
func (m *sessionManager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartHeartbeat launches the periodic expiry check. The heartbeat is the
// sole mechanism that proactively ends a session: on observing an expired
// window it fires onTimeout once and stops itself.
func (m *sessionManager) StartHeartbeat(onBeat func(sessionDuration, inactive time.Duration), onTimeout func()) {
	m.mu.Lock()
	if m.heartbeatStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.heartbeatStop = stop
	m.onBeat = onBeat
	m.onTimeout = onTimeout
	interval := m.heartbeatInterval
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if m.beat() {
					return
				}
			}
		}
	}()
}

// beat runs one heartbeat check. Returns true when the session timed out and
// the heartbeat should stop.
func (m *sessionManager) beat() bool {
	m.mu.Lock()
	now := m.now()
	inactive := now.Sub(m.lastActivity)
	duration := now.Sub(m.current.StartedAt)
	expired := inactive > m.timeout
	onBeat, onTimeout := m.onBeat, m.onTimeout
	m.mu.Unlock()

	if expired {
		if onTimeout != nil {
			onTimeout()
		}
		m.StopHeartbeat()
		return true
	}
	if onBeat != nil {
		onBeat(duration, inactive)
	}
	return false
}

// StopHeartbeat cancels the heartbeat timer if running.
func (m *sessionManager) StopHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// Clear erases persisted and in-memory session state and stops the
// heartbeat.
func (m *sessionManager) Clear() {
	m.StopHeartbeat()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage.Delete(keySessionID)
	m.storage.Delete(keySessionStart)
	m.storage.Delete(keySessionLastActivity)
	m.current = Session{}
	m.lastActivity = time.Time{}
}
