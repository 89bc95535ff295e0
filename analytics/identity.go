package analytics

import (
	"strconv"
	"sync"
	"time"
)

// Storage keys for durable (cross-session) state.
const (
	keyVisitorID     = "visitor_id"
	keyVisitorIDTime = "visitor_id_time"
	keyConsent       = "analytics_consent"
	keyConsentTime   = "analytics_consent_time"
)

// identityStore owns the long-lived anonymous visitor identifier.
type identityStore struct {
	mu        sync.Mutex
	storage   Storage
	now       func() time.Time
	retention time.Duration

	// cached identifier; also the in-memory fallback when storage is
	// unavailable or returns nothing usable.
	id string
}

func newIdentityStore(storage Storage, retention time.Duration, now func() time.Time) *identityStore {
	return &identityStore{storage: storage, retention: retention, now: now}
}

// GetOrCreate returns the persisted visitor identifier if it is still inside
// the retention window, otherwise generates and persists a fresh one. An
// existing valid identifier is never mutated. Never fails: if storage is
// unusable the identifier lives in memory for the page lifetime.
func (s *identityStore) GetOrCreate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id
	}

	if id, ok := s.storage.Get(keyVisitorID); ok && id != "" {
		if raw, ok := s.storage.Get(keyVisitorIDTime); ok {
			if created, err := strconv.ParseInt(raw, 10, 64); err == nil {
				age := s.now().Sub(time.UnixMilli(created))
				if age < s.retention {
					s.id = id
					return s.id
				}
			}
		}
	}

	s.id = newToken("visitor", s.now())
	s.storage.Set(keyVisitorID, s.id)
	s.storage.Set(keyVisitorIDTime, strconv.FormatInt(s.now().UnixMilli(), 10))
	return s.id
}

// Current returns the cached identifier without creating one.
func (s *identityStore) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Clear erases the persisted identifier and the in-memory copy.
func (s *identityStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage.Delete(keyVisitorID)
	s.storage.Delete(keyVisitorIDTime)
	s.id = ""
}
