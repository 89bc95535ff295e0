package analytics

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Common event types emitted by the engine itself. Hosts may track
// arbitrary additional types via Engine.TrackEvent.
const (
	EventPageView       = "page_view"
	EventPageHidden     = "page_hidden"
	EventPageVisible    = "page_visible"
	EventPageUnload     = "page_unload"
	EventHeartbeat      = "heartbeat"
	EventSessionTimeout = "session_timeout"
	EventClick          = "click"
	EventFormFieldFocus = "form_field_focus"
	EventFormSubmit     = "form_submit"
	EventConversion     = "conversion"
	EventAppError       = "app_error"
	EventWalletConnect  = "wallet_connect_attempt"
	EventAmountChange   = "contribution_amount_change"

	EventScroll25 = "scroll_25"
	EventScroll50 = "scroll_50"
	EventScroll75 = "scroll_75"
	EventScroll90 = "scroll_90"
)

// Event is a single fully-enriched analytics record. Immutable once built;
// it lives in the dispatcher queue until flushed or dropped by consent
// revocation.
type Event struct {
	ID               string         `json:"id"`
	VisitorID        string         `json:"visitor_id"`
	SessionID        string         `json:"session_id"`
	CampaignID       string         `json:"campaign_id,omitempty"`
	Type             string         `json:"event_type"`
	Data             map[string]any `json:"event_data,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	URL              string         `json:"url"`
	UserAgent        string         `json:"user_agent"`
	ScreenResolution string         `json:"screen_resolution"`
	ViewportSize     string         `json:"viewport_size"`
	Location         *LocationInfo  `json:"location,omitempty"`
}

// TrafficSource classifies how the visitor arrived. Derived per page view,
// never persisted.
type TrafficSource struct {
	Source   string `json:"traffic_source"`
	Medium   string `json:"traffic_medium"`
	Campaign string `json:"traffic_campaign,omitempty"`
	Content  string `json:"traffic_content,omitempty"`
	Term     string `json:"traffic_term,omitempty"`
}

// LocationInfo is coarse, best-effort geolocation. Absence never blocks
// anything.
type LocationInfo struct {
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// SessionSummary aggregates the current session for the delivery payload.
type SessionSummary struct {
	VisitorID        string    `json:"visitor_id"`
	SessionID        string    `json:"session_id"`
	SessionStart     time.Time `json:"session_start"`
	SessionDuration  int64     `json:"session_duration_ms"`
	PageCount        int       `json:"page_count"`
	MaxScrollDepth   int       `json:"max_scroll_depth"`
	ClickCount       int       `json:"click_count"`
	FormInteractions []string  `json:"form_interactions"`
}

// Payload is the JSON body sent to the delivery sink.
type Payload struct {
	Events         []Event        `json:"events"`
	SessionSummary SessionSummary `json:"session_summary"`
}

// newEventID returns a random identifier for a single event.
func newEventID() string {
	return uuid.NewString()
}

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newToken generates a namespaced identifier of the form
// <prefix>_<base36 millis>_<9 random base36 chars>. The format is shared
// with the delivery backend, which parses the prefix.
func newToken(prefix string, now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)

	suffix := make([]byte, 9)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is effectively fatal for the process;
			// fall back to a uuid-derived character rather than panic.
			suffix[i] = uuid.NewString()[0]
			continue
		}
		suffix[i] = tokenAlphabet[n.Int64()]
	}

	return prefix + "_" + ts + "_" + string(suffix)
}
