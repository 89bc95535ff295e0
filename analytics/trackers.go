package analytics

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	scrollThrottle   = 250 * time.Millisecond
	clickTextMaxLen  = 100
	unknownFieldName = "unknown"
)

var scrollMilestones = []struct {
	percent int
	event   string
}{
	{25, EventScroll25},
	{50, EventScroll50},
	{75, EventScroll75},
	{90, EventScroll90},
}

// scrollTracker turns raw scroll-depth samples into milestone events.
// Milestones fire at most once per session: maxDepth only ever grows, so
// scrambling back up and down past the same milestone cannot re-emit it.
type scrollTracker struct {
	mu         sync.Mutex
	now        func() time.Time
	lastSample time.Time
	maxDepth   int
	emit       func(eventType string, data map[string]any)
}

func newScrollTracker(now func() time.Time, emit func(string, map[string]any)) *scrollTracker {
	return &scrollTracker{now: now, emit: emit}
}

// Observe handles one raw scroll sample, throttled to one every 250ms.
func (t *scrollTracker) Observe(percent int) {
	t.mu.Lock()
	now := t.now()
	if !t.lastSample.IsZero() && now.Sub(t.lastSample) < scrollThrottle {
		t.mu.Unlock()
		return
	}
	t.lastSample = now

	if percent <= t.maxDepth {
		t.mu.Unlock()
		return
	}
	prev := t.maxDepth
	t.maxDepth = percent
	t.mu.Unlock()

	for _, m := range scrollMilestones {
		if percent >= m.percent && prev < m.percent {
			t.emit(m.event, map[string]any{"depth": m.percent})
		}
	}
}

// MaxDepth returns the deepest scroll percentage seen this session.
func (t *scrollTracker) MaxDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxDepth
}

// Reset clears the milestone state (new session).
func (t *scrollTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxDepth = 0
	t.lastSample = time.Time{}
}

// clickTracker counts clicks and emits structured events for interactive
// elements. Text is truncated so full page content never leaves the page.
type clickTracker struct {
	mu    sync.Mutex
	count int
	emit  func(eventType string, data map[string]any)
}

func newClickTracker(emit func(string, map[string]any)) *clickTracker {
	return &clickTracker{emit: emit}
}

func (t *clickTracker) Observe(c Click) {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()

	if !c.Interactive {
		return
	}

	text := truncateText(c.Text, clickTextMaxLen)

	t.emit(EventClick, map[string]any{
		"element": c.Element,
		"text":    text,
		"href":    c.Href,
		"id":      c.TargetID,
		"class":   c.ClassName,
	})

	// Contribution-form signal: wallet connect buttons.
	if strings.Contains(c.Text, "Connect") && strings.Contains(c.Text, "Wallet") {
		t.emit(EventWalletConnect, nil)
	}
}

// truncateText caps s at max bytes without splitting a multi-byte rune.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Count returns the running click count for the session.
func (t *clickTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Reset clears the click counter (new session).
func (t *clickTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
}

// formTracker maintains the per-session interacted-field set. Focus on a
// field emits once; repeated focus on the same field is idempotent. Submit
// carries the full set.
type formTracker struct {
	mu     sync.Mutex
	fields map[string]struct{}
	emit   func(eventType string, data map[string]any)
}

func newFormTracker(emit func(string, map[string]any)) *formTracker {
	return &formTracker{fields: make(map[string]struct{}), emit: emit}
}

func (t *formTracker) ObserveFocus(f Field) {
	id := f.ID
	if id == "" {
		id = unknownFieldName
	}

	t.mu.Lock()
	if _, seen := t.fields[id]; seen {
		t.mu.Unlock()
		return
	}
	t.fields[id] = struct{}{}
	t.mu.Unlock()

	t.emit(EventFormFieldFocus, map[string]any{
		"field": id,
		"type":  f.Type,
	})
}

func (t *formTracker) ObserveChange(f FieldChange) {
	if strings.Contains(f.ID, "amount") || strings.Contains(f.Name, "amount") {
		t.emit(EventAmountChange, map[string]any{"has_value": f.HasValue})
	}
}

func (t *formTracker) ObserveSubmit(formID string) {
	if formID == "" {
		formID = unknownFieldName
	}
	t.emit(EventFormSubmit, map[string]any{
		"form_id": formID,
		"fields":  t.Fields(),
	})
}

// Fields returns the interacted-field set in stable order.
func (t *formTracker) Fields() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.fields))
	for f := range t.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Reset clears the interacted-field set (new session).
func (t *formTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fields = make(map[string]struct{})
}
