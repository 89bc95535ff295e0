package analytics

import (
	"net/url"
	"regexp"
)

var campaignPathPattern = regexp.MustCompile(`/campaign/([^/]+)`)

// TrackEvent records a custom event. Silent no-op when consent is not
// granted or no session exists; never returns an error to the host.
func (e *Engine) TrackEvent(eventType string, data map[string]any) {
	e.track(eventType, data, true)
}

// TrackPageView records a page view enriched with title, referrer,
// attribution, and time since engine construction.
func (e *Engine) TrackPageView() {
	page := e.pageContext()
	ts := ResolveTrafficSource(page.URL, page.Referrer)

	data := map[string]any{
		"url":       page.URL,
		"title":     page.Title,
		"referrer":  page.Referrer,
		"load_time": e.now().Sub(e.loadedAt).Milliseconds(),
	}
	mergeTrafficSource(data, ts)

	if !e.track(EventPageView, data, true) {
		return
	}

	e.mu.Lock()
	e.pageViews++
	e.mu.Unlock()
}

// TrackConversion records a high-value event stamped with the session's
// cumulative interaction state, then forces an immediate flush so the
// conversion cannot be lost to a crashed tab waiting for a timed flush.
func (e *Engine) TrackConversion(data map[string]any) {
	enriched := make(map[string]any, len(data)+5)
	for k, v := range data {
		enriched[k] = v
	}

	sess := e.session.Current()
	var duration int64
	if !sess.StartedAt.IsZero() {
		duration = e.now().Sub(sess.StartedAt).Milliseconds()
	}
	e.mu.Lock()
	pages := e.pageViews
	e.mu.Unlock()

	enriched["session_duration_ms"] = duration
	enriched["page_views"] = pages
	enriched["form_interactions"] = e.forms.Fields()
	enriched["max_scroll_depth"] = e.scroll.MaxDepth()
	enriched["click_count"] = e.clicks.Count()

	if !e.track(EventConversion, enriched, true) {
		return
	}
	e.Flush(false)
}

// track builds and enqueues one enriched event. touch controls whether the
// activity slides the session inactivity window (heartbeats and teardown
// signals must not keep a session alive). Returns false when tracking is
// gated off.
func (e *Engine) track(eventType string, data map[string]any, touch bool) bool {
	if !e.consent.Granted() {
		return false
	}

	var sess Session
	if touch {
		sess = e.refreshSession()
	} else {
		sess = e.session.Current()
	}
	if sess.ID == "" {
		return false
	}

	page := e.pageContext()

	ev := Event{
		ID:               newEventID(),
		VisitorID:        e.identity.Current(),
		SessionID:        sess.ID,
		CampaignID:       extractCampaignID(page.URL),
		Type:             eventType,
		Data:             data,
		Timestamp:        e.now().UTC(),
		URL:              page.URL,
		UserAgent:        page.UserAgent,
		ScreenResolution: page.ScreenResolution,
		ViewportSize:     page.ViewportSize,
		Location:         e.location.Load(),
	}

	e.dispatcher.Enqueue(ev)
	e.logf("event tracked: %s", eventType)

	if touch {
		e.session.Touch()
	}
	return true
}

// refreshSession is the lazy expiry check on the next activity: it rotates
// the session when the inactivity window has lapsed, resetting the
// per-session tracker state and restarting the heartbeat. It reads the same
// lastActivityAt the heartbeat uses, so the two mechanisms cannot disagree.
func (e *Engine) refreshSession() Session {
	prev := e.session.Current().ID
	sess := e.session.GetOrCreate()
	if prev != "" && sess.ID != prev {
		e.forms.Reset()
		e.scroll.Reset()
		e.clicks.Reset()
		e.mu.Lock()
		e.pageViews = 0
		e.mu.Unlock()
		e.session.StartHeartbeat(e.onHeartbeat, e.onSessionTimeout)
		e.logf("session rotated: %s", sess.ID)
	}
	return sess
}

func (e *Engine) pageContext() PageContext {
	if e.env == nil {
		return PageContext{}
	}
	return e.env.Page()
}

// extractCampaignID derives the campaign identifier from the page URL:
// campaign/campaign_id query parameters or a /campaign/<id> path segment.
func extractCampaignID(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	q := u.Query()
	if id := q.Get("campaign"); id != "" {
		return id
	}
	if id := q.Get("campaign_id"); id != "" {
		return id
	}

	if m := campaignPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

func mergeTrafficSource(data map[string]any, ts TrafficSource) {
	data["traffic_source"] = ts.Source
	data["traffic_medium"] = ts.Medium
	if ts.Campaign != "" {
		data["traffic_campaign"] = ts.Campaign
	}
	if ts.Content != "" {
		data["traffic_content"] = ts.Content
	}
	if ts.Term != "" {
		data["traffic_term"] = ts.Term
	}
}
