package analytics

import (
	"net/url"
	"strings"
)

// Known referrer classifications. Matching is substring-based on the
// lowercased referrer hostname so regional variants (google.co.uk,
// m.facebook.com) classify the same as the canonical domain.
var socialSources = map[string]TrafficSource{
	"facebook.com":  {Source: "facebook", Medium: "social"},
	"twitter.com":   {Source: "twitter", Medium: "social"},
	"linkedin.com":  {Source: "linkedin", Medium: "social"},
	"instagram.com": {Source: "instagram", Medium: "social"},
	"youtube.com":   {Source: "youtube", Medium: "social"},
	"tiktok.com":    {Source: "tiktok", Medium: "social"},
	"reddit.com":    {Source: "reddit", Medium: "social"},
}

var searchSources = map[string]TrafficSource{
	"google.com":     {Source: "google", Medium: "organic"},
	"bing.com":       {Source: "bing", Medium: "organic"},
	"yahoo.com":      {Source: "yahoo", Medium: "organic"},
	"duckduckgo.com": {Source: "duckduckgo", Medium: "organic"},
	"baidu.com":      {Source: "baidu", Medium: "organic"},
}

// ResolveTrafficSource classifies the current navigation context into a
// source/medium/campaign tuple. Pure and deterministic: no network calls, no
// side effects.
//
// Precedence: UTM query parameters verbatim, then direct (no referrer), then
// referrer hostname classification (social, organic, referral).
func ResolveTrafficSource(pageURL, referrer string) TrafficSource {
	if u, err := url.Parse(pageURL); err == nil {
		q := u.Query()
		if src := q.Get("utm_source"); src != "" {
			medium := q.Get("utm_medium")
			if medium == "" {
				medium = "unknown"
			}
			return TrafficSource{
				Source:   src,
				Medium:   medium,
				Campaign: q.Get("utm_campaign"),
				Content:  q.Get("utm_content"),
				Term:     q.Get("utm_term"),
			}
		}
	}

	if referrer == "" {
		return TrafficSource{Source: "direct", Medium: "direct"}
	}

	host := referrerHost(referrer)
	if host == "" {
		return TrafficSource{Source: "direct", Medium: "direct"}
	}

	for domain, ts := range socialSources {
		if strings.Contains(host, domain) {
			return ts
		}
	}
	for domain, ts := range searchSources {
		if strings.Contains(host, domain) {
			return ts
		}
	}

	return TrafficSource{Source: host, Medium: "referral"}
}

func referrerHost(referrer string) string {
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
