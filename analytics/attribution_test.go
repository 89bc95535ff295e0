package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTrafficSource(t *testing.T) {
	tests := []struct {
		name     string
		pageURL  string
		referrer string
		expected TrafficSource
	}{
		{
			name:    "utm parameters take precedence",
			pageURL: "https://donate.example.com/?utm_source=google&utm_medium=cpc&utm_campaign=spring",
			expected: TrafficSource{
				Source:   "google",
				Medium:   "cpc",
				Campaign: "spring",
			},
		},
		{
			name:    "utm source without medium defaults medium to unknown",
			pageURL: "https://donate.example.com/?utm_source=newsletter",
			expected: TrafficSource{
				Source: "newsletter",
				Medium: "unknown",
			},
		},
		{
			name:     "utm beats referrer",
			pageURL:  "https://donate.example.com/?utm_source=partner&utm_medium=email",
			referrer: "https://www.google.com/search?q=donate",
			expected: TrafficSource{
				Source: "partner",
				Medium: "email",
			},
		},
		{
			name:     "no referrer is direct",
			pageURL:  "https://donate.example.com/",
			referrer: "",
			expected: TrafficSource{Source: "direct", Medium: "direct"},
		},
		{
			name:     "twitter referrer is social",
			pageURL:  "https://donate.example.com/",
			referrer: "https://twitter.com/x",
			expected: TrafficSource{Source: "twitter", Medium: "social"},
		},
		{
			name:     "facebook subdomain is social",
			pageURL:  "https://donate.example.com/",
			referrer: "https://m.facebook.com/some/post",
			expected: TrafficSource{Source: "facebook", Medium: "social"},
		},
		{
			name:     "google referrer is organic",
			pageURL:  "https://donate.example.com/",
			referrer: "https://www.google.com/search?q=campaign",
			expected: TrafficSource{Source: "google", Medium: "organic"},
		},
		{
			name:     "duckduckgo referrer is organic",
			pageURL:  "https://donate.example.com/",
			referrer: "https://duckduckgo.com/?q=donate",
			expected: TrafficSource{Source: "duckduckgo", Medium: "organic"},
		},
		{
			name:     "unknown referrer hostname is referral",
			pageURL:  "https://donate.example.com/",
			referrer: "https://blog.partner.org/post/42",
			expected: TrafficSource{Source: "blog.partner.org", Medium: "referral"},
		},
		{
			name:     "referrer hostname is lowercased",
			pageURL:  "https://donate.example.com/",
			referrer: "https://News.Example.ORG/a",
			expected: TrafficSource{Source: "news.example.org", Medium: "referral"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveTrafficSource(tc.pageURL, tc.referrer)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestExtractCampaignID(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/?campaign=abc123", "abc123"},
		{"https://example.com/?campaign_id=xyz", "xyz"},
		{"https://example.com/campaign/save-the-bay", "save-the-bay"},
		{"https://example.com/campaign/save-the-bay/donate", "save-the-bay"},
		{"https://example.com/?campaign=first&campaign_id=second", "first"},
		{"https://example.com/about", ""},
		{"://not a url", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, extractCampaignID(tc.url), "url %s", tc.url)
	}
}
