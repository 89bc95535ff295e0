package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultLocationProviders is the default ordered lookup list. The last
// entry returns the IP only.
var DefaultLocationProviders = []string{
	"https://ipapi.co/json/",
	"https://api.ipify.org?format=json",
}

// locationResolver performs best-effort coarse geolocation over an ordered
// provider list. First success wins; exhaustion yields nil. It is invoked
// asynchronously and never blocks or fails the tracking pipeline.
type locationResolver struct {
	client    *http.Client
	providers []string
}

func newLocationResolver(client *http.Client, providers []string) *locationResolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &locationResolver{client: client, providers: providers}
}

// providerResponse covers the field variants the supported providers use.
type providerResponse struct {
	CountryCode string `json:"country_code"`
	Country     string `json:"country"`
	Region      string `json:"region"`
	RegionName  string `json:"region_name"`
	City        string `json:"city"`
	Timezone    string `json:"timezone"`
	IP          string `json:"ip"`
}

// Resolve tries each provider in order and normalizes the first successful
// response. Returns nil when every provider fails.
func (r *locationResolver) Resolve(ctx context.Context) *LocationInfo {
	for _, endpoint := range r.providers {
		info := r.lookup(ctx, endpoint)
		if info != nil {
			return info
		}
	}
	return nil
}

func (r *locationResolver) lookup(ctx context.Context, endpoint string) *LocationInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil
	}

	info := &LocationInfo{
		Country:  firstNonEmpty(pr.CountryCode, pr.Country),
		Region:   firstNonEmpty(pr.Region, pr.RegionName),
		City:     pr.City,
		Timezone: pr.Timezone,
		IP:       pr.IP,
	}
	if *info == (LocationInfo{}) {
		return nil
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
