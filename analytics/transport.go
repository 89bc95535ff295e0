package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport delivers a batch payload to the sink. A nil error means the sink
// acknowledged the batch; anything else triggers the dispatcher's requeue
// path.
type Transport interface {
	Deliver(ctx context.Context, p Payload) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, p Payload) error

func (f TransportFunc) Deliver(ctx context.Context, p Payload) error { return f(ctx, p) }

// HTTPTransport posts JSON payloads and awaits the response. Used on the
// normal flush path where retry is possible.
type HTTPTransport struct {
	Endpoint string
	Client   *http.Client
	// Headers are added to every request (auth tokens, API keys).
	Headers map[string]string
}

// NewHTTPTransport returns an HTTPTransport with a 10s client timeout.
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *HTTPTransport) Deliver(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deliver batch: HTTP %d", resp.StatusCode)
	}
	return nil
}

// BeaconTransport is the page-unload path: fire-and-forget, never awaited,
// never retried. Deliver always returns nil; the send happens on a detached
// goroutine with its own deadline so a dying page context cannot observe or
// cancel it.
type BeaconTransport struct {
	Endpoint string
	Client   *http.Client
	Headers  map[string]string
	// Timeout bounds the detached send. Defaults to 3s.
	Timeout time.Duration
}

// NewBeaconTransport returns a BeaconTransport for the endpoint.
func NewBeaconTransport(endpoint string) *BeaconTransport {
	return &BeaconTransport{Endpoint: endpoint}
}

func (t *BeaconTransport) Deliver(_ context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return nil // best-effort only; nothing observes the failure
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range t.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return
		}
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}()

	return nil
}
