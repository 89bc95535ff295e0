package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationResolver_FirstProviderWins(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country_code":"DE","region":"Berlin","city":"Berlin","timezone":"Europe/Berlin","ip":"203.0.113.7"}`))
	}))
	defer geo.Close()

	r := newLocationResolver(nil, []string{geo.URL})
	info := r.Resolve(context.Background())

	require.NotNil(t, info)
	assert.Equal(t, "DE", info.Country)
	assert.Equal(t, "Berlin", info.Region)
	assert.Equal(t, "Berlin", info.City)
	assert.Equal(t, "Europe/Berlin", info.Timezone)
	assert.Equal(t, "203.0.113.7", info.IP)
}

func TestLocationResolver_FallsBackOnFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer failing.Close()

	ipOnly := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"198.51.100.4"}`))
	}))
	defer ipOnly.Close()

	r := newLocationResolver(nil, []string{failing.URL, ipOnly.URL})
	info := r.Resolve(context.Background())

	require.NotNil(t, info)
	assert.Empty(t, info.Country)
	assert.Equal(t, "198.51.100.4", info.IP)
}

func TestLocationResolver_AlternateFieldNames(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country":"FR","region_name":"Ile-de-France"}`))
	}))
	defer geo.Close()

	r := newLocationResolver(nil, []string{geo.URL})
	info := r.Resolve(context.Background())

	require.NotNil(t, info)
	assert.Equal(t, "FR", info.Country)
	assert.Equal(t, "Ile-de-France", info.Region)
}

func TestLocationResolver_NilWhenExhausted(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	r := newLocationResolver(nil, []string{empty.URL, "http://127.0.0.1:1/unreachable"})
	assert.Nil(t, r.Resolve(context.Background()))
}

func TestHTTPTransport_PostsBatch(t *testing.T) {
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL + "/api/analytics")
	err := tr.Deliver(context.Background(), Payload{Events: []Event{{ID: "ev-1", Type: "custom"}}})

	require.NoError(t, err)
	assert.Equal(t, "/api/analytics", gotPath)
	assert.Equal(t, "application/json", gotType)
}

func TestHTTPTransport_ErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL)
	err := tr.Deliver(context.Background(), Payload{Events: []Event{{ID: "ev-1"}}})
	assert.Error(t, err)
}
