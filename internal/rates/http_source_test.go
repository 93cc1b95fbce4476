package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuoteServer(t *testing.T) *httptest.Server {
	t.Helper()

	router := mux.NewRouter()
	router.HandleFunc("/api/rate", func(w http.ResponseWriter, r *http.Request) {
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		if from != "BTC" || to != "USD" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "pair not quoted"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rate":      "59337.21",
			"fetchedAt": time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		})
	}).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPSourceFetch(t *testing.T) {
	server := newQuoteServer(t)
	src := NewHTTPSource(server.URL, 2*time.Second, 0)

	quote, err := src.Fetch(context.Background(), "BTC", "USD")
	require.NoError(t, err)

	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("59337.21")))
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), quote.FetchedAt.UTC())
}

func TestHTTPSourceUnknownPair(t *testing.T) {
	server := newQuoteServer(t)
	src := NewHTTPSource(server.URL, 2*time.Second, 0)

	_, err := src.Fetch(context.Background(), "DOGE", "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPSourceUnreachable(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:1", 500*time.Millisecond, 0)

	_, err := src.Fetch(context.Background(), "BTC", "USD")
	assert.Error(t, err)
}

func TestHTTPSourceHonorsContextCancel(t *testing.T) {
	server := newQuoteServer(t)
	src := NewHTTPSource(server.URL, 2*time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, "BTC", "USD")
	assert.Error(t, err)
}
