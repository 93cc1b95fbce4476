package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// HTTPSource fetches quotes from a rate-quote HTTP service. Calls are
// throttled with a token bucket so a burst of trades cannot hammer the
// provider.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource creates a client for the quote service at baseURL.
// requestsPerSecond <= 0 disables throttling.
func NewHTTPSource(baseURL string, timeout time.Duration, requestsPerSecond float64) *HTTPSource {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// decimalFromNumber converts a JSON number (or numeric string) to a decimal.
func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	return decimal.NewFromString(n.String())
}

type quoteResponse struct {
	Rate      json.Number `json:"rate"`
	FetchedAt time.Time   `json:"fetchedAt"`
}

// Fetch performs GET <base>/api/rate?from=X&to=Y. Any transport failure,
// non-200 status or malformed body is returned as an error; the cache maps
// all of them to RateUnavailable.
func (s *HTTPSource) Fetch(ctx context.Context, fromCode, toCode string) (Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/rate?from=%s&to=%s",
		s.baseURL, url.QueryEscape(fromCode), url.QueryEscape(toCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("quote service returned %d: %s", resp.StatusCode, body)
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Quote{}, fmt.Errorf("decode quote response: %w", err)
	}

	parsed, err := decimalFromNumber(decoded.Rate)
	if err != nil {
		return Quote{}, fmt.Errorf("parse rate %q: %w", decoded.Rate, err)
	}

	fetchedAt := decoded.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	return Quote{Rate: parsed, FetchedAt: fetchedAt}, nil
}
