package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/stocksim/internal/domain"
)

// FinnhubSource fetches prices from the Finnhub quote endpoint. Used as the
// fallback provider behind Yahoo.
type FinnhubSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewFinnhubSource(endpoint, apiKey string) *FinnhubSource {
	return &FinnhubSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *FinnhubSource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	values := url.Values{}
	values.Set("symbol", symbol)
	values.Set("token", f.apiKey)
	endpoint := f.endpoint + "/api/v1/quote?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create finnhub request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: finnhub fetch %s: %v", domain.ErrQuoteUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: finnhub status %d for %s", domain.ErrQuoteUnavailable, resp.StatusCode, symbol)
	}

	// Finnhub returns c=0 for unknown symbols instead of an error status.
	var payload struct {
		Current float64 `json:"c"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode finnhub response for %s: %v", domain.ErrQuoteUnavailable, symbol, err)
	}
	if payload.Current <= 0 {
		return nil, fmt.Errorf("%w: finnhub returned no price for %s", domain.ErrQuoteUnavailable, symbol)
	}

	return &domain.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(payload.Current),
		FetchedAt: time.Now().UTC(),
	}, nil
}
