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

// YahooSource fetches prices from the Yahoo Finance chart endpoint.
type YahooSource struct {
	endpoint string
	client   *http.Client
}

func NewYahooSource(endpoint string) *YahooSource {
	return &YahooSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (y *YahooSource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", y.endpoint, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create yahoo request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch %s: %v", domain.ErrQuoteUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yahoo status %d for %s", domain.ErrQuoteUnavailable, resp.StatusCode, symbol)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol             string  `json:"symbol"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode yahoo response for %s: %v", domain.ErrQuoteUnavailable, symbol, err)
	}

	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no result for %s", domain.ErrQuoteUnavailable, symbol)
	}
	price := payload.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return nil, fmt.Errorf("%w: yahoo returned non-positive price for %s", domain.ErrQuoteUnavailable, symbol)
	}

	return &domain.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		FetchedAt: time.Now().UTC(),
	}, nil
}
