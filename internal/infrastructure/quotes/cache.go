package quotes

import (
	"context"
	"sync"

	"github.com/stocksim/stocksim/internal/domain"
)

// CachingSource records the last successful quote per symbol on top of an
// inner source. GetQuote always hits the inner source; LastKnown serves read
// paths that tolerate stale data (the web quote endpoint), never the monitor.
type CachingSource struct {
	inner domain.QuoteSource

	mu   sync.RWMutex
	last map[string]domain.Quote
}

func NewCachingSource(inner domain.QuoteSource) *CachingSource {
	return &CachingSource{
		inner: inner,
		last:  make(map[string]domain.Quote),
	}
}

func (c *CachingSource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	quote, err := c.inner.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last[symbol] = *quote
	c.mu.Unlock()

	return quote, nil
}

func (c *CachingSource) LastKnown(symbol string) (domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	quote, ok := c.last[symbol]
	return quote, ok
}
