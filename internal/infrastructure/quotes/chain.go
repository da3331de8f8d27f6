package quotes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stocksim/stocksim/internal/domain"
)

// ChainSource tries each underlying provider in order and returns the first
// successful quote. Callers see a single QuoteSource; the fallback is
// transparent.
type ChainSource struct {
	sources []domain.QuoteSource
	logger  *zap.Logger
}

func NewChainSource(logger *zap.Logger, sources ...domain.QuoteSource) *ChainSource {
	return &ChainSource{sources: sources, logger: logger}
}

func (c *ChainSource) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	for i, source := range c.sources {
		quote, err := source.GetQuote(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		c.logger.Debug("quote provider failed",
			zap.Int("provider", i),
			zap.String("symbol", symbol),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: all providers failed for %s", domain.ErrQuoteUnavailable, symbol)
}
