package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stocksim/stocksim/internal/domain"
)

// avgPricePrecision bounds the decimal places of a recomputed cost basis.
// TotalInvested is always recomputed from the rounded average so that
// totalInvested == averagePrice * shares holds exactly.
const avgPricePrecision = 8

// TradeResult is the post-commit state of an executed trade, enough for the
// caller to respond to a user or write an audit line.
type TradeResult struct {
	Balance decimal.Decimal
	Holding *domain.Holding // nil when the sell liquidated the position
	Price   decimal.Decimal
	Shares  int64
	Reason  domain.TradeReason
}

// TradeExecutor is the single choke point for mutating a user's cash balance
// and holdings. Both the HTTP sell endpoint and the price monitor go through
// it.
type TradeExecutor struct {
	ledger    domain.LedgerRepository
	quotes    domain.QuoteSource
	publisher domain.TradePublisher // optional
	logger    *zap.Logger
}

func NewTradeExecutor(ledger domain.LedgerRepository, quotes domain.QuoteSource, publisher domain.TradePublisher, logger *zap.Logger) *TradeExecutor {
	return &TradeExecutor{
		ledger:    ledger,
		quotes:    quotes,
		publisher: publisher,
		logger:    logger,
	}
}

// NormalizeSymbol maps user input to the canonical uppercase symbol form used
// as the holding key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Sell executes a sell for the user. When price is nil the current price is
// fetched from the quote source. A conditional-update conflict (concurrent
// mutation of the same holding) is retried once against fresh state, then
// surfaced.
func (e *TradeExecutor) Sell(ctx context.Context, userID, symbol string, shares int64, price *decimal.Decimal, reason domain.TradeReason) (*TradeResult, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("invalid share count: %d", shares)
	}
	symbol = NormalizeSymbol(symbol)

	if _, err := e.ledger.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	var execPrice decimal.Decimal
	if price != nil {
		execPrice = *price
	} else {
		quote, err := e.quotes.GetQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		execPrice = quote.Price
	}

	result, err := e.trySell(ctx, userID, symbol, shares, execPrice, reason)
	if errors.Is(err, domain.ErrStoreConflict) {
		e.logger.Warn("sell hit a concurrent update, retrying once",
			zap.String("user", userID), zap.String("symbol", symbol))
		result, err = e.trySell(ctx, userID, symbol, shares, execPrice, reason)
	}
	if err != nil {
		return nil, err
	}

	e.publish(userID, symbol, domain.TransactionSell, result)
	return result, nil
}

func (e *TradeExecutor) trySell(ctx context.Context, userID, symbol string, shares int64, price decimal.Decimal, reason domain.TradeReason) (*TradeResult, error) {
	holding, err := e.ledger.GetHolding(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if shares > holding.Shares {
		return nil, fmt.Errorf("%w: requested %d, holding %d %s", domain.ErrInsufficientShares, shares, holding.Shares, symbol)
	}

	// Average cost is unchanged by a sell; only the remaining exposure shrinks.
	newShares := holding.Shares - shares
	newTotalInvested := holding.AveragePrice.Mul(decimal.NewFromInt(newShares))

	update, err := e.ledger.ApplySell(ctx, &domain.SellApplication{
		TransactionID:    uuid.NewString(),
		UserID:           userID,
		Symbol:           symbol,
		Shares:           shares,
		Price:            price,
		Reason:           reason,
		ExpectedVersion:  holding.Version,
		NewShares:        newShares,
		NewTotalInvested: newTotalInvested,
	})
	if err != nil {
		return nil, err
	}

	return &TradeResult{
		Balance: update.Balance,
		Holding: update.Holding,
		Price:   price,
		Shares:  shares,
		Reason:  reason,
	}, nil
}

// Buy executes a buy for the user, creating the holding on the first purchase
// of a symbol and recomputing the volume-weighted average price otherwise.
func (e *TradeExecutor) Buy(ctx context.Context, userID, symbol string, shares int64, price *decimal.Decimal) (*TradeResult, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("invalid share count: %d", shares)
	}
	symbol = NormalizeSymbol(symbol)

	if _, err := e.ledger.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	var execPrice decimal.Decimal
	if price != nil {
		execPrice = *price
	} else {
		quote, err := e.quotes.GetQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		execPrice = quote.Price
	}

	result, err := e.tryBuy(ctx, userID, symbol, shares, execPrice)
	if errors.Is(err, domain.ErrStoreConflict) {
		e.logger.Warn("buy hit a concurrent update, retrying once",
			zap.String("user", userID), zap.String("symbol", symbol))
		result, err = e.tryBuy(ctx, userID, symbol, shares, execPrice)
	}
	if err != nil {
		return nil, err
	}

	e.publish(userID, symbol, domain.TransactionBuy, result)
	return result, nil
}

func (e *TradeExecutor) tryBuy(ctx context.Context, userID, symbol string, shares int64, price decimal.Decimal) (*TradeResult, error) {
	app := &domain.BuyApplication{
		TransactionID: uuid.NewString(),
		UserID:        userID,
		Symbol:        symbol,
		Shares:        shares,
		Price:         price,
	}

	holding, err := e.ledger.GetHolding(ctx, userID, symbol)
	switch {
	case errors.Is(err, domain.ErrHoldingNotFound):
		app.Create = true
		app.NewShares = shares
		app.NewAveragePrice = price
		app.NewTotalInvested = price.Mul(decimal.NewFromInt(shares))
	case err != nil:
		return nil, err
	default:
		newShares := holding.Shares + shares
		spent := holding.TotalInvested.Add(price.Mul(decimal.NewFromInt(shares)))
		newAvg := spent.DivRound(decimal.NewFromInt(newShares), avgPricePrecision)

		app.ExpectedVersion = holding.Version
		app.NewShares = newShares
		app.NewAveragePrice = newAvg
		app.NewTotalInvested = newAvg.Mul(decimal.NewFromInt(newShares))
	}

	update, err := e.ledger.ApplyBuy(ctx, app)
	if err != nil {
		return nil, err
	}

	return &TradeResult{
		Balance: update.Balance,
		Holding: update.Holding,
		Price:   price,
		Shares:  shares,
		Reason:  domain.ReasonManual,
	}, nil
}

func (e *TradeExecutor) publish(userID, symbol string, txType domain.TransactionType, result *TradeResult) {
	if e.publisher == nil {
		return
	}
	e.publisher.PublishTrade(domain.TradeEvent{
		UserID:     userID,
		Symbol:     symbol,
		Type:       txType,
		Shares:     result.Shares,
		Price:      result.Price,
		Reason:     result.Reason,
		Balance:    result.Balance,
		ExecutedAt: time.Now().UTC(),
	})
}
