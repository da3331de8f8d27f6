package web_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/stocksim/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stubLedger is a minimal in-memory LedgerRepository for handler tests.
type stubLedger struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	holdings map[string]*domain.Holding
	txs      []*domain.Transaction
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		users:    make(map[string]*domain.User),
		holdings: make(map[string]*domain.Holding),
	}
}

func key(userID, symbol string) string { return userID + "|" + symbol }

func (l *stubLedger) addUser(id, balance string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[id] = &domain.User{ID: id, Balance: dec(balance), CreatedAt: time.Now()}
}

func (l *stubLedger) addHolding(userID, symbol string, shares int64, avgPrice string, p domain.Protection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	avg := dec(avgPrice)
	l.holdings[key(userID, symbol)] = &domain.Holding{
		UserID: userID, Symbol: symbol, Shares: shares,
		AveragePrice: avg, TotalInvested: avg.Mul(decimal.NewFromInt(shares)),
		Protection: p, Version: 1,
	}
}

func (l *stubLedger) CreateUser(ctx context.Context, user *domain.User) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := *user
	l.users[user.ID] = &u
	return nil
}

func (l *stubLedger) GetUser(ctx context.Context, id string) (*domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (l *stubLedger) GetHolding(ctx context.Context, userID, symbol string) (*domain.Holding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[key(userID, symbol)]
	if !ok {
		return nil, domain.ErrHoldingNotFound
	}
	cp := *h
	return &cp, nil
}

func (l *stubLedger) ListUserHoldings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Holding
	for _, h := range l.holdings {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *stubLedger) ListProtectedHoldings(ctx context.Context) ([]*domain.Holding, error) {
	return nil, nil
}

func (l *stubLedger) SetProtection(ctx context.Context, userID, symbol string, p domain.Protection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[key(userID, symbol)]
	if !ok {
		return domain.ErrHoldingNotFound
	}
	h.Protection = p
	h.Version++
	return nil
}

func (l *stubLedger) ApplySell(ctx context.Context, app *domain.SellApplication) (*domain.LedgerUpdate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[key(app.UserID, app.Symbol)]
	if !ok || h.Version != app.ExpectedVersion {
		return nil, domain.ErrStoreConflict
	}
	u := l.users[app.UserID]
	u.Balance = u.Balance.Add(app.Price.Mul(decimal.NewFromInt(app.Shares)))
	l.txs = append(l.txs, &domain.Transaction{
		ID: fmt.Sprintf("t%d", len(l.txs)+1), UserID: app.UserID, Symbol: app.Symbol,
		Type: domain.TransactionSell, Shares: app.Shares, Price: app.Price,
		Reason: app.Reason, CreatedAt: time.Now(),
	})
	update := &domain.LedgerUpdate{Balance: u.Balance}
	if app.NewShares == 0 {
		delete(l.holdings, key(app.UserID, app.Symbol))
	} else {
		h.Shares = app.NewShares
		h.TotalInvested = app.NewTotalInvested
		h.Version++
		cp := *h
		update.Holding = &cp
	}
	return update, nil
}

func (l *stubLedger) ApplyBuy(ctx context.Context, app *domain.BuyApplication) (*domain.LedgerUpdate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[app.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cost := app.Price.Mul(decimal.NewFromInt(app.Shares))
	newBalance := u.Balance.Sub(cost)
	if newBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}
	k := key(app.UserID, app.Symbol)
	h, exists := l.holdings[k]
	if app.Create {
		if exists {
			return nil, domain.ErrStoreConflict
		}
		h = &domain.Holding{
			UserID: app.UserID, Symbol: app.Symbol, Shares: app.NewShares,
			AveragePrice: app.NewAveragePrice, TotalInvested: app.NewTotalInvested, Version: 1,
		}
		l.holdings[k] = h
	} else {
		if !exists || h.Version != app.ExpectedVersion {
			return nil, domain.ErrStoreConflict
		}
		h.Shares = app.NewShares
		h.AveragePrice = app.NewAveragePrice
		h.TotalInvested = app.NewTotalInvested
		h.Version++
	}
	u.Balance = newBalance
	l.txs = append(l.txs, &domain.Transaction{
		ID: fmt.Sprintf("t%d", len(l.txs)+1), UserID: app.UserID, Symbol: app.Symbol,
		Type: domain.TransactionBuy, Shares: app.Shares, Price: app.Price,
		Reason: domain.ReasonManual, CreatedAt: time.Now(),
	})
	cp := *h
	return &domain.LedgerUpdate{Balance: u.Balance, Holding: &cp}, nil
}

func (l *stubLedger) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range l.txs {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stubQuotes serves fixed prices; symbols without a price are unavailable.
type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{prices: make(map[string]decimal.Decimal)}
}

func (q *stubQuotes) setPrice(symbol, price string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = dec(price)
}

func (q *stubQuotes) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	price, ok := q.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no price for %s", domain.ErrQuoteUnavailable, symbol)
	}
	return &domain.Quote{Symbol: symbol, Price: price, FetchedAt: time.Now()}, nil
}
