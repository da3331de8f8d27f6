package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/stocksim/internal/domain"
)

// fakeLedger is an in-memory LedgerRepository mirroring the store's
// conditional-update semantics, so executor and monitor behavior can be
// exercised without sqlite.
type fakeLedger struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	holdings map[string]*domain.Holding
	txs      []*domain.Transaction

	// sellConflicts fails the next N ApplySell calls with ErrStoreConflict
	// regardless of version, to exercise retry paths.
	sellConflicts int
	buyConflicts  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:    make(map[string]*domain.User),
		holdings: make(map[string]*domain.Holding),
	}
}

func ledgerKey(userID, symbol string) string {
	return userID + "|" + symbol
}

func (f *fakeLedger) addUser(id, balance string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &domain.User{ID: id, Balance: dec(balance), CreatedAt: time.Now()}
}

func (f *fakeLedger) addHolding(userID, symbol string, shares int64, avgPrice string, p domain.Protection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	avg := dec(avgPrice)
	f.holdings[ledgerKey(userID, symbol)] = &domain.Holding{
		UserID:        userID,
		Symbol:        symbol,
		Shares:        shares,
		AveragePrice:  avg,
		TotalInvested: avg.Mul(decimal.NewFromInt(shares)),
		Protection:    p,
		Version:       1,
	}
}

func (f *fakeLedger) balance(userID string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].Balance
}

func (f *fakeLedger) transactions() []*domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Transaction, len(f.txs))
	copy(out, f.txs)
	return out
}

func (f *fakeLedger) CreateUser(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeLedger) GetUser(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeLedger) GetHolding(ctx context.Context, userID, symbol string) (*domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holdings[ledgerKey(userID, symbol)]
	if !ok {
		return nil, domain.ErrHoldingNotFound
	}
	cp := *h
	return &cp, nil
}

func (f *fakeLedger) ListUserHoldings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Holding
	for _, h := range f.holdings {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListProtectedHoldings(ctx context.Context) ([]*domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Holding
	for _, h := range f.holdings {
		if h.Protection.Enabled() && h.Shares > 0 {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLedger) SetProtection(ctx context.Context, userID, symbol string, p domain.Protection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holdings[ledgerKey(userID, symbol)]
	if !ok {
		return domain.ErrHoldingNotFound
	}
	h.Protection = p
	h.Version++
	return nil
}

func (f *fakeLedger) ApplySell(ctx context.Context, app *domain.SellApplication) (*domain.LedgerUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sellConflicts > 0 {
		f.sellConflicts--
		return nil, domain.ErrStoreConflict
	}

	h, ok := f.holdings[ledgerKey(app.UserID, app.Symbol)]
	if !ok || h.Version != app.ExpectedVersion {
		return nil, domain.ErrStoreConflict
	}
	u, ok := f.users[app.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	u.Balance = u.Balance.Add(app.Price.Mul(decimal.NewFromInt(app.Shares)))
	f.txs = append(f.txs, &domain.Transaction{
		ID: app.TransactionID, UserID: app.UserID, Symbol: app.Symbol,
		Type: domain.TransactionSell, Shares: app.Shares, Price: app.Price,
		Reason: app.Reason, CreatedAt: time.Now(),
	})

	update := &domain.LedgerUpdate{Balance: u.Balance}
	if app.NewShares == 0 {
		delete(f.holdings, ledgerKey(app.UserID, app.Symbol))
	} else {
		h.Shares = app.NewShares
		h.TotalInvested = app.NewTotalInvested
		h.Version++
		cp := *h
		update.Holding = &cp
	}
	return update, nil
}

func (f *fakeLedger) ApplyBuy(ctx context.Context, app *domain.BuyApplication) (*domain.LedgerUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.buyConflicts > 0 {
		f.buyConflicts--
		return nil, domain.ErrStoreConflict
	}

	u, ok := f.users[app.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cost := app.Price.Mul(decimal.NewFromInt(app.Shares))
	newBalance := u.Balance.Sub(cost)
	if newBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}

	key := ledgerKey(app.UserID, app.Symbol)
	h, exists := f.holdings[key]
	if app.Create {
		if exists {
			return nil, domain.ErrStoreConflict
		}
		h = &domain.Holding{
			UserID: app.UserID, Symbol: app.Symbol,
			Shares: app.NewShares, AveragePrice: app.NewAveragePrice,
			TotalInvested: app.NewTotalInvested, Version: 1,
		}
		f.holdings[key] = h
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
	f.txs = append(f.txs, &domain.Transaction{
		ID: app.TransactionID, UserID: app.UserID, Symbol: app.Symbol,
		Type: domain.TransactionBuy, Shares: app.Shares, Price: app.Price,
		Reason: domain.ReasonManual, CreatedAt: time.Now(),
	})

	cp := *h
	return &domain.LedgerUpdate{Balance: u.Balance, Holding: &cp}, nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range f.txs {
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

// fakeQuotes serves fixed prices per symbol, with optional per-symbol errors
// and a hook invoked on every fetch.
type fakeQuotes struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	errs    map[string]error
	calls   map[string]int
	onFetch func(symbol string)
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeQuotes) setPrice(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = dec(price)
}

func (f *fakeQuotes) setError(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *fakeQuotes) fetchCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeQuotes) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	f.mu.Lock()
	f.calls[symbol]++
	hook := f.onFetch
	err := f.errs[symbol]
	price, ok := f.prices[symbol]
	f.mu.Unlock()

	if hook != nil {
		hook(symbol)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no price for %s", domain.ErrQuoteUnavailable, symbol)
	}
	return &domain.Quote{Symbol: symbol, Price: price, FetchedAt: time.Now()}, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
