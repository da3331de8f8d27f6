package domain

import "context"

// QuoteSource defines the interface for fetching live prices. Implementations
// may chain several providers behind it; callers treat it as a single fallible
// lookup.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// LedgerRepository defines storage operations for users, holdings and the
// append-only transaction log.
//
// ApplyBuy and ApplySell are the only mutations touching balance and holding
// together; each is a single storage transaction, conditional on the holding
// version the caller read (ErrStoreConflict when the version moved).
type LedgerRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	GetHolding(ctx context.Context, userID, symbol string) (*Holding, error)
	ListUserHoldings(ctx context.Context, userID string) ([]*Holding, error)
	ListProtectedHoldings(ctx context.Context) ([]*Holding, error)
	SetProtection(ctx context.Context, userID, symbol string, p Protection) error

	ApplyBuy(ctx context.Context, app *BuyApplication) (*LedgerUpdate, error)
	ApplySell(ctx context.Context, app *SellApplication) (*LedgerUpdate, error)

	ListTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// TradePublisher receives executed-trade events for best-effort fan-out to
// connected clients. Delivery is not guaranteed; persisted state is the
// source of truth.
type TradePublisher interface {
	PublishTrade(event TradeEvent)
}
