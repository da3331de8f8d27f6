package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SellApplication carries a fully computed sell to the ledger store. The new
// holding values are derived from the holding state at ExpectedVersion; the
// store applies them only if that version is still current.
type SellApplication struct {
	TransactionID   string
	UserID          string
	Symbol          string
	Shares          int64
	Price           decimal.Decimal
	Reason          TradeReason
	ExpectedVersion int64

	NewShares        int64
	NewTotalInvested decimal.Decimal
}

// BuyApplication carries a fully computed buy to the ledger store. Create is
// set on the first buy for a symbol; otherwise the update is conditional on
// ExpectedVersion like a sell.
type BuyApplication struct {
	TransactionID   string
	UserID          string
	Symbol          string
	Shares          int64
	Price           decimal.Decimal
	Create          bool
	ExpectedVersion int64

	NewShares        int64
	NewAveragePrice  decimal.Decimal
	NewTotalInvested decimal.Decimal
}

// LedgerUpdate is the post-commit state returned by ApplyBuy/ApplySell.
// Holding is nil when the sell liquidated the position.
type LedgerUpdate struct {
	Balance decimal.Decimal
	Holding *Holding
}

// TradeEvent describes an executed trade for realtime broadcast.
type TradeEvent struct {
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Type       TransactionType `json:"type"`
	Shares     int64           `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	Reason     TradeReason     `json:"reason"`
	Balance    decimal.Decimal `json:"balance"`
	ExecutedAt time.Time       `json:"executed_at"`
}
