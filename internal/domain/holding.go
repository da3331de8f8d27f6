package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeReason string

const (
	ReasonManual     TradeReason = "MANUAL"
	ReasonStopLoss   TradeReason = "STOP_LOSS"
	ReasonTakeProfit TradeReason = "TAKE_PROFIT"
)

type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// ProtectionKind enumerates which auto-sell thresholds are armed on a holding.
type ProtectionKind int

const (
	ProtectionNone ProtectionKind = iota
	ProtectionStopLoss
	ProtectionTakeProfit
	ProtectionBoth
)

// Protection is the auto-sell configuration of a holding. The kind makes the
// enabled/disabled state explicit instead of inferring it from which price
// fields happen to be set.
type Protection struct {
	Kind       ProtectionKind
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

func NoProtection() Protection {
	return Protection{Kind: ProtectionNone}
}

func StopLossAt(price decimal.Decimal) Protection {
	return Protection{Kind: ProtectionStopLoss, StopLoss: price}
}

func TakeProfitAt(price decimal.Decimal) Protection {
	return Protection{Kind: ProtectionTakeProfit, TakeProfit: price}
}

func ProtectBoth(stopLoss, takeProfit decimal.Decimal) Protection {
	return Protection{Kind: ProtectionBoth, StopLoss: stopLoss, TakeProfit: takeProfit}
}

func (p Protection) Enabled() bool {
	return p.Kind != ProtectionNone
}

func (p Protection) HasStopLoss() bool {
	return p.Kind == ProtectionStopLoss || p.Kind == ProtectionBoth
}

func (p Protection) HasTakeProfit() bool {
	return p.Kind == ProtectionTakeProfit || p.Kind == ProtectionBoth
}

// Holding is a user's position in one symbol.
type Holding struct {
	UserID        string
	Symbol        string
	Shares        int64
	AveragePrice  decimal.Decimal
	TotalInvested decimal.Decimal
	Protection    Protection
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction is one entry of a holding's append-only trade log. Entries are
// never updated or removed once written.
type Transaction struct {
	ID        string
	UserID    string
	Symbol    string
	Type      TransactionType
	Shares    int64
	Price     decimal.Decimal
	Reason    TradeReason
	CreatedAt time.Time
}
