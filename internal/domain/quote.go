package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price observation for a symbol.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	FetchedAt time.Time
}
