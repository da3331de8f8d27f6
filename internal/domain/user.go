package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a simulation account. Balance is virtual cash and never negative.
type User struct {
	ID        string
	Balance   decimal.Decimal
	CreatedAt time.Time
}
