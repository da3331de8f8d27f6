package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/stocksim/stocksim/internal/domain"
)

type TriggerEvaluator struct{}

func NewTriggerEvaluator() *TriggerEvaluator {
	return &TriggerEvaluator{}
}

// Evaluate decides whether a price observation crosses one of the holding's
// protective thresholds. Stop-loss is checked first, so it wins when
// misconfigured thresholds would let both fire. At most one reason is
// returned per observation.
func (e *TriggerEvaluator) Evaluate(p domain.Protection, price decimal.Decimal) (domain.TradeReason, bool) {
	if p.HasStopLoss() && price.LessThanOrEqual(p.StopLoss) {
		return domain.ReasonStopLoss, true
	}
	if p.HasTakeProfit() && price.GreaterThanOrEqual(p.TakeProfit) {
		return domain.ReasonTakeProfit, true
	}
	return "", false
}
