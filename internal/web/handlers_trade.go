package web

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/stocksim/stocksim/internal/domain"
	"github.com/stocksim/stocksim/internal/usecase"
)

type tradeRequest struct {
	UserID string           `json:"user_id"`
	Symbol string           `json:"symbol"`
	Shares int64            `json:"shares"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

func (s *Server) decodeTradeRequest(w http.ResponseWriter, r *http.Request) (*tradeRequest, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return nil, false
	}
	if usecase.NormalizeSymbol(req.Symbol) == "" {
		s.respondError(w, http.StatusBadRequest, "symbol is required")
		return nil, false
	}
	if req.Shares <= 0 {
		s.respondError(w, http.StatusBadRequest, "shares must be a positive integer")
		return nil, false
	}
	if req.Price != nil && !req.Price.IsPositive() {
		s.respondError(w, http.StatusBadRequest, "price must be positive")
		return nil, false
	}
	return &req, true
}

func (s *Server) respondTradeResult(w http.ResponseWriter, result *usecase.TradeResult) {
	resp := map[string]any{
		"balance": result.Balance,
		"price":   result.Price,
		"shares":  result.Shares,
		"reason":  string(result.Reason),
	}
	if result.Holding != nil {
		view := s.holdingView(result.Holding)
		resp["holding"] = &view
	} else {
		resp["holding"] = nil
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTradeRequest(w, r)
	if !ok {
		return
	}

	result, err := s.executor.Buy(r.Context(), req.UserID, req.Symbol, req.Shares, req.Price)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondTradeResult(w, result)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTradeRequest(w, r)
	if !ok {
		return
	}

	result, err := s.executor.Sell(r.Context(), req.UserID, req.Symbol, req.Shares, req.Price, domain.ReasonManual)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondTradeResult(w, result)
}

func (s *Server) handleSetProtection(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	symbol := usecase.NormalizeSymbol(r.PathValue("symbol"))

	var req struct {
		StopLoss   *decimal.Decimal `json:"stop_loss"`
		TakeProfit *decimal.Decimal `json:"take_profit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var protection domain.Protection
	switch {
	case req.StopLoss != nil && req.TakeProfit != nil:
		if !req.StopLoss.IsPositive() || !req.TakeProfit.IsPositive() {
			s.respondError(w, http.StatusBadRequest, "thresholds must be positive")
			return
		}
		if req.StopLoss.GreaterThanOrEqual(*req.TakeProfit) {
			s.respondError(w, http.StatusBadRequest, "stop_loss must be below take_profit")
			return
		}
		protection = domain.ProtectBoth(*req.StopLoss, *req.TakeProfit)
	case req.StopLoss != nil:
		if !req.StopLoss.IsPositive() {
			s.respondError(w, http.StatusBadRequest, "thresholds must be positive")
			return
		}
		protection = domain.StopLossAt(*req.StopLoss)
	case req.TakeProfit != nil:
		if !req.TakeProfit.IsPositive() {
			s.respondError(w, http.StatusBadRequest, "thresholds must be positive")
			return
		}
		protection = domain.TakeProfitAt(*req.TakeProfit)
	default:
		// No thresholds disarms auto-sell for the holding.
		protection = domain.NoProtection()
	}

	if err := s.ledger.SetProtection(r.Context(), userID, symbol, protection); err != nil {
		s.respondDomainError(w, err)
		return
	}

	holding, err := s.ledger.GetHolding(r.Context(), userID, symbol)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.holdingView(holding))
}
