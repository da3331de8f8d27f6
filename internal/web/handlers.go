package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stocksim/stocksim/internal/domain"
	"github.com/stocksim/stocksim/internal/usecase"
)

type holdingView struct {
	Symbol          string           `json:"symbol"`
	Shares          int64            `json:"shares"`
	AveragePrice    decimal.Decimal  `json:"average_price"`
	TotalInvested   decimal.Decimal  `json:"total_invested"`
	StopLoss        *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit      *decimal.Decimal `json:"take_profit,omitempty"`
	AutoSellEnabled bool             `json:"auto_sell_enabled"`
	LastPrice       *decimal.Decimal `json:"last_price,omitempty"`
	MarketValue     *decimal.Decimal `json:"market_value,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (s *Server) holdingView(h *domain.Holding) holdingView {
	v := holdingView{
		Symbol:          h.Symbol,
		Shares:          h.Shares,
		AveragePrice:    h.AveragePrice,
		TotalInvested:   h.TotalInvested,
		AutoSellEnabled: h.Protection.Enabled(),
		UpdatedAt:       h.UpdatedAt,
	}
	if h.Protection.HasStopLoss() {
		sl := h.Protection.StopLoss
		v.StopLoss = &sl
	}
	if h.Protection.HasTakeProfit() {
		tp := h.Protection.TakeProfit
		v.TakeProfit = &tp
	}
	if quote, ok := s.quotes.LastKnown(h.Symbol); ok {
		price := quote.Price
		value := price.Mul(decimal.NewFromInt(h.Shares))
		v.LastPrice = &price
		v.MarketValue = &value
	}
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps ledger/quote errors to HTTP statuses. Precondition
// failures keep their descriptive message; everything else is opaque.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrHoldingNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientShares), errors.Is(err, domain.ErrInsufficientFunds):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreConflict):
		s.respondError(w, http.StatusConflict, "holding was modified concurrently, try again")
	case errors.Is(err, domain.ErrQuoteUnavailable):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartingBalance *decimal.Decimal `json:"starting_balance"`
	}
	// An empty body means the default starting balance; anything else must
	// parse.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	balance := s.startingBalance
	if req.StartingBalance != nil {
		if req.StartingBalance.IsNegative() {
			s.respondError(w, http.StatusBadRequest, "starting balance cannot be negative")
			return
		}
		balance = *req.StartingBalance
	}

	user := &domain.User{
		ID:        uuid.NewString(),
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.CreateUser(r.Context(), user); err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"balance": user.Balance,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	user, err := s.ledger.GetUser(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	holdings, err := s.ledger.ListUserHoldings(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	views := make([]holdingView, 0, len(holdings))
	for _, h := range holdings {
		views = append(views, s.holdingView(h))
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"balance":  user.Balance,
		"holdings": views,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	if _, err := s.ledger.GetUser(r.Context(), userID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	type txView struct {
		ID        string          `json:"id"`
		Symbol    string          `json:"symbol"`
		Type      string          `json:"type"`
		Shares    int64           `json:"shares"`
		Price     decimal.Decimal `json:"price"`
		Reason    string          `json:"reason"`
		CreatedAt time.Time       `json:"created_at"`
	}
	views := make([]txView, 0, len(txs))
	for _, t := range txs {
		views = append(views, txView{
			ID:        t.ID,
			Symbol:    t.Symbol,
			Type:      string(t.Type),
			Shares:    t.Shares,
			Price:     t.Price,
			Reason:    string(t.Reason),
			CreatedAt: t.CreatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"transactions": views})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := usecase.NormalizeSymbol(r.PathValue("symbol"))
	if symbol == "" {
		s.respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	quote, err := s.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		// Serve the last-known price when live providers are down.
		if last, ok := s.quotes.LastKnown(symbol); ok {
			s.respondJSON(w, http.StatusOK, map[string]any{
				"symbol":     last.Symbol,
				"price":      last.Price,
				"fetched_at": last.FetchedAt,
				"stale":      true,
			})
			return
		}
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"symbol":     quote.Symbol,
		"price":      quote.Price,
		"fetched_at": quote.FetchedAt,
		"stale":      false,
	})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"running": s.monitor.Running()})
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	s.monitor.Start()
	s.respondJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	s.monitor.Stop()
	s.respondJSON(w, http.StatusOK, map[string]any{"running": false})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.AddClient(conn)

	// Drain client frames so we notice the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.RemoveClient(conn)
				return
			}
		}
	}()
}
