package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stocksim/stocksim/internal/domain"
	"github.com/stocksim/stocksim/internal/infrastructure/quotes"
	"github.com/stocksim/stocksim/internal/realtime"
	"github.com/stocksim/stocksim/internal/usecase"
)

type Server struct {
	router          *http.ServeMux
	server          *http.Server
	ledger          domain.LedgerRepository
	executor        *usecase.TradeExecutor
	monitor         *usecase.PriceMonitor
	quotes          *quotes.CachingSource
	hub             *realtime.Hub
	startingBalance decimal.Decimal
	logger          *zap.Logger
}

func NewServer(
	port int,
	ledger domain.LedgerRepository,
	executor *usecase.TradeExecutor,
	monitor *usecase.PriceMonitor,
	quoteSource *quotes.CachingSource,
	hub *realtime.Hub,
	startingBalance decimal.Decimal,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:          http.NewServeMux(),
		ledger:          ledger,
		executor:        executor,
		monitor:         monitor,
		quotes:          quoteSource,
		hub:             hub,
		startingBalance: startingBalance,
		logger:          logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Accounts
	s.router.HandleFunc("POST /api/users", s.handleCreateUser)
	s.router.HandleFunc("GET /api/users/{id}/portfolio", s.handlePortfolio)
	s.router.HandleFunc("GET /api/users/{id}/transactions", s.handleTransactions)

	// Trading
	s.router.HandleFunc("POST /api/trade/buy", s.handleBuy)
	s.router.HandleFunc("POST /api/trade/sell", s.handleSell)
	s.router.HandleFunc("PUT /api/users/{id}/holdings/{symbol}/protection", s.handleSetProtection)

	// Quotes
	s.router.HandleFunc("GET /api/quotes/{symbol}", s.handleQuote)

	// Monitor lifecycle
	s.router.HandleFunc("GET /api/monitor", s.handleMonitorStatus)
	s.router.HandleFunc("POST /api/monitor/start", s.handleMonitorStart)
	s.router.HandleFunc("POST /api/monitor/stop", s.handleMonitorStop)

	// Realtime trade feed
	s.router.HandleFunc("GET /ws", s.handleWebsocket)
}

// Handler exposes the route table, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
