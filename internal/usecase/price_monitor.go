package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stocksim/stocksim/internal/domain"
)

const defaultMonitorInterval = 60 * time.Second

// PriceMonitor periodically scans holdings with armed thresholds, fetches one
// quote per distinct symbol and liquidates triggered positions through the
// trade executor. One scheduled instance at a time; Start and Stop are
// idempotent.
type PriceMonitor struct {
	ledger      domain.LedgerRepository
	quotes      domain.QuoteSource
	executor    *TradeExecutor
	evaluator   *TriggerEvaluator
	interval    time.Duration
	concurrency int
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewPriceMonitor(
	ledger domain.LedgerRepository,
	quotes domain.QuoteSource,
	executor *TradeExecutor,
	interval time.Duration,
	concurrency int,
	logger *zap.Logger,
) *PriceMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &PriceMonitor{
		ledger:      ledger,
		quotes:      quotes,
		executor:    executor,
		evaluator:   NewTriggerEvaluator(),
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start runs one pass immediately, then schedules a pass every interval.
// Calling Start on a running monitor is a no-op.
func (m *PriceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	m.logger.Info("starting price monitor", zap.Duration("interval", m.interval))
	go m.loop(m.stop, m.done)
}

// Stop cancels the schedule and waits for an in-flight pass to finish. It
// never interrupts a pass mid-way.
func (m *PriceMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info("price monitor stopped")
}

func (m *PriceMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *PriceMonitor) loop(stop, done chan struct{}) {
	defer close(done)

	m.RunPass(context.Background())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.RunPass(context.Background())
		}
	}
}

// RunPass executes one monitor pass. Failures are isolated per symbol and per
// holding; a pass never aborts because one quote fetch or one sell failed.
func (m *PriceMonitor) RunPass(ctx context.Context) {
	start := time.Now()

	holdings, err := m.ledger.ListProtectedHoldings(ctx)
	if err != nil {
		m.logger.Error("failed to list protected holdings", zap.Error(err))
		return
	}
	if len(holdings) == 0 {
		return
	}

	prices := m.fetchPrices(ctx, holdings)

	triggered := 0
	for _, h := range holdings {
		price, ok := prices[h.Symbol]
		if !ok {
			// Quote fetch failed for this symbol; skipped this pass.
			continue
		}
		reason, hit := m.evaluator.Evaluate(h.Protection, price)
		if !hit {
			continue
		}

		// Protective orders are all-or-nothing: liquidate the whole position.
		// The share count is as of the list at the top of the pass. A buy
		// landing in between leaves a partial position with its thresholds
		// still armed; the remainder triggers on the next pass. The version
		// check in the store keeps the ledger consistent either way.
		result, err := m.executor.Sell(ctx, h.UserID, h.Symbol, h.Shares, &price, reason)
		if err != nil {
			m.logger.Warn("auto-sell failed",
				zap.String("user", h.UserID),
				zap.String("symbol", h.Symbol),
				zap.String("reason", string(reason)),
				zap.Error(err))
			continue
		}
		triggered++
		m.logger.Info("auto-sell executed",
			zap.String("user", h.UserID),
			zap.String("symbol", h.Symbol),
			zap.Int64("shares", result.Shares),
			zap.String("price", result.Price.String()),
			zap.String("reason", string(reason)))
	}

	m.logger.Info("monitor pass complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("holdings", len(holdings)),
		zap.Int("triggered", triggered))
}

// fetchPrices fetches one quote per distinct symbol, concurrently. Symbols
// whose fetch failed are absent from the result.
func (m *PriceMonitor) fetchPrices(ctx context.Context, holdings []*domain.Holding) map[string]decimal.Decimal {
	seen := make(map[string]bool)
	var symbols []string
	for _, h := range holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}

	var mu sync.Mutex
	prices := make(map[string]decimal.Decimal, len(symbols))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			quote, err := m.quotes.GetQuote(ctx, symbol)
			if err != nil {
				m.logger.Warn("quote fetch failed, skipping symbol this pass",
					zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			mu.Lock()
			prices[symbol] = quote.Price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return prices
}
