package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/stocksim/stocksim/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// _txlock=immediate makes write transactions take the lock up front,
	// _busy_timeout keeps concurrent writers from failing fast with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			balance TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS holdings (
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			shares INTEGER NOT NULL,
			average_price TEXT NOT NULL,
			total_invested TEXT NOT NULL,
			stop_loss TEXT,
			take_profit TEXT,
			auto_sell_enabled BOOLEAN NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, symbol)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_holdings_auto_sell ON holdings(auto_sell_enabled, shares);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			type TEXT NOT NULL,
			shares INTEGER NOT NULL,
			price TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Users

func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, balance, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Balance.String(), user.CreatedAt)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, balance, created_at FROM users WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	var u domain.User
	var balance string
	if err := row.Scan(&u.ID, &balance, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for user %s: %w", id, err)
	}
	u.Balance = b
	return &u, nil
}

// Holdings

const holdingColumns = `user_id, symbol, shares, average_price, total_invested, stop_loss, take_profit, version, created_at, updated_at`

func (s *SQLiteStore) GetHolding(ctx context.Context, userID, symbol string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = ? AND symbol = ?`
	h, err := scanHolding(s.db.QueryRowContext(ctx, query, userID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, err
	}
	return h, nil
}

func (s *SQLiteStore) ListUserHoldings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = ? ORDER BY symbol`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (s *SQLiteStore) ListProtectedHoldings(ctx context.Context) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE auto_sell_enabled = 1 AND shares > 0`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (s *SQLiteStore) SetProtection(ctx context.Context, userID, symbol string, p domain.Protection) error {
	stopLoss, takeProfit := protectionColumns(p)
	query := `UPDATE holdings SET stop_loss = ?, take_profit = ?, auto_sell_enabled = ?, version = version + 1, updated_at = ?
			  WHERE user_id = ? AND symbol = ?`
	res, err := s.db.ExecContext(ctx, query, stopLoss, takeProfit, p.Enabled(), time.Now().UTC(), userID, symbol)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrHoldingNotFound
	}
	return nil
}

// Ledger mutations

// ApplySell commits a sell in one transaction: holding CAS on version, balance
// credit, append-only log entry. A lost CAS rolls everything back.
func (s *SQLiteStore) ApplySell(ctx context.Context, app *domain.SellApplication) (*domain.LedgerUpdate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var res sql.Result
	if app.NewShares == 0 {
		// Full liquidation removes the row; thresholds go with it.
		res, err = tx.ExecContext(ctx,
			`DELETE FROM holdings WHERE user_id = ? AND symbol = ? AND version = ?`,
			app.UserID, app.Symbol, app.ExpectedVersion)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE holdings SET shares = ?, total_invested = ?, version = version + 1, updated_at = ?
			 WHERE user_id = ? AND symbol = ? AND version = ?`,
			app.NewShares, app.NewTotalInvested.String(), now,
			app.UserID, app.Symbol, app.ExpectedVersion)
	}
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrStoreConflict
	}

	proceeds := app.Price.Mul(decimal.NewFromInt(app.Shares))
	newBalance, err := adjustBalanceTx(ctx, tx, app.UserID, proceeds)
	if err != nil {
		return nil, err
	}

	if err := appendTransactionTx(ctx, tx, &domain.Transaction{
		ID:        app.TransactionID,
		UserID:    app.UserID,
		Symbol:    app.Symbol,
		Type:      domain.TransactionSell,
		Shares:    app.Shares,
		Price:     app.Price,
		Reason:    app.Reason,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	update := &domain.LedgerUpdate{Balance: newBalance}
	if app.NewShares > 0 {
		h, err := scanHolding(tx.QueryRowContext(ctx,
			`SELECT `+holdingColumns+` FROM holdings WHERE user_id = ? AND symbol = ?`,
			app.UserID, app.Symbol))
		if err != nil {
			return nil, err
		}
		update.Holding = h
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return update, nil
}

// ApplyBuy commits a buy in one transaction: balance debit (the authoritative
// funds check), holding insert or CAS update, append-only log entry.
func (s *SQLiteStore) ApplyBuy(ctx context.Context, app *domain.BuyApplication) (*domain.LedgerUpdate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	cost := app.Price.Mul(decimal.NewFromInt(app.Shares))
	newBalance, err := adjustBalanceTx(ctx, tx, app.UserID, cost.Neg())
	if err != nil {
		return nil, err
	}

	if app.Create {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO holdings (user_id, symbol, shares, average_price, total_invested, auto_sell_enabled, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?)`,
			app.UserID, app.Symbol, app.NewShares, app.NewAveragePrice.String(), app.NewTotalInvested.String(), now, now)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				// Another writer created the holding since the caller looked.
				return nil, domain.ErrStoreConflict
			}
			return nil, err
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE holdings SET shares = ?, average_price = ?, total_invested = ?, version = version + 1, updated_at = ?
			 WHERE user_id = ? AND symbol = ? AND version = ?`,
			app.NewShares, app.NewAveragePrice.String(), app.NewTotalInvested.String(), now,
			app.UserID, app.Symbol, app.ExpectedVersion)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, domain.ErrStoreConflict
		}
	}

	if err := appendTransactionTx(ctx, tx, &domain.Transaction{
		ID:        app.TransactionID,
		UserID:    app.UserID,
		Symbol:    app.Symbol,
		Type:      domain.TransactionBuy,
		Shares:    app.Shares,
		Price:     app.Price,
		Reason:    domain.ReasonManual,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	h, err := scanHolding(tx.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = ? AND symbol = ?`,
		app.UserID, app.Symbol))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.LedgerUpdate{Balance: newBalance, Holding: h}, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	query := `SELECT id, user_id, symbol, type, shares, price, reason, created_at FROM transactions
			  WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var price string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Type, &t.Shares, &price, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("corrupt price in transaction %s: %w", t.ID, err)
		}
		t.Price = p
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// helpers

func adjustBalanceTx(ctx context.Context, tx *sql.Tx, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balanceStr string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrUserNotFound
		}
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}

	newBalance := balance.Add(delta)
	if newBalance.IsNegative() {
		return decimal.Zero, domain.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET balance = ? WHERE id = ?`, newBalance.String(), userID); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

func appendTransactionTx(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, symbol, type, shares, price, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Symbol, string(t.Type), t.Shares, t.Price.String(), string(t.Reason), t.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var h domain.Holding
	var avgPrice, totalInvested string
	var stopLoss, takeProfit sql.NullString
	if err := row.Scan(&h.UserID, &h.Symbol, &h.Shares, &avgPrice, &totalInvested,
		&stopLoss, &takeProfit, &h.Version, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if h.AveragePrice, err = decimal.NewFromString(avgPrice); err != nil {
		return nil, fmt.Errorf("corrupt average_price for %s/%s: %w", h.UserID, h.Symbol, err)
	}
	if h.TotalInvested, err = decimal.NewFromString(totalInvested); err != nil {
		return nil, fmt.Errorf("corrupt total_invested for %s/%s: %w", h.UserID, h.Symbol, err)
	}
	if h.Protection, err = protectionFromColumns(stopLoss, takeProfit); err != nil {
		return nil, fmt.Errorf("corrupt thresholds for %s/%s: %w", h.UserID, h.Symbol, err)
	}
	return &h, nil
}

func collectHoldings(rows *sql.Rows) ([]*domain.Holding, error) {
	var holdings []*domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func protectionColumns(p domain.Protection) (stopLoss, takeProfit sql.NullString) {
	if p.HasStopLoss() {
		stopLoss = sql.NullString{String: p.StopLoss.String(), Valid: true}
	}
	if p.HasTakeProfit() {
		takeProfit = sql.NullString{String: p.TakeProfit.String(), Valid: true}
	}
	return stopLoss, takeProfit
}

func protectionFromColumns(stopLoss, takeProfit sql.NullString) (domain.Protection, error) {
	switch {
	case stopLoss.Valid && takeProfit.Valid:
		low, err := decimal.NewFromString(stopLoss.String)
		if err != nil {
			return domain.Protection{}, err
		}
		high, err := decimal.NewFromString(takeProfit.String)
		if err != nil {
			return domain.Protection{}, err
		}
		return domain.ProtectBoth(low, high), nil
	case stopLoss.Valid:
		low, err := decimal.NewFromString(stopLoss.String)
		if err != nil {
			return domain.Protection{}, err
		}
		return domain.StopLossAt(low), nil
	case takeProfit.Valid:
		high, err := decimal.NewFromString(takeProfit.String)
		if err != nil {
			return domain.Protection{}, err
		}
		return domain.TakeProfitAt(high), nil
	default:
		return domain.NoProtection(), nil
	}
}
