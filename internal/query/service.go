package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Service provides read-only access to the Postgres projection tables for
// historical queries the in-memory views do not keep (paginated archives,
// balances across restarts). Responses carry AsOfSequence for freshness.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// BalanceRow is one projected balance.
type BalanceRow struct {
	Asset        string `json:"asset"`
	Account      string `json:"account"`
	Balance      uint64 `json:"balance"`
	AsOfSequence uint64 `json:"as_of_sequence"`
}

// TradeRow is one archived trade.
type TradeRow struct {
	OrderID    uint64    `json:"order_id"`
	Maker      string    `json:"maker"`
	Filler     string    `json:"filler"`
	TokenGet   string    `json:"token_get"`
	AmountGet  uint64    `json:"amount_get"`
	TokenGive  string    `json:"token_give"`
	AmountGive uint64    `json:"amount_give"`
	TradedAt   time.Time `json:"traded_at"`
}

// TradePage is a page of archived trades, newest first.
type TradePage struct {
	Trades       []TradeRow `json:"trades"`
	Total        uint64     `json:"total"`
	AsOfSequence uint64     `json:"as_of_sequence"`
}

// Balances returns all projected balances for an account.
func (s *Service) Balances(ctx context.Context, account string) ([]BalanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, balance, as_of_sequence
		FROM projections.balances
		WHERE account = $1
		ORDER BY asset
	`, account)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		b := BalanceRow{Account: account}
		if err := rows.Scan(&b.Asset, &b.Balance, &b.AsOfSequence); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// TradeHistory returns a page of archived trades, newest first.
func (s *Service) TradeHistory(ctx context.Context, limit, offset uint64) (*TradePage, error) {
	if limit == 0 || limit > 500 {
		limit = 100
	}

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	var total uint64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projections.trades`,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count trades: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, maker, filler, token_get, amount_get, token_give, amount_give, traded_at
		FROM projections.trades
		ORDER BY order_id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	page := &TradePage{Total: total, AsOfSequence: asOf}
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(
			&t.OrderID, &t.Maker, &t.Filler,
			&t.TokenGet, &t.AmountGet, &t.TokenGive, &t.AmountGive, &t.TradedAt,
		); err != nil {
			return nil, err
		}
		page.Trades = append(page.Trades, t)
	}
	return page, rows.Err()
}

// AccountTrades returns the archived trades an account took part in,
// newest first.
func (s *Service) AccountTrades(ctx context.Context, account string, limit uint64) ([]TradeRow, error) {
	if limit == 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, maker, filler, token_get, amount_get, token_give, amount_give, traded_at
		FROM projections.trades
		WHERE maker = $1 OR filler = $1
		ORDER BY order_id DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query account trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(
			&t.OrderID, &t.Maker, &t.Filler,
			&t.TokenGet, &t.AmountGet, &t.TokenGive, &t.AmountGive, &t.TradedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Service) watermark(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM event_log.events`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
