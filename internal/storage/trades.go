package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"balance-telemetry/internal/model"
)

const (
	fetchTradesSQL = `SELECT
        id,
        ts,
        trigger_type,
        trigger_detail,
        trade_amount::text,
        raw_profit_usd::text,
        profit_with_gas_usd::text,
        opponent,
        win,
        opponent_time_gap_ms,
        api_call_duration_ms
    FROM trades
    WHERE ($1::timestamptz IS NULL OR ts >= $1)
      AND ($2::timestamptz IS NULL OR ts <= $2)
      AND ($3::text = '' OR trigger_type = $3)
    ORDER BY ts, id
    LIMIT NULLIF($4::int, 0);`

	deleteTradeSQL = `DELETE FROM trades WHERE id = $1;`
)

// FetchTrades lists trades ascending by time.
func (s *Store) FetchTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, fetchTradesSQL, filter.Since, filter.Until, filter.TriggerType, filter.Limit)
	if queryErr != nil {
		return nil, model.Transient("fetch trades", queryErr)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		trade, scanErr := scanTrade(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		trades = append(trades, trade)
	}
	if rows.Err() != nil {
		return nil, model.Transient("fetch trades", rows.Err())
	}
	return trades, nil
}

// DeleteTrade removes a single trade record.
func (s *Store) DeleteTrade(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteTradeSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete trade: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func scanTrade(rows pgx.Rows) (model.Trade, error) {
	var (
		trade     model.Trade
		amountStr string
		rawStr    sql.NullString
		netStr    sql.NullString
		win       sql.NullBool
		gap       sql.NullInt64
		latency   sql.NullInt64
	)

	if err := rows.Scan(
		&trade.ID,
		&trade.Timestamp,
		&trade.TriggerType,
		&trade.TriggerDetail,
		&amountStr,
		&rawStr,
		&netStr,
		&trade.Opponent,
		&win,
		&gap,
		&latency,
	); err != nil {
		return model.Trade{}, fmt.Errorf("scan trade: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return model.Trade{}, fmt.Errorf("parse trade amount: %w", err)
	}
	trade.TradeAmount = amount

	if trade.RawProfitUSD, err = parseNullDecimal(rawStr); err != nil {
		return model.Trade{}, fmt.Errorf("parse raw profit: %w", err)
	}
	if trade.ProfitWithGasUSD, err = parseNullDecimal(netStr); err != nil {
		return model.Trade{}, fmt.Errorf("parse profit with gas: %w", err)
	}

	if win.Valid {
		value := win.Bool
		trade.Win = &value
	}
	if gap.Valid {
		value := gap.Int64
		trade.OpponentTimeGapMs = &value
	}
	if latency.Valid {
		value := latency.Int64
		trade.APICallDurationMs = &value
	}
	trade.Timestamp = trade.Timestamp.UTC()

	return trade, nil
}

func parseNullDecimal(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
