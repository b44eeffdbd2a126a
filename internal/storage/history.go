package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"balance-telemetry/internal/model"
)

const (
	fetchHistorySQL = `SELECT
        id,
        ts,
        total_usd,
        total_usd_usdt,
        total_rlb,
        rlb_price_usd
    FROM balance_history
    WHERE ($1::timestamptz IS NULL OR ts >= $1)
    ORDER BY ts, id;`

	latestSnapshotSQL = `SELECT
        id,
        ts,
        total_usd,
        total_usd_usdt,
        total_rlb,
        rlb_price_usd
    FROM balance_history
    ORDER BY ts DESC, id DESC
    LIMIT 1;`

	insertSnapshotSQL = `INSERT INTO balance_history (
        ts,
        total_usd,
        total_usd_usdt,
        total_rlb,
        rlb_price_usd
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id;`

	// Deltas are taken against the previous snapshot in time order.
	anomalyCandidatesSQL = `WITH ordered AS (
        SELECT
            id,
            ts,
            total_usd,
            total_usd_usdt,
            total_rlb,
            total_usd_usdt - LAG(total_usd_usdt) OVER (ORDER BY ts, id) AS stable_delta,
            total_rlb - LAG(total_rlb) OVER (ORDER BY ts, id)           AS token_delta
        FROM balance_history
    )
    SELECT
        id,
        ts,
        total_usd,
        total_usd_usdt,
        total_rlb,
        stable_delta,
        token_delta
    FROM ordered
    WHERE ABS(stable_delta) > $1
       OR ABS(token_delta) > $2
    ORDER BY ts, id
    LIMIT $3;`

	batchDeleteSnapshotsSQL = `DELETE FROM balance_history WHERE id = ANY($1);`
	deleteSnapshotSQL       = `DELETE FROM balance_history WHERE id = $1;`
)

// FetchHistory lists snapshots ascending by time, optionally from since onwards.
func (s *Store) FetchHistory(ctx context.Context, since *time.Time) ([]model.HistoryPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, fetchHistorySQL, since)
	if queryErr != nil {
		return nil, model.Transient("fetch history", queryErr)
	}
	defer rows.Close()

	points := make([]model.HistoryPoint, 0)
	for rows.Next() {
		point, scanErr := scanHistoryPoint(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, model.Transient("fetch history", rows.Err())
	}
	return points, nil
}

// LatestSnapshot returns the most recent stored snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (model.HistoryPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.HistoryPoint{}, err
	}

	rows, queryErr := pool.Query(ctx, latestSnapshotSQL)
	if queryErr != nil {
		return model.HistoryPoint{}, model.Transient("latest snapshot", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return model.HistoryPoint{}, model.Transient("latest snapshot", rows.Err())
		}
		return model.HistoryPoint{}, model.ErrNotFound
	}
	return scanHistoryPoint(rows)
}

// InsertSnapshot persists a live point and returns its id.
func (s *Store) InsertSnapshot(ctx context.Context, point model.HistoryPoint) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertSnapshotSQL,
		point.Timestamp,
		point.TotalUSD,
		point.TotalUSDUSDT,
		point.TotalRLB,
		point.RLBPriceUSD,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert snapshot: %w", scanErr)
	}
	return id, nil
}

// FetchAnomalyCandidates returns up to pageSize snapshots whose delta from the
// previous snapshot exceeds a threshold.
func (s *Store) FetchAnomalyCandidates(ctx context.Context, thresholds model.Thresholds, pageSize int) ([]model.AnomalousSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, anomalyCandidatesSQL, thresholds.StableDelta, thresholds.TokenDelta, pageSize)
	if queryErr != nil {
		return nil, model.Transient("fetch anomaly candidates", queryErr)
	}
	defer rows.Close()

	out := make([]model.AnomalousSnapshot, 0, pageSize)
	for rows.Next() {
		var snap model.AnomalousSnapshot
		if scanErr := rows.Scan(
			&snap.ID,
			&snap.Timestamp,
			&snap.TotalUSD,
			&snap.TotalUSDUSDT,
			&snap.TotalRLB,
			&snap.StableDelta,
			&snap.TokenDelta,
		); scanErr != nil {
			return nil, fmt.Errorf("scan anomaly candidate: %w", scanErr)
		}
		snap.Reason = AnomalyReason(snap, thresholds)
		out = append(out, snap)
	}
	if rows.Err() != nil {
		return nil, model.Transient("fetch anomaly candidates", rows.Err())
	}
	return out, nil
}

// AnomalyReason explains which thresholds a snapshot violates.
func AnomalyReason(snap model.AnomalousSnapshot, thresholds model.Thresholds) string {
	reasons := make([]string, 0, 2)
	if abs(snap.StableDelta) > thresholds.StableDelta {
		reasons = append(reasons, fmt.Sprintf("stablecoin Δ %+.2f exceeds %.2f", snap.StableDelta, thresholds.StableDelta))
	}
	if abs(snap.TokenDelta) > thresholds.TokenDelta {
		reasons = append(reasons, fmt.Sprintf("RLB Δ %+.2f exceeds %.2f", snap.TokenDelta, thresholds.TokenDelta))
	}
	return strings.Join(reasons, "; ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// BatchDelete removes all ids in one transaction. Either every row goes or none does.
func (s *Store) BatchDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var deleted int64
	txErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctx, batchDeleteSnapshotsSQL, ids)
		if execErr != nil {
			return execErr
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if txErr != nil {
		return 0, fmt.Errorf("batch delete snapshots: %w", txErr)
	}
	return deleted, nil
}

// DeleteOne removes a single snapshot.
func (s *Store) DeleteOne(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteSnapshotSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete snapshot: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func scanHistoryPoint(rows pgx.Rows) (model.HistoryPoint, error) {
	var (
		point model.HistoryPoint
		price *float64
	)
	if err := rows.Scan(
		&point.ID,
		&point.Timestamp,
		&point.TotalUSD,
		&point.TotalUSDUSDT,
		&point.TotalRLB,
		&price,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.HistoryPoint{}, model.ErrNotFound
		}
		return model.HistoryPoint{}, fmt.Errorf("scan history point: %w", err)
	}
	point.RLBPriceUSD = price
	point.Timestamp = point.Timestamp.UTC()
	return point, nil
}
