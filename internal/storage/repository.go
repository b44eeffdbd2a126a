package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"balance-telemetry/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HistoryStore serves balance snapshots and anomaly hygiene operations.
type HistoryStore interface {
	FetchHistory(ctx context.Context, since *time.Time) ([]model.HistoryPoint, error)
	LatestSnapshot(ctx context.Context) (model.HistoryPoint, error)
	InsertSnapshot(ctx context.Context, point model.HistoryPoint) (int64, error)
	FetchAnomalyCandidates(ctx context.Context, thresholds model.Thresholds, pageSize int) ([]model.AnomalousSnapshot, error)
	BatchDelete(ctx context.Context, ids []int64) (int64, error)
	DeleteOne(ctx context.Context, id int64) error
}

// TradeStore serves executed trades.
type TradeStore interface {
	FetchTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, error)
	DeleteTrade(ctx context.Context, id int64) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots and trades.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// The lock lives on one pooled connection, which is held until unlock.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, model.Transient("acquire connection", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Closing the connection also releases the lock, so a failed unlock only costs the connection.
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var (
	_ HistoryStore   = (*Store)(nil)
	_ TradeStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
