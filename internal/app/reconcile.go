package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"balance-telemetry/internal/fetcher"
	"balance-telemetry/internal/model"
)

// SnapshotSource returns the newest stored snapshot.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context) (model.HistoryPoint, error)
}

// Reconciliation compares the stored RLB total with the on-chain balance.
type Reconciliation struct {
	SnapshotTime time.Time
	Stored       decimal.Decimal
	OnChain      decimal.Decimal
	Block        uint64
	Drift        decimal.Decimal
	DriftPct     decimal.Decimal
}

// Reconcile reads the latest snapshot and the on-chain RLB balance and prints the drift.
func (a *App) Reconcile(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := reconcile(ctx, store, a.newBalanceFetcher())
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("stored", rec.Stored.String()).
		Str("onchain", rec.OnChain.String()).
		Str("drift_pct", rec.DriftPct.StringFixed(4)).
		Uint64("block", rec.Block).
		Msg("rlb balance reconciled")

	fmt.Fprintf(out, "snapshot %s: stored %s RLB, on-chain %s RLB at block %d, drift %s (%s%%)\n",
		rec.SnapshotTime.UTC().Format(time.RFC3339),
		rec.Stored.StringFixed(4), rec.OnChain.StringFixed(4), rec.Block,
		rec.Drift.StringFixed(4), rec.DriftPct.StringFixed(4))
	return nil
}

func reconcile(ctx context.Context, snapshots SnapshotSource, balances fetcher.TokenBalanceFetcher) (Reconciliation, error) {
	latest, err := snapshots.LatestSnapshot(ctx)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("latest snapshot: %w", err)
	}
	onchain, block, err := balances.FetchBalance(ctx)
	if err != nil {
		return Reconciliation{}, model.Transient("fetch on-chain balance", err)
	}

	stored := decimal.NewFromFloat(latest.TotalRLB)
	rec := Reconciliation{
		SnapshotTime: latest.Timestamp,
		Stored:       stored,
		OnChain:      onchain,
		Block:        block,
		Drift:        stored.Sub(onchain),
	}
	if !onchain.IsZero() {
		rec.DriftPct = rec.Drift.Div(onchain).Mul(decimal.NewFromInt(100))
	}
	return rec, nil
}
