// Package remediation detects and purges anomalous balance snapshots.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"balance-telemetry/internal/model"
)

const (
	DefaultPageSize      = 500
	DefaultMaxIterations = 100
)

// ErrRemediationInProgress is returned when a second run starts against the same dataset.
var ErrRemediationInProgress = errors.New("remediation already running")

// AnomalyStore is the slice of the history store used by remediation.
type AnomalyStore interface {
	FetchAnomalyCandidates(ctx context.Context, thresholds model.Thresholds, pageSize int) ([]model.AnomalousSnapshot, error)
	BatchDelete(ctx context.Context, ids []int64) (int64, error)
}

// Locker serialises runs across processes.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Prompt is what the operator is asked to confirm.
type Prompt struct {
	RunID      uuid.UUID
	Candidates []model.AnomalousSnapshot
	Thresholds model.Thresholds
}

// Confirmer asks the operator to approve the irrevocable purge.
type Confirmer interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt Prompt) (bool, error) {
	return f(ctx, prompt)
}

// Options tune a Remediator.
type Options struct {
	Thresholds    model.Thresholds
	PageSize      int
	MaxIterations int
	LockKey       int64
}

// Report summarises a finished run.
type Report struct {
	RunID      uuid.UUID
	Outcome    State
	Removed    int64
	Iterations int
	Declined   bool
	Started    time.Time
	Finished   time.Time
	Err        error
}

// Remediator drives the detect/confirm/purge machine to a terminal state.
type Remediator struct {
	store   AnomalyStore
	confirm Confirmer
	locker  Locker
	opts    Options
	logger  zerolog.Logger

	running sync.Mutex
}

// New constructs a Remediator. locker may be nil.
func New(store AnomalyStore, confirm Confirmer, locker Locker, opts Options, logger zerolog.Logger) *Remediator {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Remediator{
		store:   store,
		confirm: confirm,
		locker:  locker,
		opts:    opts,
		logger:  logger.With().Str("component", "remediator").Logger(),
	}
}

// Run executes one remediation run. A declined confirmation returns a nil error.
// Hitting the iteration cap returns model.ErrConvergenceExceeded and a failed
// batch delete returns a *model.BatchOperationError; both carry the partial count in the report.
func (r *Remediator) Run(ctx context.Context) (Report, error) {
	if !r.running.TryLock() {
		return Report{}, ErrRemediationInProgress
	}
	defer r.running.Unlock()

	if r.locker != nil && r.opts.LockKey != 0 {
		unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.opts.LockKey)
		if err != nil {
			return Report{}, fmt.Errorf("acquire remediation lock: %w", err)
		}
		if !acquired {
			return Report{}, ErrRemediationInProgress
		}
		defer unlock()
	}

	m := NewMachine(r.store, r.confirm, r.opts)
	logger := r.logger.With().Str("run_id", m.RunID().String()).Logger()
	started := time.Now().UTC()
	logger.Info().
		Float64("stable_delta", r.opts.Thresholds.StableDelta).
		Float64("token_delta", r.opts.Thresholds.TokenDelta).
		Msg("remediation started")

	for !m.State().Terminal() {
		prev := m.State()
		if err := m.Step(ctx); err != nil {
			// Step only fails on a broken collaborator outside the machine's error taxonomy.
			logger.Error().Err(err).Str("state", prev.String()).Msg("remediation step failed")
			return m.report(started), err
		}
		logger.Debug().
			Str("from", prev.String()).
			Str("to", m.State().String()).
			Int("iteration", m.Iteration()).
			Int64("removed", m.Removed()).
			Msg("remediation transition")
	}

	report := m.report(started)
	event := logger.Info()
	if report.Err != nil {
		event = logger.Warn().Err(report.Err)
	}
	event.Str("outcome", report.Outcome.String()).
		Int64("removed", report.Removed).
		Int("iterations", report.Iterations).
		Bool("declined", report.Declined).
		Msg("remediation finished")

	return report, report.Err
}

// Describe renders candidates as one line per snapshot for confirmation prompts.
func Describe(candidates []model.AnomalousSnapshot, limit int) string {
	var b strings.Builder
	for i, c := range candidates {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&b, "... and %d more\n", len(candidates)-limit)
			break
		}
		fmt.Fprintf(&b, "#%d %s %s\n", c.ID, c.Timestamp.UTC().Format(time.RFC3339), c.Reason)
	}
	return b.String()
}
