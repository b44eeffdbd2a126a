package remediation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"balance-telemetry/internal/model"
)

// memoryStore flags a snapshot while it remains in pending. Deleting one
// anomaly may unmask the next, modelled by the reveal queue.
type memoryStore struct {
	pending   []int64
	reveal    [][]int64
	deleted   []int64
	detects   int
	deletes   int
	failAt    int
	detectErr error
}

func (s *memoryStore) FetchAnomalyCandidates(_ context.Context, _ model.Thresholds, pageSize int) ([]model.AnomalousSnapshot, error) {
	s.detects++
	if s.detectErr != nil {
		return nil, s.detectErr
	}
	out := make([]model.AnomalousSnapshot, 0, len(s.pending))
	for i, id := range s.pending {
		if i >= pageSize {
			break
		}
		out = append(out, model.AnomalousSnapshot{ID: id, Timestamp: time.Unix(id, 0), Reason: "usdt jump"})
	}
	return out, nil
}

func (s *memoryStore) BatchDelete(_ context.Context, ids []int64) (int64, error) {
	s.deletes++
	if s.failAt > 0 && s.deletes == s.failAt {
		return 0, errors.New("connection reset")
	}
	gone := make(map[int64]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	kept := s.pending[:0:0]
	for _, id := range s.pending {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	s.pending = kept
	s.deleted = append(s.deleted, ids...)
	if len(s.reveal) > 0 {
		s.pending = append(s.pending, s.reveal[0]...)
		s.reveal = s.reveal[1:]
	}
	return int64(len(ids)), nil
}

type countingConfirmer struct {
	answer bool
	calls  int
}

func (c *countingConfirmer) Confirm(context.Context, Prompt) (bool, error) {
	c.calls++
	return c.answer, nil
}

func newRemediator(store AnomalyStore, confirm Confirmer, maxIter int) *Remediator {
	return New(store, confirm, nil, Options{
		Thresholds:    model.Thresholds{StableDelta: 100, TokenDelta: 1000},
		PageSize:      10,
		MaxIterations: maxIter,
	}, zerolog.Nop())
}

func TestRunNoCandidates(t *testing.T) {
	store := &memoryStore{}
	confirm := &countingConfirmer{answer: true}

	report, err := newRemediator(store, confirm, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Outcome != Converged || report.Removed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if confirm.calls != 0 {
		t.Fatalf("confirmation must not be requested when nothing is anomalous")
	}
}

func TestRunConvergesAcrossIterations(t *testing.T) {
	store := &memoryStore{pending: []int64{1, 2}, reveal: [][]int64{{3}}}
	confirm := &countingConfirmer{answer: true}
	rem := newRemediator(store, confirm, 0)

	report, err := rem.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Outcome != Converged || report.Removed != 3 || report.Iterations != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if confirm.calls != 1 {
		t.Fatalf("confirmation must be requested exactly once, got %d", confirm.calls)
	}

	again, err := rem.Run(context.Background())
	if err != nil || again.Removed != 0 || again.Outcome != Converged {
		t.Fatalf("second run should be a no-op, got %+v (%v)", again, err)
	}
}

func TestRunDeclined(t *testing.T) {
	store := &memoryStore{pending: []int64{1}}
	report, err := newRemediator(store, &countingConfirmer{answer: false}, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("declining is not an error, got %v", err)
	}
	if report.Outcome != Aborted || !report.Declined {
		t.Fatalf("unexpected report %+v", report)
	}
	if store.deletes != 0 {
		t.Fatalf("declined run must not delete")
	}
}

func TestRunCapExceeded(t *testing.T) {
	reveal := make([][]int64, 50)
	for i := range reveal {
		reveal[i] = []int64{int64(100 + i)}
	}
	store := &memoryStore{pending: []int64{1}, reveal: reveal}

	report, err := newRemediator(store, &countingConfirmer{answer: true}, 5).Run(context.Background())
	if !errors.Is(err, model.ErrConvergenceExceeded) {
		t.Fatalf("expected convergence error, got %v", err)
	}
	if report.Outcome != CapExceeded || report.Removed != 5 || report.Iterations != 5 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunConvergesOnFinalIterationAtCap(t *testing.T) {
	reveal := [][]int64{{2}, {3}, {4}, {5}}
	store := &memoryStore{pending: []int64{1}, reveal: reveal}

	report, err := newRemediator(store, &countingConfirmer{answer: true}, 5).Run(context.Background())
	if err != nil {
		t.Fatalf("clean scan after the last allowed purge must converge, got %v", err)
	}
	if report.Outcome != Converged || report.Removed != 5 || report.Iterations != 5 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunDeclinedBySentinel(t *testing.T) {
	store := &memoryStore{pending: []int64{1}}
	confirm := ConfirmFunc(func(context.Context, Prompt) (bool, error) {
		return false, fmt.Errorf("stdin closed: %w", model.ErrConfirmationDeclined)
	})

	report, err := newRemediator(store, confirm, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("declining is not an error, got %v", err)
	}
	if report.Outcome != Aborted || !report.Declined || report.Err != nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if store.deletes != 0 {
		t.Fatalf("declined run must not delete")
	}
}

func TestRunBatchFailureKeepsProgress(t *testing.T) {
	store := &memoryStore{pending: []int64{1}, reveal: [][]int64{{2}}, failAt: 2}

	report, err := newRemediator(store, &countingConfirmer{answer: true}, 0).Run(context.Background())
	var batchErr *model.BatchOperationError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected batch operation error, got %v", err)
	}
	if batchErr.Iteration != 2 || len(batchErr.IDs) != 1 {
		t.Fatalf("unexpected batch error %+v", batchErr)
	}
	if report.Outcome != Aborted || report.Removed != 1 {
		t.Fatalf("prior deletions must be reported, got %+v", report)
	}
	if store.detects != 2 {
		t.Fatalf("failed batch must not be retried, detects=%d", store.detects)
	}
}

func TestMachineTransitions(t *testing.T) {
	store := &memoryStore{pending: []int64{7}}
	m := NewMachine(store, &countingConfirmer{answer: true}, Options{PageSize: 5, MaxIterations: 3})
	ctx := context.Background()

	steps := []State{AwaitingConfirmation, Purging, Detecting, Converged}
	for i, want := range steps {
		if err := m.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if m.State() != want {
			t.Fatalf("step %d: want %s got %s", i, want, m.State())
		}
	}
	if err := m.Step(ctx); err != nil || m.State() != Converged {
		t.Fatalf("terminal state must be stable")
	}
}

type heldLocker struct{}

func (heldLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, nil
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	rem := New(&memoryStore{}, &countingConfirmer{}, heldLocker{}, Options{LockKey: 42}, zerolog.Nop())
	if _, err := rem.Run(context.Background()); !errors.Is(err, ErrRemediationInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}

	local := newRemediator(&memoryStore{}, &countingConfirmer{}, 0)
	local.running.Lock()
	defer local.running.Unlock()
	if _, err := local.Run(context.Background()); !errors.Is(err, ErrRemediationInProgress) {
		t.Fatalf("expected in-progress error for overlapping local run, got %v", err)
	}
}
