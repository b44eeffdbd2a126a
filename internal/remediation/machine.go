package remediation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"balance-telemetry/internal/model"
)

// State is a remediation machine state.
type State int

const (
	Detecting State = iota
	AwaitingConfirmation
	Purging
	Converged
	Aborted
	CapExceeded
)

func (s State) String() string {
	switch s {
	case Detecting:
		return "detecting"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Purging:
		return "purging"
	case Converged:
		return "converged"
	case Aborted:
		return "aborted"
	case CapExceeded:
		return "cap_exceeded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions happen.
func (s State) Terminal() bool {
	return s == Converged || s == Aborted || s == CapExceeded
}

// Machine is one remediation run. Each Step performs a single transition.
type Machine struct {
	store   AnomalyStore
	confirm Confirmer
	opts    Options

	runID      uuid.UUID
	state      State
	iteration  int
	removed    int64
	confirmed  bool
	declined   bool
	candidates []model.AnomalousSnapshot
	err        error
}

// NewMachine builds a machine in the Detecting state.
func NewMachine(store AnomalyStore, confirm Confirmer, opts Options) *Machine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Machine{
		store:   store,
		confirm: confirm,
		opts:    opts,
		runID:   uuid.New(),
		state:   Detecting,
	}
}

func (m *Machine) RunID() uuid.UUID { return m.runID }
func (m *Machine) State() State     { return m.state }
func (m *Machine) Iteration() int   { return m.iteration }
func (m *Machine) Removed() int64   { return m.removed }

// Err is the error that ended the run, if any.
func (m *Machine) Err() error { return m.err }

// Candidates is the page returned by the most recent detection.
func (m *Machine) Candidates() []model.AnomalousSnapshot { return m.candidates }

// Step advances the machine by one transition. It returns an error only for
// failures that leave the machine in its current state.
func (m *Machine) Step(ctx context.Context) error {
	switch m.state {
	case Detecting:
		return m.detect(ctx)
	case AwaitingConfirmation:
		return m.awaitConfirmation(ctx)
	case Purging:
		m.purge(ctx)
		return nil
	default:
		return nil
	}
}

func (m *Machine) detect(ctx context.Context) error {
	candidates, err := m.store.FetchAnomalyCandidates(ctx, m.opts.Thresholds, m.opts.PageSize)
	if err != nil {
		m.state = Aborted
		m.err = fmt.Errorf("detect anomalies: %w", err)
		return nil
	}
	m.candidates = candidates

	// The cap is checked after detection so a final clean scan still converges.
	switch {
	case len(candidates) == 0:
		m.state = Converged
	case m.iteration >= m.opts.MaxIterations:
		m.state = CapExceeded
		m.err = fmt.Errorf("%w: removed %d after %d iterations", model.ErrConvergenceExceeded, m.removed, m.iteration)
	case !m.confirmed:
		m.state = AwaitingConfirmation
	default:
		m.state = Purging
	}
	return nil
}

func (m *Machine) awaitConfirmation(ctx context.Context) error {
	if m.confirm == nil {
		return fmt.Errorf("no confirmer configured")
	}
	ok, err := m.confirm.Confirm(ctx, Prompt{RunID: m.runID, Candidates: m.candidates, Thresholds: m.opts.Thresholds})
	if errors.Is(err, model.ErrConfirmationDeclined) {
		ok, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("confirm purge: %w", err)
	}
	if !ok {
		m.declined = true
		m.state = Aborted
		return nil
	}
	m.confirmed = true
	m.state = Purging
	return nil
}

func (m *Machine) purge(ctx context.Context) {
	ids := make([]int64, len(m.candidates))
	for i, c := range m.candidates {
		ids[i] = c.ID
	}

	m.iteration++
	deleted, err := m.store.BatchDelete(ctx, ids)
	if err != nil {
		m.state = Aborted
		m.err = &model.BatchOperationError{Iteration: m.iteration, IDs: ids, Err: err}
		return
	}
	m.removed += deleted
	m.state = Detecting
}

func (m *Machine) report(started time.Time) Report {
	return Report{
		RunID:      m.runID,
		Outcome:    m.state,
		Removed:    m.removed,
		Iterations: m.iteration,
		Declined:   m.declined,
		Started:    started,
		Finished:   time.Now().UTC(),
		Err:        m.err,
	}
}
