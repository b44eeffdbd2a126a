package series

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"balance-telemetry/internal/model"
)

const (
	DefaultLiveCapacity = 200
	DefaultQuantum      = 2 * time.Second
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler is backed by time.AfterFunc.
var SystemScheduler Scheduler = systemScheduler{}

// CommitState is the debounce state.
type CommitState int

const (
	Idle CommitState = iota
	PendingCommit
)

func (s CommitState) String() string {
	if s == PendingCommit {
		return "pending_commit"
	}
	return "idle"
}

// MergerOptions configure a Merger.
type MergerOptions struct {
	Capacity  int
	Quantum   time.Duration
	Scheduler Scheduler
	// OnCommit is called outside the lock after each non-empty commit.
	OnCommit func(committed int)
	// PruneCovered drops live points at or before the newest history point on
	// SetHistory. Enable it when live points are also written to the history store.
	PruneCovered bool
}

// Merger combines historical points with a bounded, debounced live buffer.
type Merger struct {
	opts   MergerOptions
	logger zerolog.Logger

	mu        sync.Mutex
	history   []model.HistoryPoint
	live      []model.HistoryPoint
	committed []model.HistoryPoint
	state     CommitState
	timer     Timer
	epoch     uint64
	running   bool
	commits   int
	dropped   int
}

// NewMerger constructs a Merger. Zero options fall back to defaults.
func NewMerger(opts MergerOptions, logger zerolog.Logger) *Merger {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultLiveCapacity
	}
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler
	}
	return &Merger{
		opts:   opts,
		logger: logger.With().Str("component", "series_merger").Logger(),
	}
}

// Start begins accepting live points.
func (m *Merger) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

// Stop cancels any pending commit and discards both live buffers.
func (m *Merger) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.cancelLocked()
	m.live = nil
	m.committed = nil
}

// SetHistory replaces the historical body.
func (m *Merger) SetHistory(points []model.HistoryPoint) {
	cp := make([]model.HistoryPoint, len(points))
	copy(cp, points)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = cp
	if !m.opts.PruneCovered || len(cp) == 0 {
		return
	}

	latest := cp[0].Timestamp
	for _, p := range cp[1:] {
		if p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}
	var pruned int
	m.live, pruned = pruneThrough(m.live, latest)
	m.committed, _ = pruneThrough(m.committed, latest)
	if pruned > 0 {
		m.logger.Debug().Int("pruned", pruned).Time("history_end", latest).Msg("dropped live points covered by history")
	}
}

// pruneThrough keeps points strictly after cutoff, preserving order.
func pruneThrough(points []model.HistoryPoint, cutoff time.Time) ([]model.HistoryPoint, int) {
	kept := make([]model.HistoryPoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp.After(cutoff) {
			kept = append(kept, p)
		}
	}
	return kept, len(points) - len(kept)
}

// Push appends a live point and (re)arms the commit deadline. It never blocks on I/O.
func (m *Merger) Push(p model.HistoryPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	m.live = append(m.live, p)
	if over := len(m.live) - m.opts.Capacity; over > 0 {
		m.live = append(m.live[:0:0], m.live[over:]...)
		m.dropped += over
	}

	m.cancelLocked()
	m.epoch++
	epoch := m.epoch
	m.state = PendingCommit
	m.timer = m.opts.Scheduler.AfterFunc(m.opts.Quantum, func() { m.fire(epoch) })
}

func (m *Merger) cancelLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = Idle
}

func (m *Merger) fire(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != PendingCommit {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	n := m.commitLocked()
	onCommit := m.opts.OnCommit
	m.mu.Unlock()

	if n > 0 && onCommit != nil {
		onCommit(n)
	}
}

// Commit forces a commit of the current live buffer regardless of the deadline.
func (m *Merger) Commit() int {
	m.mu.Lock()
	m.cancelLocked()
	n := m.commitLocked()
	onCommit := m.opts.OnCommit
	m.mu.Unlock()

	if n > 0 && onCommit != nil {
		onCommit(n)
	}
	return n
}

func (m *Merger) commitLocked() int {
	m.state = Idle
	if len(m.live) == 0 {
		return 0
	}
	snapshot := make([]model.HistoryPoint, len(m.live))
	copy(snapshot, m.live)
	m.committed = snapshot
	m.commits++
	m.logger.Debug().Int("live_points", len(snapshot)).Int("commits", m.commits).Msg("live buffer committed")
	return len(snapshot)
}

// Combined returns history followed by the committed live buffer. Order across
// the boundary is not re-sorted.
func (m *Merger) Combined() []model.HistoryPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.HistoryPoint, 0, len(m.history)+len(m.committed))
	out = append(out, m.history...)
	out = append(out, m.committed...)
	return out
}

// MergerStats is a point-in-time view of the merger.
type MergerStats struct {
	State     CommitState
	Live      int
	Committed int
	History   int
	Commits   int
	Dropped   int
}

// Stats reports buffer sizes and commit counters.
func (m *Merger) Stats() MergerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MergerStats{
		State:     m.state,
		Live:      len(m.live),
		Committed: len(m.committed),
		History:   len(m.history),
		Commits:   m.commits,
		Dropped:   m.dropped,
	}
}
