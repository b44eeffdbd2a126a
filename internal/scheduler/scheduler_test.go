package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToInterval: true}, zerolog.Nop())
	now := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("unexpected aligned tick %v", got)
	}
	edge := time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC)
	if got := s.nextTick(edge); !got.Equal(edge.Add(5 * time.Minute)) {
		t.Fatalf("tick on boundary must move forward, got %v", got)
	}
}

func TestRunImmediateAndRepeats(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	calls := 0
	err := s.Run(ctx, func(context.Context, time.Time) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("tick errors do not stop the loop")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 ticks, got %d", calls)
	}
}
