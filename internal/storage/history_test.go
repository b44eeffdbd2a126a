package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"balance-telemetry/internal/model"
)

func TestAnomalyReason(t *testing.T) {
	th := model.Thresholds{StableDelta: 50, TokenDelta: 1000}

	both := AnomalyReason(model.AnomalousSnapshot{StableDelta: -75, TokenDelta: 2500}, th)
	if !strings.Contains(both, "stablecoin") || !strings.Contains(both, "RLB") {
		t.Fatalf("expected both reasons, got %q", both)
	}

	stableOnly := AnomalyReason(model.AnomalousSnapshot{StableDelta: 60, TokenDelta: 10}, th)
	if strings.Contains(stableOnly, "RLB") {
		t.Fatalf("token delta within threshold must not be reported, got %q", stableOnly)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if _, err := s.FetchHistory(ctx, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	since := time.Now()
	if _, err := s.FetchTrades(ctx, model.TradeFilter{Since: &since}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if n, err := s.BatchDelete(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty batch should be a no-op, got %d %v", n, err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}
