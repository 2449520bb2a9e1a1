package session

import (
	"testing"
	"time"

	"github.com/escalona/flint/internal/config"
)

func TestEvaluateDailyReset(t *testing.T) {
	hour := 4
	policy := config.ResetPolicy{DailyAtHour: &hour}
	updatedAt := time.Date(2026, 2, 18, 3, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 18, 5, 0, 0, 0, time.UTC)

	got := Evaluate(updatedAt, now, policy)
	if !got.Expired || got.Reason != "daily" {
		t.Fatalf("expected expired/daily, got %+v", got)
	}
}

func TestEvaluateDailyResetNotYetPassed(t *testing.T) {
	hour := 4
	policy := config.ResetPolicy{DailyAtHour: &hour}
	now := time.Date(2026, 2, 18, 2, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2026, 2, 18, 1, 0, 0, 0, time.UTC)

	got := Evaluate(updatedAt, now, policy)
	if got.Expired {
		t.Fatalf("did not expect expiry before daily boundary, got %+v", got)
	}
}

func TestEvaluateIdleReset(t *testing.T) {
	minutes := 30
	policy := config.ResetPolicy{IdleMinutes: &minutes}
	now := time.Now()
	updatedAt := now.Add(-45 * time.Minute)

	got := Evaluate(updatedAt, now, policy)
	if !got.Expired || got.Reason != "idle" {
		t.Fatalf("expected expired/idle, got %+v", got)
	}
}

func TestEvaluateMonotoneInUpdatedAt(t *testing.T) {
	minutes := 30
	policy := config.ResetPolicy{IdleMinutes: &minutes}
	now := time.Now()

	older := Evaluate(now.Add(-60*time.Minute), now, policy)
	newer := Evaluate(now.Add(-10*time.Minute), now, policy)

	if newer.Expired && !older.Expired {
		t.Fatalf("monotonicity violated: newer expired but older did not")
	}
}

func TestResolvePolicyPrecedence(t *testing.T) {
	defHour := 4
	typeHour := 5
	chanHour := 6
	cfg := config.SessionConfig{
		Reset:          config.ResetPolicy{DailyAtHour: &defHour},
		ResetByType:    map[string]config.ResetPolicy{"direct": {DailyAtHour: &typeHour}},
		ResetByChannel: map[string]config.ResetPolicy{"telegram": {DailyAtHour: &chanHour}},
	}

	got := ResolvePolicy(cfg, "telegram", TypeDirect)
	if got.DailyAtHour == nil || *got.DailyAtHour != chanHour {
		t.Fatalf("expected channel override to win, got %+v", got)
	}

	got2 := ResolvePolicy(cfg, "discord", TypeDirect)
	if got2.DailyAtHour == nil || *got2.DailyAtHour != typeHour {
		t.Fatalf("expected type override to win absent channel override, got %+v", got2)
	}

	got3 := ResolvePolicy(cfg, "discord", TypeGroup)
	if got3.DailyAtHour == nil || *got3.DailyAtHour != defHour {
		t.Fatalf("expected default to win, got %+v", got3)
	}
}
