package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("POS_TOKEN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.POSToken != "" {
		t.Fatalf("expected empty POS_TOKEN when unset, got %q", cfg.POSToken)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("POS_TIMEOUT_SECONDS", "soon")
	t.Setenv("SHIFT_START_HOUR", "27")
	t.Setenv("ANALYSIS_CACHE_TTL_SECONDS", "-5")

	cfg := Load()
	if cfg.POSTimeout() != 30*time.Second {
		t.Fatalf("expected default pos timeout, got %s", cfg.POSTimeout())
	}
	if cfg.ShiftStartHour != 18 {
		t.Fatalf("expected default shift start hour 18, got %d", cfg.ShiftStartHour)
	}
	if cfg.AnalysisCacheTTL() != 5*time.Minute {
		t.Fatalf("expected default cache ttl, got %s", cfg.AnalysisCacheTTL())
	}
}

func TestShiftHoursRejectNonNumericInput(t *testing.T) {
	cases := []struct {
		start, end         string
		wantStart, wantEnd int
	}{
		{"six", "three", 18, 3},
		{" 0 ", "23", 0, 23},
		{"", "", 18, 3},
		{"17.5", "-1", 18, 3},
	}
	for _, tc := range cases {
		t.Setenv("SHIFT_START_HOUR", tc.start)
		t.Setenv("SHIFT_END_HOUR", tc.end)
		cfg := Load()
		if cfg.ShiftStartHour != tc.wantStart || cfg.ShiftEndHour != tc.wantEnd {
			t.Fatalf("start=%q end=%q: got %d-%d, want %d-%d",
				tc.start, tc.end, cfg.ShiftStartHour, cfg.ShiftEndHour, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{ShiftTimezone: "Mars/Olympus_Mons"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback for unknown timezone")
	}
}
