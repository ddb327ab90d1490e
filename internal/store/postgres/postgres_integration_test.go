package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("SHIFTRECON_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SHIFTRECON_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// testDate picks a far-future date unique to this run so rows never collide.
func testDate() string {
	stamp := time.Now().UnixNano()
	return time.Date(2900+int(stamp%90), time.Month(1+stamp%12), 1+int(stamp%28), 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
}

func TestUpsertAnalysisKeepsOneRowPerDate(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	date := testDate()
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM daily_shift_analysis WHERE shift_date = $1::date`, date)
	})

	for i := 0; i < 2; i++ {
		rec := domain.ReconciliationRecord{
			ShiftDate:   date,
			Flags:       []string{fmt.Sprintf("run %d", i)},
			GeneratedAt: time.Now().UTC(),
		}
		if err := s.UpsertAnalysis(ctx, rec); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	var rows int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM daily_shift_analysis WHERE shift_date = $1::date`, date).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row for %s, got %d", date, rows)
	}

	got, err := s.GetAnalysis(ctx, date)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if len(got.Flags) != 1 || got.Flags[0] != "run 1" {
		t.Fatalf("expected the latest run, got %v", got.Flags)
	}
}

func TestStaffFormMoneyRoundTrip(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	date := testDate()
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM staff_shift_forms WHERE shift_date = $1::date`, date)
	})

	form := domain.StaffShiftForm{
		ShiftDate:  date,
		CashSales:  decimal.RequireFromString("1234.56"),
		TotalSales: decimal.NewFromInt(5000),
	}
	if _, err := s.UpsertStaffForm(ctx, form); err != nil {
		t.Fatalf("upsert form: %v", err)
	}
	got, err := s.GetStaffForm(ctx, date)
	if err != nil {
		t.Fatalf("get form: %v", err)
	}
	if !got.CashSales.Equal(form.CashSales) || !got.TotalSales.Equal(form.TotalSales) {
		t.Fatalf("money changed in storage: %+v", got)
	}
}

func TestMissingStockCountIsNotFound(t *testing.T) {
	s := newIntegrationStore(t)
	if _, err := s.GetStockCount(context.Background(), testDate()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
