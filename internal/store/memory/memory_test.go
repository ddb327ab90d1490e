package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/store"
)

func TestUpsertAnalysisReplacesSameDate(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := domain.ReconciliationRecord{ShiftDate: "2025-01-05", Flags: []string{"a", "b"}, GeneratedAt: time.Unix(1, 0)}
	second := domain.ReconciliationRecord{ShiftDate: "2025-01-05", Flags: []string{"c"}, GeneratedAt: time.Unix(2, 0)}
	if err := s.UpsertAnalysis(ctx, first); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	if err := s.UpsertAnalysis(ctx, second); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	got, err := s.GetAnalysis(ctx, "2025-01-05")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Flags) != 1 || got.Flags[0] != "c" {
		t.Fatalf("expected last write to win, got %v", got.Flags)
	}

	list, err := s.ListAnalyses(ctx, "", "")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one record per date, got %v err=%v", list, err)
	}
}

func TestGetAnalysisReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.UpsertAnalysis(ctx, domain.ReconciliationRecord{ShiftDate: "2025-01-05", Flags: []string{"x"}})

	got, _ := s.GetAnalysis(ctx, "2025-01-05")
	got.Flags[0] = "mutated"

	again, _ := s.GetAnalysis(ctx, "2025-01-05")
	if again.Flags[0] != "x" {
		t.Fatalf("stored record was mutated through a returned copy")
	}
}

func TestListAnalysesFiltersAndSorts(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, d := range []string{"2025-01-01", "2025-01-03", "2025-01-02", "2025-01-09"} {
		_ = s.UpsertAnalysis(ctx, domain.ReconciliationRecord{ShiftDate: d})
	}

	list, err := s.ListAnalyses(ctx, "2025-01-02", "2025-01-05")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ShiftDate != "2025-01-03" || list[1].ShiftDate != "2025-01-02" {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestMissingRecordsReturnNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.GetStaffForm(ctx, "2025-01-05"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for form, got %v", err)
	}
	if _, err := s.GetStockCount(ctx, "2025-01-05"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stock, got %v", err)
	}
	if _, err := s.GetAnalysis(ctx, "2025-01-05"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for analysis, got %v", err)
	}
}

func TestUpsertRejectsInvalidInput(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.UpsertStaffForm(ctx, domain.StaffShiftForm{ShiftDate: "yesterday"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid date rejection, got %v", err)
	}
	if _, err := s.UpsertStockCount(ctx, domain.StockCount{ShiftDate: "2025-01-05", BurgerBuns: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative count rejection, got %v", err)
	}
	if _, err := s.UpsertStockCount(ctx, domain.StockCount{ShiftDate: "2025-01-05", MeatWeight: decimal.NewFromInt(-2)}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative meat rejection, got %v", err)
	}
}

func TestSeededUsersAreHashed(t *testing.T) {
	s := NewSeeded()
	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 seeded users, got %d", len(users))
	}
	for _, u := range users {
		if u.Password == "" || u.Password == "admin123" {
			t.Fatalf("expected hashed password for %s", u.Username)
		}
	}
	if err := s.CreateUser(context.Background(), domain.UserAccount{Username: "ADMIN", Password: "x"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected duplicate username rejection, got %v", err)
	}
}
