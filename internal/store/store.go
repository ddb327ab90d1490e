package store

import (
	"context"
	"errors"
	"time"

	"shiftrecon/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Repository interface {
	GetStaffForm(ctx context.Context, shiftDate string) (*domain.StaffShiftForm, error)
	UpsertStaffForm(ctx context.Context, form domain.StaffShiftForm) (*domain.StaffShiftForm, error)
	GetStockCount(ctx context.Context, shiftDate string) (*domain.StockCount, error)
	UpsertStockCount(ctx context.Context, count domain.StockCount) (*domain.StockCount, error)
	UpsertAnalysis(ctx context.Context, record domain.ReconciliationRecord) error
	GetAnalysis(ctx context.Context, shiftDate string) (*domain.ReconciliationRecord, error)
	ListAnalyses(ctx context.Context, from string, to string) ([]domain.AnalysisSummary, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ValidShiftDate reports whether s is a YYYY-MM-DD calendar date.
func ValidShiftDate(s string) bool {
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}
