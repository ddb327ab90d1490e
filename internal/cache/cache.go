package cache

import (
	"context"
	"errors"
	"time"

	"shiftrecon/backend/internal/domain"
)

// ErrLockBusy means another process is computing the same shift date.
var ErrLockBusy = errors.New("lock busy")

// AnalysisCache is a read-through copy of persisted analyses. The store stays
// the source of truth.
type AnalysisCache interface {
	Get(ctx context.Context, shiftDate string) (*domain.ReconciliationRecord, bool, error)
	Set(ctx context.Context, record *domain.ReconciliationRecord, ttl time.Duration) error
	Delete(ctx context.Context, shiftDate string) error
}

type Unlocker func(ctx context.Context) error

type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
}

type NoopAnalysisCache struct{}

func (NoopAnalysisCache) Get(_ context.Context, _ string) (*domain.ReconciliationRecord, bool, error) {
	return nil, false, nil
}

func (NoopAnalysisCache) Set(_ context.Context, _ *domain.ReconciliationRecord, _ time.Duration) error {
	return nil
}

func (NoopAnalysisCache) Delete(_ context.Context, _ string) error {
	return nil
}

// NoopLocker always grants the lock; used when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Lock(_ context.Context, _ string, _ time.Duration) (Unlocker, error) {
	return func(context.Context) error { return nil }, nil
}

func analysisKey(shiftDate string) string {
	return "shiftrecon:analysis:" + shiftDate
}

func lockKey(key string) string {
	return "shiftrecon:lock:" + key
}
