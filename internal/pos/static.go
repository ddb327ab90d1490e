package pos

import (
	"context"
	"sync"

	"shiftrecon/backend/internal/domain"
)

// Static serves fixed shift data keyed by shift date. Used when no POS token
// is configured and as a fake in tests.
type Static struct {
	mu       sync.RWMutex
	reports  map[string]domain.POSShiftReport
	receipts map[string][]domain.Receipt
	err       error
	truncated bool
	calls     int
}

func NewStatic() *Static {
	return &Static{
		reports:  make(map[string]domain.POSShiftReport),
		receipts: make(map[string][]domain.Receipt),
	}
}

func (s *Static) SetShift(date string, report domain.POSShiftReport, receipts []domain.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[date] = report
	s.receipts[date] = append([]domain.Receipt(nil), receipts...)
}

// Fail makes every later call return err; nil restores normal behaviour.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Truncate makes receipt fetches return their data together with ErrTruncated.
func (s *Static) Truncate(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated = on
}

func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) ShiftReport(ctx context.Context, window ShiftWindow, storeID string) (domain.POSShiftReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.POSShiftReport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.POSShiftReport{}, s.err
	}
	return s.reports[window.ShiftDate], nil
}

func (s *Static) Receipts(ctx context.Context, window ShiftWindow, storeID string) ([]domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Receipt, 0, len(s.receipts[window.ShiftDate]))
	for _, r := range s.receipts[window.ShiftDate] {
		if r.ReceiptDate.IsZero() || window.Contains(r.ReceiptDate) {
			out = append(out, r)
		}
	}
	if s.truncated {
		return out, ErrTruncated
	}
	return out, nil
}
