package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/logging"
	"shiftrecon/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	forms           map[string]domain.StaffShiftForm
	stock           map[string]domain.StockCount
	analyses        map[string]domain.ReconciliationRecord
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		forms:           make(map[string]domain.StaffShiftForm),
		stock:           make(map[string]domain.StockCount),
		analyses:        make(map[string]domain.ReconciliationRecord),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev accounts. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD, with dev defaults otherwise.
// The memory store only runs when DATABASE_URL is unset.
func seedUsers() map[string]domain.UserAccount {
	log := logging.For("memory-store")
	keys := []string{"SEED_ADMIN_PASSWORD", "SEED_MANAGER_PASSWORD", "SEED_STAFF_PASSWORD"}
	for _, key := range keys {
		if os.Getenv(key) == "" {
			log.Warn("using default dev credentials; set SEED_*_PASSWORD to override")
			break
		}
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"manager", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{"staff", envOr("SEED_STAFF_PASSWORD", "staff123"), domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.WithError(err).Fatalf("failed to hash seed password for %s", u.username)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) GetStaffForm(_ context.Context, shiftDate string) (*domain.StaffShiftForm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[shiftDate]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &form, nil
}

func (s *Store) UpsertStaffForm(_ context.Context, form domain.StaffShiftForm) (*domain.StaffShiftForm, error) {
	if !store.ValidShiftDate(form.ShiftDate) {
		return nil, store.ErrInvalidInput
	}
	if form.SubmittedAt.IsZero() {
		form.SubmittedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[form.ShiftDate] = form
	saved := form
	return &saved, nil
}

func (s *Store) GetStockCount(_ context.Context, shiftDate string) (*domain.StockCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, ok := s.stock[shiftDate]
	if !ok {
		return nil, store.ErrNotFound
	}
	count.Drinks = slices.Clone(count.Drinks)
	return &count, nil
}

func (s *Store) UpsertStockCount(_ context.Context, count domain.StockCount) (*domain.StockCount, error) {
	if !store.ValidShiftDate(count.ShiftDate) || count.BurgerBuns < 0 || count.MeatWeight.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if count.UpdatedAt.IsZero() {
		count.UpdatedAt = time.Now().UTC()
	}
	count.Drinks = slices.Clone(count.Drinks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[count.ShiftDate] = count
	saved := count
	saved.Drinks = slices.Clone(count.Drinks)
	return &saved, nil
}

// UpsertAnalysis replaces any earlier record for the same shift date.
func (s *Store) UpsertAnalysis(_ context.Context, record domain.ReconciliationRecord) error {
	if !store.ValidShiftDate(record.ShiftDate) {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[record.ShiftDate] = cloneRecord(record)
	return nil
}

func (s *Store) GetAnalysis(_ context.Context, shiftDate string) (*domain.ReconciliationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.analyses[shiftDate]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneRecord(record)
	return &out, nil
}

// ListAnalyses returns summaries with from <= shift_date <= to, newest first.
// Empty bounds are open.
func (s *Store) ListAnalyses(_ context.Context, from string, to string) ([]domain.AnalysisSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AnalysisSummary, 0, len(s.analyses))
	for date, record := range s.analyses {
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			continue
		}
		out = append(out, domain.AnalysisSummary{
			ShiftDate:   date,
			FlagCount:   len(record.Flags),
			GeneratedAt: record.GeneratedAt,
		})
	}
	slices.SortFunc(out, func(a, b domain.AnalysisSummary) int {
		return strings.Compare(b.ShiftDate, a.ShiftDate)
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneRecord(r domain.ReconciliationRecord) domain.ReconciliationRecord {
	r.SalesVsPOS = slices.Clone(r.SalesVsPOS)
	r.StockUsage = slices.Clone(r.StockUsage)
	r.DrinksAnalysis = slices.Clone(r.DrinksAnalysis)
	r.RollsAnalysis = slices.Clone(r.RollsAnalysis)
	r.MeatAnalysis = slices.Clone(r.MeatAnalysis)
	r.Flags = slices.Clone(r.Flags)
	r.Unclassified = slices.Clone(r.Unclassified)
	r.Warnings = slices.Clone(r.Warnings)
	return r
}
