package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetStaffForm(ctx context.Context, shiftDate string) (*domain.StaffShiftForm, error) {
	var form domain.StaffShiftForm
	var startingCash, endingCash, cashBanked, totalSales int64
	var cashSales, qrSales, grabSales, otherSales int64
	err := s.db.QueryRowContext(ctx, `
		SELECT shift_date::text, completed_by,
			starting_cash_minor, ending_cash_minor, cash_banked_minor,
			cash_sales_minor, qr_sales_minor, grab_sales_minor, other_sales_minor,
			total_sales_minor, submitted_at
		FROM staff_shift_forms
		WHERE shift_date = $1::date
	`, shiftDate).Scan(
		&form.ShiftDate, &form.CompletedBy,
		&startingCash, &endingCash, &cashBanked,
		&cashSales, &qrSales, &grabSales, &otherSales,
		&totalSales, &form.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	form.StartingCash = fromMinor(startingCash)
	form.EndingCash = fromMinor(endingCash)
	form.CashBanked = fromMinor(cashBanked)
	form.CashSales = fromMinor(cashSales)
	form.QRSales = fromMinor(qrSales)
	form.GrabSales = fromMinor(grabSales)
	form.OtherSales = fromMinor(otherSales)
	form.TotalSales = fromMinor(totalSales)
	form.SubmittedAt = form.SubmittedAt.UTC()
	return &form, nil
}

func (s *Store) UpsertStaffForm(ctx context.Context, form domain.StaffShiftForm) (*domain.StaffShiftForm, error) {
	if !store.ValidShiftDate(form.ShiftDate) {
		return nil, store.ErrInvalidInput
	}
	if form.SubmittedAt.IsZero() {
		form.SubmittedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_shift_forms (
			shift_date, completed_by,
			starting_cash_minor, ending_cash_minor, cash_banked_minor,
			cash_sales_minor, qr_sales_minor, grab_sales_minor, other_sales_minor,
			total_sales_minor, submitted_at, updated_at
		)
		VALUES ($1::date,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		ON CONFLICT (shift_date) DO UPDATE SET
			completed_by = EXCLUDED.completed_by,
			starting_cash_minor = EXCLUDED.starting_cash_minor,
			ending_cash_minor = EXCLUDED.ending_cash_minor,
			cash_banked_minor = EXCLUDED.cash_banked_minor,
			cash_sales_minor = EXCLUDED.cash_sales_minor,
			qr_sales_minor = EXCLUDED.qr_sales_minor,
			grab_sales_minor = EXCLUDED.grab_sales_minor,
			other_sales_minor = EXCLUDED.other_sales_minor,
			total_sales_minor = EXCLUDED.total_sales_minor,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = now()
	`,
		form.ShiftDate, form.CompletedBy,
		toMinor(form.StartingCash), toMinor(form.EndingCash), toMinor(form.CashBanked),
		toMinor(form.CashSales), toMinor(form.QRSales), toMinor(form.GrabSales), toMinor(form.OtherSales),
		toMinor(form.TotalSales), form.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	saved := form
	return &saved, nil
}

func (s *Store) GetStockCount(ctx context.Context, shiftDate string) (*domain.StockCount, error) {
	var (
		count  domain.StockCount
		drinks []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT shift_date::text, burger_buns, meat_weight, meat_unit, drinks, updated_at
		FROM shift_stock_counts
		WHERE shift_date = $1::date
	`, shiftDate).Scan(&count.ShiftDate, &count.BurgerBuns, &count.MeatWeight, &count.MeatUnit, &drinks, &count.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(drinks, &count.Drinks); err != nil {
		return nil, fmt.Errorf("decode drinks for %s: %w", shiftDate, err)
	}
	count.UpdatedAt = count.UpdatedAt.UTC()
	return &count, nil
}

func (s *Store) UpsertStockCount(ctx context.Context, count domain.StockCount) (*domain.StockCount, error) {
	if !store.ValidShiftDate(count.ShiftDate) || count.BurgerBuns < 0 || count.MeatWeight.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if count.UpdatedAt.IsZero() {
		count.UpdatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(count.MeatUnit) == "" {
		count.MeatUnit = "kg"
	}
	drinks := count.Drinks
	if drinks == nil {
		drinks = domain.DrinkCounts{}
	}
	drinksJSON, err := json.Marshal(drinks)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shift_stock_counts (shift_date, burger_buns, meat_weight, meat_unit, drinks, updated_at)
		VALUES ($1::date,$2,$3,$4,$5::jsonb,$6)
		ON CONFLICT (shift_date) DO UPDATE SET
			burger_buns = EXCLUDED.burger_buns,
			meat_weight = EXCLUDED.meat_weight,
			meat_unit = EXCLUDED.meat_unit,
			drinks = EXCLUDED.drinks,
			updated_at = EXCLUDED.updated_at
	`, count.ShiftDate, count.BurgerBuns, count.MeatWeight.String(), count.MeatUnit, string(drinksJSON), count.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := count
	return &saved, nil
}

// UpsertAnalysis keeps exactly one row per shift date; a recompute overwrites
// the earlier result in place.
func (s *Store) UpsertAnalysis(ctx context.Context, record domain.ReconciliationRecord) error {
	if !store.ValidShiftDate(record.ShiftDate) {
		return store.ErrInvalidInput
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_shift_analysis (id, shift_date, store_id, receipt_count, flag_count, analysis, generated_at, updated_at)
		VALUES ($1,$2::date,$3,$4,$5,$6::jsonb,$7,now())
		ON CONFLICT (shift_date) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			receipt_count = EXCLUDED.receipt_count,
			flag_count = EXCLUDED.flag_count,
			analysis = EXCLUDED.analysis,
			generated_at = EXCLUDED.generated_at,
			updated_at = now()
	`, uuid.NewString(), record.ShiftDate, record.StoreID, record.ReceiptCount, len(record.Flags), string(payload), record.GeneratedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("concurrent analysis write for %s: %w", record.ShiftDate, err)
		}
		return err
	}
	return nil
}

func (s *Store) GetAnalysis(ctx context.Context, shiftDate string) (*domain.ReconciliationRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT analysis
		FROM daily_shift_analysis
		WHERE shift_date = $1::date
	`, shiftDate).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var record domain.ReconciliationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode analysis for %s: %w", shiftDate, err)
	}
	return &record, nil
}

func (s *Store) ListAnalyses(ctx context.Context, from string, to string) ([]domain.AnalysisSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shift_date::text, flag_count, generated_at
		FROM daily_shift_analysis
		WHERE ($1 = '' OR shift_date >= $1::date)
		  AND ($2 = '' OR shift_date <= $2::date)
		ORDER BY shift_date DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AnalysisSummary, 0, 32)
	for rows.Next() {
		var summary domain.AnalysisSummary
		if err := rows.Scan(&summary.ShiftDate, &summary.FlagCount, &summary.GeneratedAt); err != nil {
			return nil, err
		}
		summary.GeneratedAt = summary.GeneratedAt.UTC()
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Money is stored as integer minor units (satang) to keep sums exact in SQL.
func toMinor(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
