package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"shiftrecon/backend/internal/cache"
	"shiftrecon/backend/internal/catalog"
	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/logging"
	"shiftrecon/backend/internal/metrics"
	"shiftrecon/backend/internal/pos"
	"shiftrecon/backend/internal/store"
	"shiftrecon/backend/internal/units"
	"shiftrecon/backend/internal/usage"
	"shiftrecon/backend/internal/variance"
)

var (
	ErrUpstreamFetch       = errors.New("pos fetch failed")
	ErrAnalysisUnavailable = errors.New("analysis unavailable for this date")
	ErrInvalidDate         = errors.New("invalid shift date")
)

const defaultMeatUnit = "kg"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options tunes an Analyzer. Zero values fall back to the production defaults.
type Options struct {
	StoreID        string
	Location       *time.Location
	ShiftStartHour int
	ShiftEndHour   int
	POSTimeout     time.Duration
	CacheTTL       time.Duration
	Policy         *variance.Policy
	Cache          cache.AnalysisCache
	Locker         cache.Locker
	Metrics        *metrics.Metrics
	Units          *units.Normalizer
	Now            func() time.Time
}

type Analyzer struct {
	repo    store.Repository
	source  pos.Source
	table   *catalog.Table
	units   *units.Normalizer
	cache   cache.AnalysisCache
	locker  cache.Locker
	metrics *metrics.Metrics
	policy  variance.Policy
	log     *logrus.Entry
	tracer  trace.Tracer
	opts    Options
}

func New(repo store.Repository, source pos.Source, table *catalog.Table, opts Options) *Analyzer {
	if table == nil {
		table = catalog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ShiftStartHour == 0 && opts.ShiftEndHour == 0 {
		opts.ShiftStartHour, opts.ShiftEndHour = 18, 3
	}
	if opts.POSTimeout <= 0 {
		opts.POSTimeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	policy := variance.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	analysisCache := opts.Cache
	if analysisCache == nil {
		analysisCache = cache.NoopAnalysisCache{}
	}
	locker := opts.Locker
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	normalizer := opts.Units
	if normalizer == nil {
		normalizer = units.NewNormalizer(opts.Metrics)
	}

	return &Analyzer{
		repo:    repo,
		source:  source,
		table:   table,
		units:   normalizer,
		cache:   analysisCache,
		locker:  locker,
		metrics: opts.Metrics,
		policy:  policy,
		log:     logging.For("service"),
		tracer:  otel.Tracer("shiftrecon/service"),
		opts:    opts,
	}
}

// CurrentShiftDate is the shift date the clock is in right now.
func (a *Analyzer) CurrentShiftDate() string {
	return pos.ShiftDateFor(a.opts.Now(), a.opts.Location, a.opts.ShiftStartHour)
}

func (a *Analyzer) resolveDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return a.CurrentShiftDate(), nil
	}
	if !store.ValidShiftDate(date) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return date, nil
}

type shiftInputs struct {
	form      *domain.StaffShiftForm
	stock     *domain.StockCount
	report    domain.POSShiftReport
	receipts  []domain.Receipt
	truncated []string
}

// GenerateShiftAnalysis reconciles one shift date and persists the result,
// replacing any earlier analysis for that date. Missing staff data degrades to
// zeros with a warning; a POS failure aborts the run and nothing is written.
func (a *Analyzer) GenerateShiftAnalysis(ctx context.Context, date string) (domain.ReconciliationRecord, error) {
	started := time.Now()
	shiftDate, err := a.resolveDate(date)
	if err != nil {
		return domain.ReconciliationRecord{}, err
	}

	ctx, span := a.tracer.Start(ctx, "GenerateShiftAnalysis", trace.WithAttributes(attribute.String("shift_date", shiftDate)))
	defer span.End()

	record, err := a.generate(ctx, shiftDate)
	a.metrics.RecordAnalysis(shiftDate, len(record.Flags), err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.LogError(a.log, "GenerateShiftAnalysis", "analysis failed", map[string]string{"shift_date": shiftDate}, err)
		return domain.ReconciliationRecord{}, err
	}

	span.SetAttributes(attribute.Int("flags", len(record.Flags)), attribute.Int("receipts", record.ReceiptCount))
	a.log.WithFields(logrus.Fields{
		"shift_date": shiftDate,
		"receipts":   record.ReceiptCount,
		"flags":      len(record.Flags),
	}).Info("shift analysis generated")
	return record, nil
}

func (a *Analyzer) generate(ctx context.Context, shiftDate string) (domain.ReconciliationRecord, error) {
	window, err := pos.WindowFor(shiftDate, a.opts.Location, a.opts.ShiftStartHour, a.opts.ShiftEndHour)
	if err != nil {
		return domain.ReconciliationRecord{}, fmt.Errorf("%w: %w", ErrInvalidDate, err)
	}

	unlock, err := a.locker.Lock(ctx, "analysis:"+shiftDate, 2*a.opts.POSTimeout+10*time.Second)
	if err != nil {
		// Without the lock concurrent runs still converge: the upsert is last-write-wins.
		a.log.WithError(err).WithField("shift_date", shiftDate).Warn("analysis lock not acquired, continuing")
	} else {
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				a.log.WithError(err).WithField("shift_date", shiftDate).Warn("analysis lock release failed")
			}
		}()
	}

	in, err := a.fetch(ctx, window)
	if err != nil {
		return domain.ReconciliationRecord{}, err
	}

	record := a.reconcile(shiftDate, in)

	if err := a.repo.UpsertAnalysis(ctx, record); err != nil {
		return domain.ReconciliationRecord{}, fmt.Errorf("persist analysis %s: %w", shiftDate, err)
	}
	if err := a.cache.Set(ctx, &record, a.opts.CacheTTL); err != nil {
		a.log.WithError(err).WithField("shift_date", shiftDate).Warn("analysis cache write failed")
	}
	return record, nil
}

// fetch reads the staff side and the POS side concurrently.
func (a *Analyzer) fetch(ctx context.Context, window pos.ShiftWindow) (shiftInputs, error) {
	ctx, span := a.tracer.Start(ctx, "fetchShiftInputs")
	defer span.End()

	var (
		in                                 shiftInputs
		reportTruncated, receiptsTruncated bool
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		form, err := a.repo.GetStaffForm(gctx, window.ShiftDate)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load staff form: %w", err)
		}
		in.form = form
		return nil
	})
	g.Go(func() error {
		stock, err := a.repo.GetStockCount(gctx, window.ShiftDate)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load stock count: %w", err)
		}
		in.stock = stock
		return nil
	})
	g.Go(func() error {
		posCtx, cancel := context.WithTimeout(gctx, a.opts.POSTimeout)
		defer cancel()
		report, err := a.source.ShiftReport(posCtx, window, a.opts.StoreID)
		if errors.Is(err, pos.ErrTruncated) {
			reportTruncated = true
			err = nil
		}
		if err != nil {
			return fmt.Errorf("%w: shift report: %w", ErrUpstreamFetch, err)
		}
		in.report = report
		return nil
	})
	g.Go(func() error {
		posCtx, cancel := context.WithTimeout(gctx, a.opts.POSTimeout)
		defer cancel()
		receipts, err := a.source.Receipts(posCtx, window, a.opts.StoreID)
		if errors.Is(err, pos.ErrTruncated) {
			receiptsTruncated = true
			err = nil
		}
		if err != nil {
			return fmt.Errorf("%w: receipts: %w", ErrUpstreamFetch, err)
		}
		in.receipts = receipts
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return shiftInputs{}, err
	}
	if reportTruncated {
		in.truncated = append(in.truncated, "shift report")
	}
	if receiptsTruncated {
		in.truncated = append(in.truncated, "receipts")
	}
	return in, nil
}

func (a *Analyzer) reconcile(shiftDate string, in shiftInputs) domain.ReconciliationRecord {
	u := usage.Aggregate(a.table, usage.Flatten(in.receipts))
	a.metrics.RecordUnclassified(len(u.Unclassified))

	warnings := make([]string, 0, 4)
	if in.form == nil {
		warnings = append(warnings, fmt.Sprintf("no staff form submitted for %s; sales compared against zero", shiftDate))
	}

	var actualBuns, actualMeatGrams int
	actualDrinks := map[string]int{}
	totalDrinks := 0
	if in.stock == nil {
		warnings = append(warnings, fmt.Sprintf("no stock count submitted for %s; actuals default to zero", shiftDate))
	} else {
		actualBuns = in.stock.BurgerBuns
		grams, warning := a.meatGrams(in.stock.MeatWeight, in.stock.MeatUnit)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		actualMeatGrams = grams
		// A recount of the same row replaces it; distinct spellings of one drink add up.
		for _, d := range in.stock.Drinks.Latest() {
			name := d.Name
			if canonical, ok := a.table.ClassifyDrink(name); ok {
				name = canonical
			}
			actualDrinks[name] += d.Quantity
		}
		totalDrinks = in.stock.Drinks.Total()
	}
	for _, what := range in.truncated {
		warnings = append(warnings, fmt.Sprintf("POS %s truncated at the page cap; expected usage may be undercounted", what))
	}
	if n := len(u.Unclassified); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d sold items matched no drink or burger rule", n))
	}

	record := domain.ReconciliationRecord{
		ShiftDate:      shiftDate,
		StoreID:        a.opts.StoreID,
		ReceiptCount:   len(in.receipts),
		SalesVsPOS:     variance.SalesVsPOS(in.form, in.report),
		StockUsage:     a.policy.StockUsage(u, actualBuns, actualMeatGrams, totalDrinks),
		DrinksAnalysis: a.policy.Drinks(u, actualDrinks),
		RollsAnalysis:  a.policy.Rolls(u, actualBuns),
		MeatAnalysis:   a.policy.Meat(u, actualMeatGrams),
		Unclassified:   u.Unclassified,
		Warnings:       warnings,
		GeneratedAt:    a.opts.Now().UTC(),
	}
	record.Flags = variance.Flags(record)
	return record
}

// meatGrams converts the staff weight to whole grams. A blank unit means kg.
func (a *Analyzer) meatGrams(weight decimal.Decimal, unit string) (int, string) {
	if strings.TrimSpace(unit) == "" {
		unit = defaultMeatUnit
	}
	qty, _ := weight.Float64()
	grams := a.units.ToBaseUnit(qty, unit)

	warning := ""
	if kind, ok := units.KindOf(unit); !ok || kind != units.Mass {
		warning = fmt.Sprintf("meat weight unit %q is not a mass unit; value used as grams", unit)
	}
	return int(math.Round(grams)), warning
}

// GetShiftAnalysis returns the stored analysis without recomputing it.
func (a *Analyzer) GetShiftAnalysis(ctx context.Context, date string) (domain.ReconciliationRecord, error) {
	shiftDate, err := a.resolveDate(date)
	if err != nil {
		return domain.ReconciliationRecord{}, err
	}

	if cached, ok, err := a.cache.Get(ctx, shiftDate); err != nil {
		a.log.WithError(err).WithField("shift_date", shiftDate).Warn("analysis cache read failed")
	} else if ok {
		return *cached, nil
	}

	record, err := a.repo.GetAnalysis(ctx, shiftDate)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ReconciliationRecord{}, fmt.Errorf("%w: %s", ErrAnalysisUnavailable, shiftDate)
	}
	if err != nil {
		return domain.ReconciliationRecord{}, err
	}
	if err := a.cache.Set(ctx, record, a.opts.CacheTTL); err != nil {
		a.log.WithError(err).WithField("shift_date", shiftDate).Warn("analysis cache write failed")
	}
	return *record, nil
}

func (a *Analyzer) ListAnalyses(ctx context.Context, from string, to string) ([]domain.AnalysisSummary, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	for _, d := range []string{from, to} {
		if d != "" && !store.ValidShiftDate(d) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, d)
		}
	}
	if from != "" && to != "" && from > to {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrInvalidDate, from, to)
	}
	return a.repo.ListAnalyses(ctx, from, to)
}

// SaveStaffForm stores the cashier's end-of-shift sales figures. A zero
// TotalSales is derived from the channel totals.
func (a *Analyzer) SaveStaffForm(ctx context.Context, form domain.StaffShiftForm) (domain.StaffShiftForm, error) {
	shiftDate, err := a.resolveDate(form.ShiftDate)
	if err != nil {
		return domain.StaffShiftForm{}, err
	}
	form.ShiftDate = shiftDate

	for _, amount := range []decimal.Decimal{
		form.StartingCash, form.EndingCash, form.CashBanked,
		form.CashSales, form.QRSales, form.GrabSales, form.OtherSales, form.TotalSales,
	} {
		if amount.IsNegative() {
			return domain.StaffShiftForm{}, store.ErrInvalidInput
		}
	}
	if form.TotalSales.IsZero() {
		form.TotalSales = form.CashSales.Add(form.QRSales).Add(form.GrabSales).Add(form.OtherSales)
	}
	form.CompletedBy = strings.TrimSpace(form.CompletedBy)
	if form.CompletedBy == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			form.CompletedBy = actor.Username
		}
	}
	form.SubmittedAt = a.opts.Now().UTC()

	saved, err := a.repo.UpsertStaffForm(ctx, form)
	if err != nil {
		return domain.StaffShiftForm{}, err
	}
	return *saved, nil
}

// PatchStockCount amends the end-of-shift stock count; omitted fields keep
// their stored values.
func (a *Analyzer) PatchStockCount(ctx context.Context, date string, patch domain.StockPatch) (domain.StockCount, error) {
	shiftDate, err := a.resolveDate(date)
	if err != nil {
		return domain.StockCount{}, err
	}
	if patch.Empty() {
		return domain.StockCount{}, store.ErrInvalidInput
	}

	current := domain.StockCount{ShiftDate: shiftDate, MeatUnit: defaultMeatUnit}
	existing, err := a.repo.GetStockCount(ctx, shiftDate)
	switch {
	case err == nil:
		current = *existing
	case !errors.Is(err, store.ErrNotFound):
		return domain.StockCount{}, err
	}

	if patch.BurgerBuns != nil {
		current.BurgerBuns = *patch.BurgerBuns
	}
	if patch.MeatWeight != nil {
		current.MeatWeight = *patch.MeatWeight
	}
	if patch.MeatUnit != nil {
		current.MeatUnit = strings.TrimSpace(*patch.MeatUnit)
	}
	if patch.Drinks != nil {
		current.Drinks = *patch.Drinks
	}

	if current.BurgerBuns < 0 || current.MeatWeight.IsNegative() {
		return domain.StockCount{}, store.ErrInvalidInput
	}
	if current.MeatUnit == "" {
		current.MeatUnit = defaultMeatUnit
	}
	if kind, ok := units.KindOf(current.MeatUnit); !ok || kind != units.Mass {
		return domain.StockCount{}, fmt.Errorf("%w: meat unit %q", store.ErrInvalidInput, current.MeatUnit)
	}
	for _, d := range current.Drinks {
		if strings.TrimSpace(d.Name) == "" || d.Quantity < 0 {
			return domain.StockCount{}, fmt.Errorf("%w: drink count %+v", store.ErrInvalidInput, d)
		}
	}
	current.UpdatedAt = a.opts.Now().UTC()

	saved, err := a.repo.UpsertStockCount(ctx, current)
	if err != nil {
		return domain.StockCount{}, err
	}
	return *saved, nil
}
