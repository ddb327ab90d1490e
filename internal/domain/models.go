package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	StatusOK      = "✅"
	StatusFlagged = "🚨"
)

// SoldLineItem is one POS receipt line flattened for usage accounting.
type SoldLineItem struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Category string `json:"category"`
}

type ReceiptLine struct {
	ItemName string  `json:"item_name"`
	SKU      string  `json:"sku,omitempty"`
	Quantity float64 `json:"quantity"`
	Category string  `json:"category,omitempty"`
}

type Receipt struct {
	ReceiptNumber string        `json:"receipt_number"`
	ReceiptDate   time.Time     `json:"receipt_date"`
	StoreID       string        `json:"store_id,omitempty"`
	LineItems     []ReceiptLine `json:"line_items"`
}

// POSShiftReport holds the POS's own shift totals in plain currency units.
type POSShiftReport struct {
	GrossSales decimal.Decimal `json:"gross_sales"`
	NetSales   decimal.Decimal `json:"net_sales"`
	CashSales  decimal.Decimal `json:"cash_sales"`
	QRSales    decimal.Decimal `json:"qr_sales"`
	GrabSales  decimal.Decimal `json:"grab_sales"`
	Discounts  decimal.Decimal `json:"discounts"`
	Refunds    decimal.Decimal `json:"refunds"`
	PaidOut    decimal.Decimal `json:"paid_out"`
}

// Add sums two reports; used when several POS shifts overlap one business shift.
func (r POSShiftReport) Add(o POSShiftReport) POSShiftReport {
	return POSShiftReport{
		GrossSales: r.GrossSales.Add(o.GrossSales),
		NetSales:   r.NetSales.Add(o.NetSales),
		CashSales:  r.CashSales.Add(o.CashSales),
		QRSales:    r.QRSales.Add(o.QRSales),
		GrabSales:  r.GrabSales.Add(o.GrabSales),
		Discounts:  r.Discounts.Add(o.Discounts),
		Refunds:    r.Refunds.Add(o.Refunds),
		PaidOut:    r.PaidOut.Add(o.PaidOut),
	}
}

type StaffShiftForm struct {
	ShiftDate    string          `json:"shift_date"`
	CompletedBy  string          `json:"completed_by" validate:"max=120"`
	StartingCash decimal.Decimal `json:"starting_cash"`
	EndingCash   decimal.Decimal `json:"ending_cash"`
	CashBanked   decimal.Decimal `json:"cash_banked"`
	CashSales    decimal.Decimal `json:"cash_sales"`
	QRSales      decimal.Decimal `json:"qr_sales"`
	GrabSales    decimal.Decimal `json:"grab_sales"`
	OtherSales   decimal.Decimal `json:"other_sales"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	SubmittedAt  time.Time       `json:"submitted_at"`
}

type DrinkCount struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// DrinkCounts accepts either [{"name":"Coke","quantity":4}] or {"Coke": 4}.
type DrinkCounts []DrinkCount

func (d *DrinkCounts) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = nil
		return nil
	}

	if trimmed[0] == '{' {
		var keyed map[string]float64
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return err
		}
		names := make([]string, 0, len(keyed))
		for name := range keyed {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make(DrinkCounts, 0, len(names))
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			out = append(out, DrinkCount{Name: strings.TrimSpace(name), Quantity: int(keyed[name])})
		}
		*d = out
		return nil
	}

	var rows []struct {
		Name     string   `json:"name"`
		Quantity *float64 `json:"quantity"`
		Qty      *float64 `json:"qty"`
	}
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return err
	}
	out := make(DrinkCounts, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			continue
		}
		qty := 0.0
		switch {
		case row.Quantity != nil:
			qty = *row.Quantity
		case row.Qty != nil:
			qty = *row.Qty
		}
		out = append(out, DrinkCount{Name: name, Quantity: int(qty)})
	}
	*d = out
	return nil
}

// Latest collapses rows with the same name, keeping the last quantity counted.
// Rows stay in first-seen order.
func (d DrinkCounts) Latest() DrinkCounts {
	index := make(map[string]int, len(d))
	out := make(DrinkCounts, 0, len(d))
	for _, row := range d {
		row.Name = strings.TrimSpace(row.Name)
		if i, seen := index[row.Name]; seen {
			out[i].Quantity = row.Quantity
			continue
		}
		index[row.Name] = len(out)
		out = append(out, row)
	}
	return out
}

func (d DrinkCounts) Total() int {
	total := 0
	for _, row := range d.Latest() {
		total += row.Quantity
	}
	return total
}

// StockCount is the end-of-shift physical count entered by staff.
type StockCount struct {
	ShiftDate  string          `json:"shift_date"`
	BurgerBuns int             `json:"burger_buns"`
	MeatWeight decimal.Decimal `json:"meat_weight"`
	MeatUnit   string          `json:"meat_unit"`
	Drinks     DrinkCounts     `json:"drinks"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type StockPatch struct {
	BurgerBuns *int             `json:"burger_buns,omitempty" validate:"omitempty,gte=0"`
	MeatWeight *decimal.Decimal `json:"meat_weight,omitempty"`
	MeatUnit   *string          `json:"meat_unit,omitempty" validate:"omitempty,max=16"`
	Drinks     *DrinkCounts     `json:"drinks,omitempty"`
}

func (p StockPatch) Empty() bool {
	return p.BurgerBuns == nil && p.MeatWeight == nil && p.MeatUnit == nil && p.Drinks == nil
}

type SalesComparison struct {
	Field  string          `json:"field"`
	Form   decimal.Decimal `json:"form"`
	POS    decimal.Decimal `json:"pos"`
	Delta  decimal.Decimal `json:"delta"`
	Status string          `json:"status"`
}

func (c SalesComparison) Flagged() bool {
	return strings.HasPrefix(c.Status, StatusFlagged)
}

type StockUsageRow struct {
	Item      string `json:"item"`
	Expected  int    `json:"expected"`
	Actual    int    `json:"actual"`
	Variance  int    `json:"variance"`
	Tolerance int    `json:"tolerance"`
	Status    string `json:"status"`
}

type ItemAnalysisRow struct {
	ItemName      string `json:"item_name"`
	QtySold       int    `json:"qty_sold"`
	ExpectedUsage int    `json:"expected_usage"`
	ActualCount   int    `json:"actual_count"`
	Variance      int    `json:"variance"`
	Tolerance     int    `json:"tolerance"`
	Status        string `json:"status"`
}

type UnclassifiedItem struct {
	ItemName   string `json:"item_name"`
	Quantity   int    `json:"quantity"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ReconciliationRecord is the persisted analysis of one shift date.
// GeneratedAt is the only field that differs between identical recomputes.
type ReconciliationRecord struct {
	ShiftDate      string             `json:"shift_date"`
	StoreID        string             `json:"store_id,omitempty"`
	ReceiptCount   int                `json:"receipt_count"`
	SalesVsPOS     []SalesComparison  `json:"sales_vs_pos"`
	StockUsage     []StockUsageRow    `json:"stock_usage"`
	DrinksAnalysis []ItemAnalysisRow  `json:"drinks_analysis"`
	RollsAnalysis  []ItemAnalysisRow  `json:"rolls_analysis"`
	MeatAnalysis   []ItemAnalysisRow  `json:"meat_analysis"`
	Flags          []string           `json:"flags"`
	Unclassified   []UnclassifiedItem `json:"unclassified,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

type AnalysisSummary struct {
	ShiftDate   string    `json:"shift_date"`
	FlagCount   int       `json:"flag_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"required,oneof=manager staff"`
}
