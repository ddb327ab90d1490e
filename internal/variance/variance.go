// Package variance compares expected usage against staff-reported actuals.
//
// Stock metrics get a tolerance band: an absolute floor for low volumes and a
// percentage for high volumes. Money is compared exactly.
package variance

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/domain"
)

type Result struct {
	Variance int
	Status   string
}

func (r Result) Flagged() bool {
	return r.Status == domain.StatusFlagged
}

// Compare flags the metric when |actual-expected| exceeds tolerance.
func Compare(expected int, actual int, tolerance int) Result {
	v := actual - expected
	status := domain.StatusOK
	if abs(v) > tolerance {
		status = domain.StatusFlagged
	}
	return Result{Variance: v, Status: status}
}

// Band is max(Floor, ceil(base * Percent / 100)).
type Band struct {
	Floor   int
	Percent int
}

func (b Band) For(base int) int {
	if base < 0 {
		base = -base
	}
	scaled := (base*b.Percent + 99) / 100
	if scaled > b.Floor {
		return scaled
	}
	return b.Floor
}

type Policy struct {
	Drink     Band
	BunType   Band
	BunTotal  Band
	MeatType  Band
	MeatTotal Band

	LegacyRolls     int
	LegacyMeatGrams int
	LegacyDrinks    int
}

func DefaultPolicy() Policy {
	return Policy{
		Drink:           Band{Floor: 2, Percent: 10},
		BunType:         Band{Floor: 1, Percent: 15},
		BunTotal:        Band{Floor: 3, Percent: 10},
		MeatType:        Band{Floor: 50, Percent: 15},
		MeatTotal:       Band{Floor: 200, Percent: 10},
		LegacyRolls:     4,
		LegacyMeatGrams: 500,
		LegacyDrinks:    2,
	}
}

// Apportion splits one aggregate actual across types in proportion to each
// type's share of expected usage. It is an estimate: staff count one total,
// not one figure per type. With nothing expected every share is zero.
func Apportion(actualTotal int, expected []int) []int {
	out := make([]int, len(expected))
	total := 0
	for _, e := range expected {
		total += e
	}
	if total <= 0 || actualTotal <= 0 {
		return out
	}
	for i, e := range expected {
		out[i] = int(math.Round(float64(actualTotal) * float64(e) / float64(total)))
	}
	return out
}

// CompareMoney requires an exact match; any delta is flagged as "🚨 Δ <form-pos>".
func CompareMoney(form decimal.Decimal, pos decimal.Decimal) (decimal.Decimal, string) {
	delta := form.Sub(pos)
	if delta.IsZero() {
		return decimal.Zero, domain.StatusOK
	}
	return delta, fmt.Sprintf("%s Δ %s", domain.StatusFlagged, delta.String())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
