package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDrinkCountsLatestKeepsLastDuplicate(t *testing.T) {
	counts := DrinkCounts{
		{Name: "Coke", Quantity: 4},
		{Name: "Water", Quantity: 1},
		{Name: " Coke ", Quantity: 6},
	}
	latest := counts.Latest()
	if len(latest) != 2 || latest[0].Name != "Coke" || latest[0].Quantity != 6 || latest[1].Name != "Water" {
		t.Fatalf("unexpected rows %+v", latest)
	}
	if got := counts.Total(); got != 7 {
		t.Fatalf("expected total 7, got %d", got)
	}
}

func TestDrinkCountsAcceptsListAndMap(t *testing.T) {
	var list, keyed DrinkCounts
	if err := json.Unmarshal([]byte(`[{"name":"Coke","qty":3},{"name":"Water","quantity":2}]`), &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"Water":2,"Coke":3}`), &keyed); err != nil {
		t.Fatalf("map: %v", err)
	}
	if list.Total() != 5 || keyed.Total() != 5 {
		t.Fatalf("expected totals of 5, got %d and %d", list.Total(), keyed.Total())
	}
	if keyed[0].Name != "Coke" {
		t.Fatalf("map form should come back sorted by name, got %+v", keyed)
	}
}

func TestImportingDomainLeavesDecimalEncodingAlone(t *testing.T) {
	if decimal.MarshalJSONWithoutQuotes {
		t.Fatalf("domain must not change decimal's process-wide JSON encoding")
	}
	var got POSShiftReport
	if err := json.Unmarshal([]byte(`{"gross_sales":"900.50","net_sales":850}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.GrossSales.Equal(decimal.RequireFromString("900.5")) || !got.NetSales.Equal(decimal.NewFromInt(850)) {
		t.Fatalf("expected both quoted and bare amounts to decode, got %+v", got)
	}
}
