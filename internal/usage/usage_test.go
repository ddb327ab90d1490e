package usage

import (
	"testing"

	"shiftrecon/backend/internal/catalog"
	"shiftrecon/backend/internal/domain"
)

func TestAggregateBurgersBunsAndMeat(t *testing.T) {
	table := catalog.Default()
	items := []domain.SoldLineItem{
		{ItemName: "Classic Smash Burger", Quantity: 10},
		{ItemName: "Double Smash Burger Combo", Quantity: 3},
		{ItemName: "double smash burger", Quantity: 1},
		{ItemName: "Chipotle Chicken Burger", Quantity: 4},
	}

	u := Aggregate(table, items)

	if len(u.Burgers) != 3 {
		t.Fatalf("expected 3 burger types, got %d (%+v)", len(u.Burgers), u.Burgers)
	}
	if u.Burgers[0].Name != "Classic Smash Burger" || u.Burgers[0].BunsNeeded != 10 {
		t.Fatalf("unexpected first burger %+v", u.Burgers[0])
	}
	if u.Burgers[1].Count != 4 || u.Burgers[1].BunsNeeded != 4 {
		t.Fatalf("expected double smash folded to 4, got %+v", u.Burgers[1])
	}
	if u.TotalBunsNeeded() != 18 {
		t.Fatalf("expected 18 buns, got %d", u.TotalBunsNeeded())
	}

	if len(u.Meat) != 2 {
		t.Fatalf("expected chicken excluded from meat, got %+v", u.Meat)
	}
	wantGrams := 10*1*95 + 4*2*95
	if u.TotalMeatGrams() != wantGrams {
		t.Fatalf("expected %d grams, got %d", wantGrams, u.TotalMeatGrams())
	}
	if u.TotalMeatBurgersSold() != 14 {
		t.Fatalf("expected 14 beef burgers, got %d", u.TotalMeatBurgersSold())
	}
}

func TestAggregateDrinks(t *testing.T) {
	u := Aggregate(catalog.Default(), []domain.SoldLineItem{
		{ItemName: "Bottled Water", Quantity: 2},
		{ItemName: "Water", Quantity: 1},
		{ItemName: "Coke", Quantity: 5},
	})

	if len(u.Drinks) != 2 {
		t.Fatalf("expected 2 drinks, got %+v", u.Drinks)
	}
	if u.Drinks[0].Name != "Water" || u.Drinks[0].QtySold != 3 {
		t.Fatalf("expected Water x3 first, got %+v", u.Drinks[0])
	}
	if u.TotalDrinksSold() != 8 {
		t.Fatalf("expected 8 drinks, got %d", u.TotalDrinksSold())
	}
}

func TestUnknownItemsContributeNothing(t *testing.T) {
	table := catalog.Default()
	base := []domain.SoldLineItem{{ItemName: "Classic Smash Burger", Quantity: 2}, {ItemName: "Coke", Quantity: 1}}
	withUnknown := append([]domain.SoldLineItem{{ItemName: "Packaging Fee", Quantity: 7}}, base...)
	withUnknown = append(withUnknown, domain.SoldLineItem{ItemName: "Packaging Fee", Quantity: 1})

	a := Aggregate(table, base)
	b := Aggregate(table, withUnknown)

	if a.TotalBunsNeeded() != b.TotalBunsNeeded() || a.TotalMeatGrams() != b.TotalMeatGrams() || a.TotalDrinksSold() != b.TotalDrinksSold() {
		t.Fatalf("unknown item changed totals: %+v vs %+v", a, b)
	}
	if len(b.Unclassified) != 1 || b.Unclassified[0].Quantity != 8 {
		t.Fatalf("expected packaging fee x8 listed as unclassified, got %+v", b.Unclassified)
	}
	if len(a.Unclassified) != 0 {
		t.Fatalf("expected no unclassified items, got %+v", a.Unclassified)
	}
}

func TestAggregateEmpty(t *testing.T) {
	u := Aggregate(catalog.Default(), nil)
	if u.TotalBunsNeeded() != 0 || u.TotalMeatGrams() != 0 || u.TotalDrinksSold() != 0 {
		t.Fatalf("expected zero usage, got %+v", u)
	}
}

func TestFlatten(t *testing.T) {
	items := Flatten([]domain.Receipt{
		{ReceiptNumber: "1-1001", LineItems: []domain.ReceiptLine{
			{ItemName: "Classic Smash Burger", Quantity: 2, Category: "Burgers"},
			{ItemName: "Coke", Quantity: 0},
		}},
		{ReceiptNumber: "1-1002"},
		{ReceiptNumber: "1-1003", LineItems: []domain.ReceiptLine{{ItemName: "Fries", Quantity: 1.6}}},
	})

	if len(items) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(items))
	}
	if items[1].Quantity != 1 || items[1].Category != "OTHER" {
		t.Fatalf("expected missing quantity to default to 1 in OTHER, got %+v", items[1])
	}
	if items[2].Quantity != 2 {
		t.Fatalf("expected 1.6 to round to 2, got %d", items[2].Quantity)
	}
}
