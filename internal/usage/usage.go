// Package usage folds sold POS lines into the stock a shift should have consumed.
package usage

import (
	"math"
	"strings"

	"shiftrecon/backend/internal/catalog"
	"shiftrecon/backend/internal/domain"
)

type DrinkTotal struct {
	Name    string
	QtySold int
}

type BurgerTotal struct {
	Name       string
	Count      int
	BunsNeeded int
}

type MeatTotal struct {
	Name        string
	Count       int
	GramsNeeded int
}

// Usage keeps every breakdown in first-seen order so repeated runs over the
// same receipts produce identical reports.
type Usage struct {
	Drinks       []DrinkTotal
	Burgers      []BurgerTotal
	Meat         []MeatTotal
	Unclassified []domain.UnclassifiedItem
}

func (u Usage) TotalBunsNeeded() int {
	total := 0
	for _, b := range u.Burgers {
		total += b.BunsNeeded
	}
	return total
}

func (u Usage) TotalBurgersSold() int {
	total := 0
	for _, b := range u.Burgers {
		total += b.Count
	}
	return total
}

func (u Usage) TotalMeatGrams() int {
	total := 0
	for _, m := range u.Meat {
		total += m.GramsNeeded
	}
	return total
}

func (u Usage) TotalMeatBurgersSold() int {
	total := 0
	for _, m := range u.Meat {
		total += m.Count
	}
	return total
}

func (u Usage) TotalDrinksSold() int {
	total := 0
	for _, d := range u.Drinks {
		total += d.QtySold
	}
	return total
}

// Aggregate classifies every item against table. Items matching neither a
// drink nor a burger add nothing to the totals and are listed in Unclassified.
func Aggregate(table *catalog.Table, items []domain.SoldLineItem) Usage {
	var u Usage
	drinkIdx := map[string]int{}
	burgerIdx := map[string]int{}
	meatIdx := map[string]int{}
	unknownIdx := map[string]int{}
	gramsPerPatty := table.MeatPerPattyGrams()

	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}

		drink, isDrink := table.ClassifyDrink(item.ItemName)
		if isDrink {
			i, ok := drinkIdx[drink]
			if !ok {
				i = len(u.Drinks)
				drinkIdx[drink] = i
				u.Drinks = append(u.Drinks, DrinkTotal{Name: drink})
			}
			u.Drinks[i].QtySold += item.Quantity
		}

		burger, isBurger := table.ClassifyBurger(item.ItemName)
		if isBurger {
			i, ok := burgerIdx[burger.Name]
			if !ok {
				i = len(u.Burgers)
				burgerIdx[burger.Name] = i
				u.Burgers = append(u.Burgers, BurgerTotal{Name: burger.Name})
			}
			u.Burgers[i].Count += item.Quantity
			u.Burgers[i].BunsNeeded += item.Quantity * burger.Buns

			if burger.Patties > 0 {
				j, ok := meatIdx[burger.Name]
				if !ok {
					j = len(u.Meat)
					meatIdx[burger.Name] = j
					u.Meat = append(u.Meat, MeatTotal{Name: burger.Name})
				}
				u.Meat[j].Count += item.Quantity
				u.Meat[j].GramsNeeded += item.Quantity * burger.Patties * gramsPerPatty
			}
		}

		if !isDrink && !isBurger {
			name := strings.TrimSpace(item.ItemName)
			i, ok := unknownIdx[name]
			if !ok {
				i = len(u.Unclassified)
				unknownIdx[name] = i
				suggestion, _ := table.Suggest(name)
				u.Unclassified = append(u.Unclassified, domain.UnclassifiedItem{ItemName: name, Suggestion: suggestion})
			}
			u.Unclassified[i].Quantity += item.Quantity
		}
	}

	return u
}

// Flatten turns receipts into sold lines. Missing or fractional quantities
// round to a whole count of at least one; a blank category becomes OTHER.
func Flatten(receipts []domain.Receipt) []domain.SoldLineItem {
	items := make([]domain.SoldLineItem, 0, len(receipts)*2)
	for _, receipt := range receipts {
		for _, line := range receipt.LineItems {
			qty := int(math.Round(line.Quantity))
			if qty < 1 {
				qty = 1
			}
			category := strings.TrimSpace(line.Category)
			if category == "" {
				category = "OTHER"
			}
			items = append(items, domain.SoldLineItem{
				ItemName: line.ItemName,
				Quantity: qty,
				Category: category,
			})
		}
	}
	return items
}
