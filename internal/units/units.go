// Package units converts stock quantities into the base unit used for variance
// comparison: grams for mass, millilitres for volume, a plain count otherwise.
package units

import (
	"strings"

	"github.com/sirupsen/logrus"

	"shiftrecon/backend/internal/logging"
)

type Kind int

const (
	Count Kind = iota
	Mass
	Volume
)

// Observer is told about every quantity normalised with a unit it does not know.
type Observer interface {
	ObserveUnknownUnit(unit string)
}

type noopObserver struct{}

func (noopObserver) ObserveUnknownUnit(string) {}

type unitDef struct {
	kind   Kind
	factor float64
}

var known = map[string]unitDef{
	"kg":          {Mass, 1000},
	"kgs":         {Mass, 1000},
	"kilo":        {Mass, 1000},
	"kilos":       {Mass, 1000},
	"kilogram":    {Mass, 1000},
	"kilograms":   {Mass, 1000},
	"g":           {Mass, 1},
	"gr":          {Mass, 1},
	"gram":        {Mass, 1},
	"grams":       {Mass, 1},
	"l":           {Volume, 1000},
	"lt":          {Volume, 1000},
	"liter":       {Volume, 1000},
	"liters":      {Volume, 1000},
	"litre":       {Volume, 1000},
	"litres":      {Volume, 1000},
	"ml":          {Volume, 1},
	"milliliter":  {Volume, 1},
	"milliliters": {Volume, 1},
	"millilitre":  {Volume, 1},
	"millilitres": {Volume, 1},
	"":            {Count, 1},
	"each":        {Count, 1},
	"ea":          {Count, 1},
	"pc":          {Count, 1},
	"pcs":         {Count, 1},
	"piece":       {Count, 1},
	"pieces":      {Count, 1},
	"pack":        {Count, 1},
	"packs":       {Count, 1},
	"unit":        {Count, 1},
	"units":       {Count, 1},
}

type Normalizer struct {
	observer Observer
	log      *logrus.Entry
}

func NewNormalizer(observer Observer) *Normalizer {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Normalizer{observer: observer, log: logging.For("units")}
}

// ToBaseUnit never fails: an unrecognised unit passes the quantity through as a
// count and is reported to the observer, unless the quantity is zero.
func (n *Normalizer) ToBaseUnit(qty float64, unit string) float64 {
	key := normalizeUnit(unit)
	def, ok := known[key]
	if !ok {
		if qty != 0 {
			n.observer.ObserveUnknownUnit(key)
			n.log.WithFields(logrus.Fields{"unit": key, "qty": qty}).Debug("unknown unit, quantity passed through")
		}
		return qty
	}
	return qty * def.factor
}

// KindOf reports the dimension of unit and whether it is recognised.
func KindOf(unit string) (Kind, bool) {
	def, ok := known[normalizeUnit(unit)]
	if !ok {
		return Count, false
	}
	return def.kind, true
}

var defaultNormalizer = NewNormalizer(nil)

func ToBaseUnit(qty float64, unit string) float64 {
	return defaultNormalizer.ToBaseUnit(qty, unit)
}

func normalizeUnit(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	return strings.TrimSuffix(unit, ".")
}
