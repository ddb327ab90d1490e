// Package catalog maps free-text POS item names onto the drinks and burgers
// whose stock usage is reconciled. Rules are plain data so a store can ship its
// own table; Default() is the embedded menu.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"
)

const DefaultMeatPerPattyGrams = 95

// BunsPerBurger is fixed: every burger uses one bun whatever its patty count.
const BunsPerBurger = 1

var ErrInvalidTable = errors.New("invalid catalog table")

//go:embed default.yaml
var defaultYAML []byte

type DrinkRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

type BurgerRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Patties  int      `yaml:"patties"`
}

type Burger struct {
	Name    string
	Patties int
	Buns    int
}

// Table is immutable once returned by Load or New.
type Table struct {
	drinks            []DrinkRule
	burgers           []BurgerRule
	meatPerPattyGrams int
}

type tableFile struct {
	MeatPerPattyGrams int          `yaml:"meat_per_patty_grams"`
	Drinks            []DrinkRule  `yaml:"drinks"`
	Burgers           []BurgerRule `yaml:"burgers"`
}

func New(drinks []DrinkRule, burgers []BurgerRule, meatPerPattyGrams int) (*Table, error) {
	if meatPerPattyGrams == 0 {
		meatPerPattyGrams = DefaultMeatPerPattyGrams
	}
	if meatPerPattyGrams < 0 {
		return nil, fmt.Errorf("%w: meat_per_patty_grams must be positive", ErrInvalidTable)
	}

	t := &Table{
		drinks:            make([]DrinkRule, 0, len(drinks)),
		burgers:           make([]BurgerRule, 0, len(burgers)),
		meatPerPattyGrams: meatPerPattyGrams,
	}

	for i, rule := range drinks {
		name := strings.TrimSpace(rule.Name)
		patterns := normalizePatterns(rule.Patterns)
		if name == "" || len(patterns) == 0 {
			return nil, fmt.Errorf("%w: drink rule %d needs a name and at least one pattern", ErrInvalidTable, i)
		}
		t.drinks = append(t.drinks, DrinkRule{Name: name, Patterns: patterns})
	}

	for i, rule := range burgers {
		name := strings.TrimSpace(rule.Name)
		patterns := normalizePatterns(rule.Patterns)
		if name == "" || len(patterns) == 0 {
			return nil, fmt.Errorf("%w: burger rule %d needs a name and at least one pattern", ErrInvalidTable, i)
		}
		if rule.Patties < 0 {
			return nil, fmt.Errorf("%w: burger %q has negative patties", ErrInvalidTable, name)
		}
		t.burgers = append(t.burgers, BurgerRule{Name: name, Patterns: patterns, Patties: rule.Patties})
	}

	return t, nil
}

func Load(r io.Reader) (*Table, error) {
	var file tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return New(file.Drinks, file.Burgers, file.MeatPerPattyGrams)
}

func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default returns the embedded menu table.
func Default() *Table {
	t, err := Load(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default table: %v", err))
	}
	return t
}

func (t *Table) MeatPerPattyGrams() int {
	return t.meatPerPattyGrams
}

// ClassifyDrink returns the canonical drink for itemName, first match wins.
func (t *Table) ClassifyDrink(itemName string) (string, bool) {
	name := Normalize(itemName)
	if name == "" {
		return "", false
	}
	for _, rule := range t.drinks {
		if containsAny(name, rule.Patterns) {
			return rule.Name, true
		}
	}
	return "", false
}

// ClassifyBurger returns the canonical burger for itemName, first match wins.
// Chicken burgers come back with zero patties.
func (t *Table) ClassifyBurger(itemName string) (Burger, bool) {
	name := Normalize(itemName)
	if name == "" {
		return Burger{}, false
	}
	for _, rule := range t.burgers {
		if containsAny(name, rule.Patterns) {
			return Burger{Name: rule.Name, Patties: rule.Patties, Buns: BunsPerBurger}, true
		}
	}
	return Burger{}, false
}

// Suggest finds the rule whose pattern is closest to itemName by edit distance.
// It only answers when the distance is under 40% of the longer string.
func (t *Table) Suggest(itemName string) (string, bool) {
	name := Normalize(itemName)
	if name == "" {
		return "", false
	}

	best := ""
	bestRatio := 1.0
	consider := func(ruleName string, patterns []string) {
		for _, pattern := range patterns {
			dist := levenshtein.ComputeDistance(name, pattern)
			maxlen := max(utf8.RuneCountInString(name), utf8.RuneCountInString(pattern))
			ratio := float64(dist) / float64(maxlen)
			if ratio < bestRatio {
				bestRatio = ratio
				best = ruleName
			}
		}
	}
	for _, rule := range t.burgers {
		consider(rule.Name, rule.Patterns)
	}
	for _, rule := range t.drinks {
		consider(rule.Name, rule.Patterns)
	}

	if best == "" || bestRatio >= 0.4 {
		return "", false
	}
	return best, true
}

// Normalize lower-cases, turns "-" and "_" into spaces and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
