package core

import (
	"fmt"
	"strings"
)

// FilterColumns names the four input columns that decide whether a row is kept.
type FilterColumns struct {
	Category       string
	Country        string
	ProductName    string
	NutritionGrade string
}

// DefaultFilterColumns are the Open Food Facts predicate columns.
var DefaultFilterColumns = FilterColumns{
	Category:       "main_category_fr",
	Country:        "countries_fr",
	ProductName:    "product_name",
	NutritionGrade: "nutrition_grade_fr",
}

// Names returns the columns in a fixed order.
func (f FilterColumns) Names() []string {
	return []string{f.Category, f.Country, f.ProductName, f.NutritionGrade}
}

// Predicate keeps a row when its category and country are in the allowed sets
// and its product name and nutrition grade are present. Indexes refer to
// positions in the projected row.
type Predicate struct {
	category   int
	country    int
	name       int
	grade      int
	categories map[string]struct{}
	countries  map[string]struct{}
}

// NewPredicate resolves filter columns against the projected column names.
// It fails with ErrNoPredicateColumn when one of them is not projected.
func NewPredicate(columns []string, fc FilterColumns, categories, countries []string) (*Predicate, error) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}

	var missing []string
	lookup := func(name string) int {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	p := &Predicate{
		category:   lookup(fc.Category),
		country:    lookup(fc.Country),
		name:       lookup(fc.ProductName),
		grade:      lookup(fc.NutritionGrade),
		categories: toSet(categories),
		countries:  toSet(countries),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPredicateColumn, strings.Join(missing, ", "))
	}
	return p, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Match reports whether row satisfies all four conditions.
func (p *Predicate) Match(row Row) bool {
	cat := row[p.category]
	if !cat.Valid {
		return false
	}
	if _, ok := p.categories[cat.String]; !ok {
		return false
	}

	country := row[p.country]
	if !country.Valid {
		return false
	}
	if _, ok := p.countries[country.String]; !ok {
		return false
	}

	return row[p.name].Valid && row[p.grade].Valid
}

// Normalize lowercases the nutrition grade in place. row must be owned by the caller.
func (p *Predicate) Normalize(row Row) {
	if g := row[p.grade]; g.Valid {
		row[p.grade].String = strings.ToLower(g.String)
	}
}
