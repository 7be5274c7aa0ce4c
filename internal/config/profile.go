package config

// profile.go holds the filter profile: which columns to keep, which categories
// and countries to retain, and which columns drive the row filter.
//
// A profile is plain immutable data loaded once at startup, either from a YAML
// file (PROFILE_PATH) or from DefaultProfile.

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PredicateColumns names the four input columns used to decide row retention.
type PredicateColumns struct {
	Category       string `yaml:"category"`
	Country        string `yaml:"country"`
	ProductName    string `yaml:"product_name"`
	NutritionGrade string `yaml:"nutrition_grade"`
}

// Names returns the predicate columns in a fixed order.
func (p PredicateColumns) Names() []string {
	return []string{p.Category, p.Country, p.ProductName, p.NutritionGrade}
}

// Profile is the filter configuration for one pipeline.
type Profile struct {
	Headers     []string         `yaml:"headers"`
	Nutriments  []string         `yaml:"nutriments"`
	Categories  []string         `yaml:"categories"`
	Countries   []string         `yaml:"countries"`
	Columns     PredicateColumns `yaml:"columns"`
	TextColumns []string         `yaml:"text_columns"`
}

// DefaultProfile returns a built-in sample profile for the Open Food Facts
// export. Deployments normally supply their own lists through PROFILE_PATH.
func DefaultProfile() *Profile {
	return &Profile{
		Headers: []string{
			"code",
			"url",
			"product_name",
			"generic_name",
			"brands",
			"stores",
			"main_category_fr",
			"countries_fr",
			"nutrition_grade_fr",
			"image_url",
		},
		Nutriments: []string{
			"energy_100g",
			"fat_100g",
			"saturated-fat_100g",
			"carbohydrates_100g",
			"sugars_100g",
			"fiber_100g",
			"proteins_100g",
			"salt_100g",
			"sodium_100g",
		},
		Categories: []string{
			"Boissons",
			"Biscuits et gâteaux",
			"Céréales pour petit-déjeuner",
			"Chocolats",
			"Confiseries",
			"Desserts",
			"Fromages",
			"Jus de fruits",
			"Pâtes à tartiner",
			"Plats préparés",
			"Produits laitiers",
			"Snacks salés",
			"Snacks sucrés",
			"Yaourts",
		},
		Countries: []string{
			"France",
		},
		Columns: PredicateColumns{
			Category:       "main_category_fr",
			Country:        "countries_fr",
			ProductName:    "product_name",
			NutritionGrade: "nutrition_grade_fr",
		},
	}
}

// LoadProfile reads a YAML profile from path. An empty path returns DefaultProfile.
// Predicate column names left empty in the file fall back to the defaults.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes and validates a YAML profile. Unknown keys are rejected.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	def := DefaultProfile().Columns
	if p.Columns.Category == "" {
		p.Columns.Category = def.Category
	}
	if p.Columns.Country == "" {
		p.Columns.Country = def.Country
	}
	if p.Columns.ProductName == "" {
		p.Columns.ProductName = def.ProductName
	}
	if p.Columns.NutritionGrade == "" {
		p.Columns.NutritionGrade = def.NutritionGrade
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// SelectedColumns returns headers followed by nutriments, the projection applied to the input.
func (p *Profile) SelectedColumns() []string {
	out := make([]string, 0, len(p.Headers)+len(p.Nutriments))
	out = append(out, p.Headers...)
	out = append(out, p.Nutriments...)
	return out
}

// Validate checks that the profile can drive a pipeline. Empty categories or
// countries are valid; such a profile retains no rows.
func (p *Profile) Validate() error {
	var errs []string

	if len(p.Headers) == 0 {
		errs = append(errs, "headers must not be empty")
	}

	seen := make(map[string]bool)
	for _, h := range p.SelectedColumns() {
		if strings.TrimSpace(h) == "" {
			errs = append(errs, "column names must not be blank")
			continue
		}
		if seen[h] {
			errs = append(errs, fmt.Sprintf("duplicate column %q", h))
		}
		seen[h] = true
	}

	for _, c := range p.Columns.Names() {
		if !seen[c] {
			errs = append(errs, fmt.Sprintf("filter column %q is not in headers or nutriments", c))
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid profile:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
