// Package catalog holds the dashboard configuration handed to the
// reconciliation engine: metric aliases and the fixed metric lists.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"findash/internal/core"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is static configuration; it is never derived from the data.
// Charts are Actual vs Budget panels; each entry of Pairs plots the actuals
// of two metrics together.
type Catalog struct {
	Aliases    core.AliasSet `yaml:"aliases"`
	Headline   []string      `yaml:"headline" validate:"required,min=1,dive,required"`
	Variance   []string      `yaml:"variance" validate:"required,min=1,dive,required"`
	Categories []string      `yaml:"categories" validate:"dive,required"`
	Trend      []string      `yaml:"trend" validate:"dive,required"`
	Charts     []string      `yaml:"charts" validate:"dive,required"`
	Pairs      [][]string    `yaml:"pairs" validate:"dive,len=2,dive,required"`
	Percent    []string      `yaml:"percent" validate:"dive,required"`
	Counts     []string      `yaml:"counts" validate:"dive,required"`

	percent map[string]struct{}
	counts  map[string]struct{}
}

var validate = validator.New()

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the metric lists and the alias set.
func (c *Catalog) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}
	if _, err := core.NewResolver(c.Aliases); err != nil {
		return fmt.Errorf("validate catalog aliases: %w", err)
	}
	c.percent = toSet(c.Percent)
	c.counts = toSet(c.Counts)
	return nil
}

// Resolver builds the alias resolver for this catalog.
func (c *Catalog) Resolver() (*core.Resolver, error) {
	return core.NewResolver(c.Aliases)
}

// IsPercent reports whether metric is rendered as a percentage.
func (c *Catalog) IsPercent(metric string) bool {
	_, ok := c.percent[strings.TrimSpace(metric)]
	return ok
}

// Value kinds returned by Kind.
const (
	KindCurrency = "currency"
	KindPercent  = "percent"
	KindCount    = "count"
)

// Kind classifies metric for display.
func (c *Catalog) Kind(metric string) string {
	metric = strings.TrimSpace(metric)
	if _, ok := c.percent[metric]; ok {
		return KindPercent
	}
	if _, ok := c.counts[metric]; ok {
		return KindCount
	}
	return KindCurrency
}

// Format renders a value with the formatter matching the metric's kind.
func (c *Catalog) Format(metric string, v decimal.NullDecimal) string {
	switch c.Kind(metric) {
	case KindPercent:
		return core.FormatPercent(v)
	case KindCount:
		return core.FormatNumber(v)
	default:
		return core.FormatCurrency(v)
	}
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, m := range list {
		out[strings.TrimSpace(m)] = struct{}{}
	}
	return out
}
