package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"findash/internal/core"
)

func TestDefault(t *testing.T) {
	c := Default()
	if len(c.Headline) != 6 || c.Headline[0] != "Total Rev" {
		t.Fatalf("unexpected headline: %v", c.Headline)
	}
	if len(c.Variance) != 13 || c.Variance[12] != "Rule of 40" {
		t.Fatalf("unexpected variance catalog: %v", c.Variance)
	}
	if len(c.Charts) != 3 || c.Charts[0] != "Gross Margin %" || c.Charts[2] != "EBITDA Margin" {
		t.Fatalf("unexpected charts: %v", c.Charts)
	}
	if len(c.Pairs) != 1 || len(c.Pairs[0]) != 2 || c.Pairs[0][0] != "CAC" || c.Pairs[0][1] != "LTV" {
		t.Fatalf("unexpected pairs: %v", c.Pairs)
	}
	r, err := c.Resolver()
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if got := r.Canonical("Revenue"); got != "Total Rev" {
		t.Fatalf("Revenue should alias Total Rev, got %q", got)
	}
	if !c.IsPercent("Gross Margin %") || c.IsPercent("EBITDA") {
		t.Fatalf("percent set wrong")
	}
}

func TestFormat(t *testing.T) {
	c := Default()
	v := core.ParseValue("1234.4")
	if got := c.Format("EBITDA", v); got != "$1,234" {
		t.Fatalf("currency: %q", got)
	}
	if got := c.Format("EBITDA Margin", core.ParseValue("18.25")); got != "18.3%" {
		t.Fatalf("percent: %q", got)
	}
	if got := c.Format("Customers", v); got != "1,234" {
		t.Fatalf("count: %q", got)
	}
	if got := c.Format("EBITDA", core.Null); got != core.Missing {
		t.Fatalf("missing: %q", got)
	}
	if c.Kind("Churn Rate") != KindPercent || c.Kind(" Customers ") != KindCount || c.Kind("LTV") != KindCurrency {
		t.Fatalf("unexpected kinds")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	body := []byte("aliases:\n  Net Sales: [Sales, Revenue]\nheadline: [Net Sales]\nvariance: [Net Sales, COGS]\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Aliases["Net Sales"]) != 2 || len(c.Variance) != 2 {
		t.Fatalf("unexpected catalog: %+v", c)
	}

	if c, err := Load(""); err != nil || len(c.Headline) == 0 {
		t.Fatalf("empty path should load default: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"no headline":  "variance: [COGS]\n",
		"no variance":  "headline: [COGS]\n",
		"blank metric": "headline: [\"\"]\nvariance: [COGS]\n",
		"bad yaml":     "headline: [\n",
		"short pair":   "headline: [COGS]\nvariance: [COGS]\npairs: [[CAC]]\n",
		"blank pair":   "headline: [COGS]\nvariance: [COGS]\npairs: [[CAC, \"\"]]\n",
		"blank chart":  "headline: [COGS]\nvariance: [COGS]\ncharts: [\"\"]\n",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	_, err := Parse([]byte("aliases:\n  A: [X]\n  B: [X]\nheadline: [A]\nvariance: [A]\n"))
	if !errors.Is(err, core.ErrAliasConflict) {
		t.Fatalf("expected alias conflict, got %v", err)
	}
}
