// Package refdata provides the built-in static reference tables used by the
// portfolio analysis tools: long-run return and volatility figures per
// asset class, and pairwise return correlations. All figures are annualized
// long-horizon estimates, not live quotes.
package refdata

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/foliolens/foliolens/analysis"
)

// Table is an in-memory implementation of analysis.ReferenceData. Lookups
// are case-insensitive and tolerate spaces in place of underscores. The
// zero value is not usable; construct with NewTable.
type Table struct {
	metrics      map[string]analysis.AssetClassMetrics
	correlations map[pair]float64
}

var _ analysis.ReferenceData = (*Table)(nil)

type pair struct {
	a, b string
}

// orderedPair normalizes a correlation key so (a, b) and (b, a) hit the
// same entry.
func orderedPair(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a: a, b: b}
}

func normalize(class string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(class)), " ", "_")
}

// NewTable returns a table preloaded with the built-in asset classes.
func NewTable() *Table {
	t := &Table{
		metrics:      make(map[string]analysis.AssetClassMetrics),
		correlations: make(map[pair]float64),
	}

	t.add("us_large_cap", 0.098, 0.155)
	t.add("us_small_cap", 0.112, 0.198)
	t.add("international_developed", 0.075, 0.168)
	t.add("emerging_markets", 0.086, 0.221)
	t.add("us_bonds", 0.042, 0.054)
	t.add("high_yield_bonds", 0.061, 0.091)
	t.add("real_estate", 0.083, 0.172)
	t.add("commodities", 0.054, 0.163)
	t.add("cash", 0.025, 0.009)

	t.correlate("us_large_cap", "us_small_cap", 0.89)
	t.correlate("us_large_cap", "international_developed", 0.84)
	t.correlate("us_large_cap", "emerging_markets", 0.74)
	t.correlate("us_large_cap", "us_bonds", 0.12)
	t.correlate("us_large_cap", "high_yield_bonds", 0.58)
	t.correlate("us_large_cap", "real_estate", 0.66)
	t.correlate("us_large_cap", "commodities", 0.31)
	t.correlate("us_large_cap", "cash", 0.02)
	t.correlate("us_small_cap", "international_developed", 0.76)
	t.correlate("us_small_cap", "emerging_markets", 0.70)
	t.correlate("us_small_cap", "us_bonds", 0.06)
	t.correlate("us_small_cap", "high_yield_bonds", 0.60)
	t.correlate("us_small_cap", "real_estate", 0.68)
	t.correlate("us_small_cap", "commodities", 0.29)
	t.correlate("us_small_cap", "cash", 0.01)
	t.correlate("international_developed", "emerging_markets", 0.87)
	t.correlate("international_developed", "us_bonds", 0.14)
	t.correlate("international_developed", "high_yield_bonds", 0.57)
	t.correlate("international_developed", "real_estate", 0.62)
	t.correlate("international_developed", "commodities", 0.40)
	t.correlate("international_developed", "cash", 0.02)
	t.correlate("emerging_markets", "us_bonds", 0.17)
	t.correlate("emerging_markets", "high_yield_bonds", 0.61)
	t.correlate("emerging_markets", "real_estate", 0.55)
	t.correlate("emerging_markets", "commodities", 0.45)
	t.correlate("emerging_markets", "cash", 0.03)
	t.correlate("us_bonds", "high_yield_bonds", 0.42)
	t.correlate("us_bonds", "real_estate", 0.21)
	t.correlate("us_bonds", "commodities", -0.02)
	t.correlate("us_bonds", "cash", 0.18)
	t.correlate("high_yield_bonds", "real_estate", 0.56)
	t.correlate("high_yield_bonds", "commodities", 0.24)
	t.correlate("high_yield_bonds", "cash", 0.04)
	t.correlate("real_estate", "commodities", 0.26)
	t.correlate("real_estate", "cash", 0.03)
	t.correlate("commodities", "cash", 0.05)

	return t
}

func (t *Table) add(class string, annualReturn, volatility float64) {
	t.metrics[class] = analysis.AssetClassMetrics{
		AnnualReturn: annualReturn,
		Volatility:   volatility,
	}
}

func (t *Table) correlate(a, b string, c float64) {
	t.correlations[orderedPair(a, b)] = c
}

// Classes returns the known asset class identifiers in sorted order.
func (t *Table) Classes(_ context.Context) ([]string, error) {
	classes := make([]string, 0, len(t.metrics))
	for class := range t.metrics {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes, nil
}

// Metrics returns the return and volatility figures for one asset class.
func (t *Table) Metrics(_ context.Context, assetClass string) (analysis.AssetClassMetrics, error) {
	m, ok := t.metrics[normalize(assetClass)]
	if !ok {
		return analysis.AssetClassMetrics{}, fmt.Errorf("unknown asset class %q; call list_asset_classes for valid identifiers", assetClass)
	}
	return m, nil
}

// Correlation returns the pairwise return correlation between two asset
// classes. Order of arguments does not matter; a class paired with itself
// is 1.
func (t *Table) Correlation(_ context.Context, classA, classB string) (float64, error) {
	a, b := normalize(classA), normalize(classB)
	if _, ok := t.metrics[a]; !ok {
		return 0, fmt.Errorf("unknown asset class %q; call list_asset_classes for valid identifiers", classA)
	}
	if _, ok := t.metrics[b]; !ok {
		return 0, fmt.Errorf("unknown asset class %q; call list_asset_classes for valid identifiers", classB)
	}
	if a == b {
		return 1, nil
	}
	c, ok := t.correlations[orderedPair(a, b)]
	if !ok {
		return 0, fmt.Errorf("no correlation recorded for %q and %q", classA, classB)
	}
	return c, nil
}
