package core

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Missing is rendered for null values.
const Missing = "N/A"

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders a value as whole dollars with thousands grouping,
// e.g. "$12,400" or "-$350".
func FormatCurrency(v decimal.NullDecimal) string {
	if !v.Valid {
		return Missing
	}
	n := v.Decimal.Round(0).IntPart()
	if n < 0 {
		return "-$" + printer.Sprintf("%d", -n)
	}
	return "$" + printer.Sprintf("%d", n)
}

// FormatPercent renders a value already in percentage points with one
// decimal, e.g. "62.5%".
func FormatPercent(v decimal.NullDecimal) string {
	if !v.Valid {
		return Missing
	}
	return v.Decimal.StringFixed(1) + "%"
}

// FormatNumber renders a plain count with thousands grouping, e.g. "1,204".
func FormatNumber(v decimal.NullDecimal) string {
	if !v.Valid {
		return Missing
	}
	return printer.Sprintf("%d", v.Decimal.Round(0).IntPart())
}
