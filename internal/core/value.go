package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Null is the missing metric value.
var Null = decimal.NullDecimal{}

// NewValue wraps a decimal as a present value.
func NewValue(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseValue coerces a raw cell to a decimal.
//
// Accepted: optional sign, an optional leading currency symbol ($, €, £),
// comma thousands separators, a trailing % (kept in percentage points) and
// accounting negatives such as "(1,200)". The sign may sit before or after
// the symbol ("-$100", "$-100") but only once. Anything else yields Null.
func ParseValue(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s, sign := takeSign(s)
	for _, sym := range []string{"$", "€", "£"} {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			var after byte
			if s, after = takeSign(s); after != 0 {
				if sign != 0 {
					return Null
				}
				sign = after
			}
			break
		}
	}
	if sign == '-' {
		if neg {
			return Null
		}
		neg = true
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return Null
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Null
	}
	if neg {
		d = d.Neg()
	}
	return NewValue(d)
}

// takeSign strips one leading + or - and reports which, or 0.
func takeSign(s string) (string, byte) {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		return strings.TrimSpace(s[1:]), s[0]
	}
	return s, 0
}

func init() {
	// Metric values are emitted as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}
