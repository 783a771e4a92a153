// Package numfmt renders prices and sizes for display. It is the only place
// where numeric values become strings at the boundary: the original venue
// decimal string is preferred over the float so no precision is invented or
// lost by binary floating point.
package numfmt

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// None is returned when neither input yields a finite decimal.
const None = "None"

// DefaultMaxDecimals is the fractional digit cap used by Format.
const DefaultMaxDecimals = 12

// Format is FormatN with the default digit cap.
func Format(s string, f float64) string {
	return FormatN(s, f, DefaultMaxDecimals)
}

// FormatFloat renders a bare float with no original string available.
// Pass math.NaN() for an absent value.
func FormatFloat(f float64) string {
	return Format("", f)
}

// FormatN renders the shortest exact decimal with at most maxDec fractional
// digits, truncating toward zero. s is the venue's original decimal string
// ("" when absent); f is the float fallback (NaN/Inf when absent). Trailing
// zeros after the point are stripped, then a trailing point; "-0" becomes
// "0". The output is always plain decimal notation, never exponential.
func FormatN(s string, f float64, maxDec int32) string {
	var d decimal.Decimal
	parsed := false

	if s != "" {
		if dd, err := decimal.NewFromString(s); err == nil {
			d = dd
			parsed = true
		}
	}
	if !parsed {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return None
		}
		d = decimal.NewFromFloat(f)
	}

	out := d.Truncate(maxDec).String()
	if strings.Contains(out, ".") {
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	if out == "-0" || out == "" {
		out = "0"
	}
	return out
}
