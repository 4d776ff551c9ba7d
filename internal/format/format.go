// Package format renders money and quantity values the way the merchant and
// client pages display them.
package format

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.MustParse("es-MX"))

// truncate2 keeps at most two fraction digits without rounding up. The tiny
// epsilon compensates for binary representation of stored decimals
// (1.13*100 is 112.999...).
func truncate2(v float64) float64 {
	if v < 0 {
		return -truncate2(-v)
	}
	return math.Trunc(v*100+1e-9) / 100
}

// Money formats a currency value as "$ 1,234.56". The fraction part is shown
// only when present and never exceeds two digits.
func Money(v float64) string {
	return "$ " + printer.Sprint(number.Decimal(truncate2(v), number.MaxFractionDigits(2)))
}

// Quantity formats a quantity with up to two fraction digits and no grouping:
// 1, 1.5, 10.25.
func Quantity(v float64) string {
	return strconv.FormatFloat(truncate2(v), 'f', -1, 64)
}

// CompactAmount renders dashboard amounts in signed compact form:
// +$950.00, +$1.50k, +$12k, -$2.50M.
func CompactAmount(v float64) string {
	abs := math.Abs(v)
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%s$%.2fM", sign, abs/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%s$%.0fk", sign, abs/1_000)
	case abs >= 1_000:
		return fmt.Sprintf("%s$%.2fk", sign, abs/1_000)
	default:
		return fmt.Sprintf("%s$%.2f", sign, abs)
	}
}
