package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount with thousand separators, e.g. "Rs 2,640.00".
func FormatAmount(currency string, amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	out := formatThousand(whole) + "." + frac
	if currency == "" {
		return sign + out
	}
	return sign + currency + " " + out
}

func formatThousand(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var out strings.Builder
	for i, c := range digits {
		if i != 0 && (len(digits)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return out.String()
}
