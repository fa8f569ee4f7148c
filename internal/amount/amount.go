// Package amount converts free-text price input into integer minor units and
// formats minor-unit amounts for user-facing replies.
package amount

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount indicates the raw text contained no usable number.
var ErrInvalidAmount = errors.New("invalid amount")

// maxMajorUnits bounds parsed input so the minor-unit conversion cannot
// overflow int64.
const maxMajorUnits = float64(math.MaxInt64) / 100

// Parse extracts a minor-unit amount from free-form text. Every rune that is
// not a decimal digit or decimal point is stripped before parsing, the
// remainder is read as a major-unit value, and the result is truncated to
// integer minor units. "$12.50" parses to 1250, "12" to 1200.
//
// Stripping is deliberately lenient and has a documented quirk: commas are
// removed rather than treated as decimal separators, so "1,2" becomes "12"
// (1200 minor units), not 1.2. "1,234.56" still parses as 123456 because the
// comma removal leaves "1234.56" intact.
func Parse(raw string) (int64, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}

	major, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	if math.IsNaN(major) || math.IsInf(major, 0) || major < 0 || major >= maxMajorUnits {
		return 0, ErrInvalidAmount
	}

	// Minor units come from the decimal text, not the float, so "19.99"
	// yields 1999 rather than tripping over binary rounding.
	intPart, fracPart, _ := strings.Cut(cleaned, ".")

	var dollars int64
	if intPart != "" {
		dollars, err = strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
	}

	for len(fracPart) < 2 {
		fracPart += "0"
	}
	cents, err := strconv.ParseInt(fracPart[:2], 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	return dollars*100 + cents, nil
}

// FormatUSD renders minor units as a dollar string with thousands separators,
// e.g. 1999 -> "$19.99" and 199900 -> "$1,999.00".
func FormatUSD(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}

	dollars := minor / 100
	cents := minor % 100

	grouped := groupThousands(strconv.FormatInt(dollars, 10))

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(grouped)
	b.WriteByte('.')
	if cents < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(cents, 10))

	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}

	return b.String()
}
