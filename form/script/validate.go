package script

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Validator reports whether a normalized answer is acceptable for a step.
type Validator func(value string) bool

// MinDigits accepts values containing at least n decimal digits, which is
// enough to tell a phone number from free text without parsing formats.
func MinDigits(n int) Validator {
	return func(value string) bool {
		count := 0
		for _, r := range value {
			if unicode.IsDigit(r) {
				count++
			}
		}
		return count >= n
	}
}

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// PositiveNumber accepts values whose first number is greater than zero,
// such as "120", "85,5 м²" or "approx. 300 sq m".
func PositiveNumber(value string) bool {
	_, ok := ParseArea(value)
	return ok
}

// ParseArea extracts the first number of value. A comma is accepted as the
// decimal separator.
func ParseArea(value string) (decimal.Decimal, bool) {
	match := numberRe.FindString(value)
	if match == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", "."))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
