package conversation

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotNumber is returned for text that does not parse as a finite number.
var ErrNotNumber = errors.New("conversation: not a number")

var numberCleaner = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", ",", ".")

// ParseDecimal parses a user-entered number. Spaces are ignored and a comma
// is accepted as the decimal separator. No range is enforced.
func ParseDecimal(s string) (float64, error) {
	s = numberCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrNotNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotNumber
	}
	return v, nil
}

// ParseInteger accepts any decimal and truncates it toward zero. Values
// outside the int range are rejected.
func ParseInteger(s string) (int, error) {
	v, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	v = math.Trunc(v)
	if v >= -float64(math.MinInt) || v < float64(math.MinInt) {
		return 0, ErrNotNumber
	}
	return int(v), nil
}

// MatchOption finds the option carrying token.
func MatchOption(options []Option, token string) (Option, bool) {
	token = strings.TrimSpace(token)
	for _, o := range options {
		if o.Token == token {
			return o, true
		}
	}
	return Option{}, false
}

// IsSpreadsheet reports whether name looks like an .xlsx workbook.
func IsSpreadsheet(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), ".xlsx")
}
