package core

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrInvalidAmount is returned by ParseAmount for malformed or non-positive input.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount reads a positive BRL amount typed by a user.
//
// Both "12.34" and "12,34" are accepted; a value carrying both separators is
// read the Brazilian way ("1.234,56"). The result keeps two decimals with
// half-up rounding on the third.
//
//	ParseAmount("12,34")    -> 12.34
//	ParseAmount("1.234,56") -> 1234.56
//	ParseAmount("0,005")    -> 0.01
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<53 - 1) / 100
	if iv > maxSafe {
		return 0, ErrInvalidAmount
	}

	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	cents := iv*100 + frac
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return float64(cents) / 100, nil
}

// FormatBRL renders an amount as "R$ 1.234,56".
func FormatBRL(v float64) string {
	if v < 0 {
		return "-R$ " + humanize.FormatFloat("#.###,##", -v)
	}
	return "R$ " + humanize.FormatFloat("#.###,##", v)
}
