package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Single date-normalization policy for the whole system. Both the upload API
// and the on-portal filler go through these functions so the day/month
// ambiguity rule cannot diverge between layers.

var (
	dayFirstRe  = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})$`)
	yearFirstRe = regexp.MustCompile(`^(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})$`)
)

// ParseDate splits a date string into day, month, year. Day-first is assumed
// ("5/3/2026" is the 5th of March); when the middle number exceeds 12 the
// input can only be month/day ("3/25/2026"), so the order is swapped.
// Year-first inputs are unambiguous. Returns ok=false for anything else.
func ParseDate(input string) (day, month, year int, ok bool) {
	s := strings.TrimSpace(input)
	if m := dayFirstRe.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
		if b > 12 && a >= 1 && a <= 12 {
			return b, a, year, true
		}
		return a, b, year, true
	}
	if m := yearFirstRe.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		day, _ = strconv.Atoi(m[3])
		return day, month, year, true
	}
	return 0, 0, 0, false
}

// NormalizeDateDDMMYYYY renders the date as DD/MM/YYYY, the format the
// portal's text date inputs expect. Unparseable input is returned as-is
// (better than guessing wrong).
func NormalizeDateDDMMYYYY(input string) string {
	day, month, year, ok := ParseDate(input)
	if !ok {
		return strings.TrimSpace(input)
	}
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year)
}

// NormalizeDateISO renders the date as YYYY-MM-DD, for native date inputs.
func NormalizeDateISO(input string) string {
	day, month, year, ok := ParseDate(input)
	if !ok {
		return strings.TrimSpace(input)
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}
