package automation

import (
	"regexp"
	"strings"
)

var moneyJunkRe = regexp.MustCompile(`[^\d.,-]`)

// MoneyCandidates holds the same amount in the two decimal notations the
// portal's numeric mask might expect. The mask format is not known in
// advance and guessing wrong silently truncates the value, so the filler
// tries Dot first and Comma second.
type MoneyCandidates struct {
	Dot   string // "1234.56"
	Comma string // "1234,56"
}

// NormalizeMoney accepts "1.234,56", "1,234.56", "1234,56", "1234.56" or
// "1234" and returns both candidate notations. Thousands separators are
// stripped; whichever separator appears last is taken as the decimal mark.
func NormalizeMoney(raw string) MoneyCandidates {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = moneyJunkRe.ReplaceAllString(s, "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma != -1 && lastDot != -1:
		if lastComma > lastDot {
			// "1.234,56" -> "1234.56"
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// "1,234.56" -> "1234.56"
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma != -1:
		s = strings.Replace(s, ",", ".", 1)
	}

	return MoneyCandidates{
		Dot:   s,
		Comma: strings.Replace(s, ".", ",", 1),
	}
}
