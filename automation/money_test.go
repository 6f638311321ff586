package automation

import "testing"

func TestNormalizeMoney(t *testing.T) {
	tests := []struct {
		input string
		dot   string
		comma string
	}{
		{"1234.56", "1234.56", "1234,56"},
		{"1234,56", "1234.56", "1234,56"},
		{"1.234,56", "1234.56", "1234,56"}, // AR thousands + decimal comma
		{"1,234.56", "1234.56", "1234,56"}, // US thousands + decimal dot
		{"1234", "1234", "1234"},
		{"$ 1.234,56", "1234.56", "1234,56"}, // currency junk stripped
		{"12.345.678,90", "12345678.90", "12345678,90"},
		{" 99,9 ", "99.9", "99,9"},
	}
	for _, tc := range tests {
		got := NormalizeMoney(tc.input)
		if got.Dot != tc.dot || got.Comma != tc.comma {
			t.Errorf("NormalizeMoney(%q) = {%q %q}, want {%q %q}",
				tc.input, got.Dot, got.Comma, tc.dot, tc.comma)
		}
	}
}

// The two accepted source notations of the same amount must yield identical
// candidates, so the filler behaves the same regardless of upload format.
func TestNormalizeMoneyNotationEquivalence(t *testing.T) {
	a := NormalizeMoney("1.234,56")
	b := NormalizeMoney("1,234.56")
	if a != b {
		t.Errorf("notations diverge: %+v vs %+v", a, b)
	}
}
