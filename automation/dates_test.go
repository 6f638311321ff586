package automation

import "testing"

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		day   int
		month int
		year  int
		ok    bool
	}{
		{"5/3/2026", 5, 3, 2026, true},   // ambiguous: day-first wins
		{"3/25/2026", 25, 3, 2026, true}, // middle > 12: must be month/day
		{"25/3/2026", 25, 3, 2026, true}, // unambiguous day-first
		{"05/03/2026", 5, 3, 2026, true}, // zero-padded
		{"2026-03-05", 5, 3, 2026, true}, // ISO
		{"2026/3/5", 5, 3, 2026, true},   // year-first with slashes
		{"5-3-2026", 5, 3, 2026, true},   // dash separators
		{"5.3.2026", 5, 3, 2026, true},   // dot separators
		{" 5/3/2026 ", 5, 3, 2026, true}, // surrounding whitespace
		{"mañana", 0, 0, 0, false},       // not a date
		{"5/3/26", 0, 0, 0, false},       // two-digit year rejected
		{"", 0, 0, 0, false},
	}
	for _, tc := range tests {
		day, month, year, ok := ParseDate(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if day != tc.day || month != tc.month || year != tc.year {
			t.Errorf("ParseDate(%q) = %d/%d/%d, want %d/%d/%d",
				tc.input, day, month, year, tc.day, tc.month, tc.year)
		}
	}
}

func TestNormalizeDateDDMMYYYY(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5/3/2026", "05/03/2026"},
		{"3/25/2026", "25/03/2026"},
		{"2026-03-05", "05/03/2026"},
		{"no-date", "no-date"}, // unparseable passes through untouched
		{"  31/12/2026  ", "31/12/2026"},
	}
	for _, tc := range tests {
		if got := NormalizeDateDDMMYYYY(tc.input); got != tc.want {
			t.Errorf("NormalizeDateDDMMYYYY(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeDateISO(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5/3/2026", "2026-03-05"},
		{"3/25/2026", "2026-03-25"},
		{"2026-03-05", "2026-03-05"},
		{"garbage", "garbage"},
	}
	for _, tc := range tests {
		if got := NormalizeDateISO(tc.input); got != tc.want {
			t.Errorf("NormalizeDateISO(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// The two renderings must always agree on day/month for the same input.
func TestDatePolicyIsShared(t *testing.T) {
	for _, input := range []string{"5/3/2026", "3/25/2026", "12/1/2027", "1/12/2027"} {
		ddmm := NormalizeDateDDMMYYYY(input)
		iso := NormalizeDateISO(input)
		if ddmm[0:2] != iso[8:10] || ddmm[3:5] != iso[5:7] {
			t.Errorf("policies diverge for %q: ddmm=%q iso=%q", input, ddmm, iso)
		}
	}
}
