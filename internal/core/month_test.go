package core

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in   string
		want Month
		ok   bool
	}{
		{"2025-06", Month{2025, time.June}, true},
		{"2024-12", Month{2024, time.December}, true},
		{"2025-13", Month{}, false},
		{"2025-00", Month{}, false},
		{"2025", Month{}, false},
		{"06-2025", Month{}, false},
		{"", Month{}, false},
	}
	for _, tc := range cases {
		got, err := ParseMonth(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseMonth(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseMonth(%q) expected error", tc.in)
		}
	}
}

func TestMonthString(t *testing.T) {
	m := Month{2025, time.March}
	if m.String() != "2025-03" {
		t.Fatalf("String() = %q", m.String())
	}
}

func TestMonthPrev(t *testing.T) {
	if got := (Month{2025, time.January}).Prev(); got != (Month{2024, time.December}) {
		t.Fatalf("Prev() across year = %v", got)
	}
	if got := (Month{2025, time.July}).Prev(); got != (Month{2025, time.June}) {
		t.Fatalf("Prev() = %v", got)
	}
}

func TestMonthBounds(t *testing.T) {
	start, end := Month{2025, time.February}.Bounds()
	if start != time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("start = %v", start)
	}
	if end != time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("end = %v", end)
	}
}

func TestMonthContains(t *testing.T) {
	m := Month{2025, time.February}
	if !m.Contains(time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("expected last day to be contained")
	}
	if m.Contains(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first day of next month must be excluded")
	}
}
