package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"0", "", false},
		{"0.00", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseBudgetAmount(t *testing.T) {
	if d, err := ParseBudgetAmount("0"); err != nil || !d.IsZero() {
		t.Fatalf("zero budget should be allowed, got %s (err=%v)", d, err)
	}
	if _, err := ParseBudgetAmount("-5"); err != ErrInvalidBudgetAmount {
		t.Fatalf("expected ErrInvalidBudgetAmount, got %v", err)
	}
	if !IsValidationError(ErrInvalidBudgetAmount) {
		t.Fatalf("budget amount error should be a validation error")
	}
}

func TestFormatAmount(t *testing.T) {
	d, _ := ParseAmount("12.5")
	if got := FormatAmount(d); got != "12.50" {
		t.Fatalf("expected 12.50, got %s", got)
	}
}
