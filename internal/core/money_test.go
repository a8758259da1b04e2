package core

import (
	"math"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyFromFloat(t *testing.T) {
	cases := []struct {
		in  float64
		out int64
		ok  bool
	}{
		{100, 10000, true},
		{0.1 + 0.2, 30, true},
		{-12.345, -1235, true},
		{83.33333333, 8333, true},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{math.Inf(-1), 0, false},
	}
	for _, tc := range cases {
		got, err := MoneyFromFloat(tc.in)
		if tc.ok && (err != nil || got.Cents != tc.out) {
			t.Fatalf("%v expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%v expected error", tc.in)
		}
	}
}

func TestMoneyArithmeticAndFormat(t *testing.T) {
	a := Money{Cents: 1050}
	b := Money{Cents: 250}

	if got := a.Add(b); got.Cents != 1300 {
		t.Fatalf("add: got %d", got.Cents)
	}
	if got := b.Sub(a); got.Cents != -800 || !got.IsNegative() {
		t.Fatalf("sub: got %d", got.Cents)
	}
	if got := a.Neg(); got.Cents != -1050 {
		t.Fatalf("neg: got %d", got.Cents)
	}
	if got := a.Min(b); got != b {
		t.Fatalf("min: got %v", got)
	}
	if s := a.String(); s != "10.50" {
		t.Fatalf("string: got %q", s)
	}
	if s := (Money{Cents: -5}).String(); s != "-0.05" {
		t.Fatalf("negative string: got %q", s)
	}
	if f := a.Euros(); f != 10.5 {
		t.Fatalf("euros: got %v", f)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}
