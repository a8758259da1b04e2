package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2026-03-09 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2026-03-09" {
		t.Fatalf("unexpected date %s", d)
	}
	if _, err := ParseDate("09/03/2026"); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
}

func validGoal() SavingsGoal {
	return SavingsGoal{
		Name:                "Holiday",
		TargetAmount:        Money{Cents: 120000},
		MonthlyContribution: Money{Cents: 10000},
		Category:            CategoryTravel,
		SavingsAccountID:    "acc-savings",
		TargetDate:          NewDate(2027, 6, 1),
	}
}

func TestSavingsGoalValidate(t *testing.T) {
	if err := validGoal().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SavingsGoal)
		want   error
	}{
		{"empty name", func(g *SavingsGoal) { g.Name = "  " }, ErrEmptyName},
		{"zero target", func(g *SavingsGoal) { g.TargetAmount = Money{} }, ErrInvalidAmount},
		{"zero monthly", func(g *SavingsGoal) { g.MonthlyContribution = Money{} }, ErrInvalidAmount},
		{"negative current", func(g *SavingsGoal) { g.CurrentAmount = Money{Cents: -1} }, ErrInvalidAmount},
		{"unknown category", func(g *SavingsGoal) { g.Category = "yacht" }, ErrInvalidCategory},
		{"missing savings account", func(g *SavingsGoal) { g.SavingsAccountID = "" }, ErrMissingAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGoal()
			tt.mutate(&g)
			if err := g.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSavingsGoalProgress(t *testing.T) {
	g := validGoal()
	g.CurrentAmount = Money{Cents: 30000}
	if g.Remaining().Cents != 90000 {
		t.Fatalf("remaining: got %d", g.Remaining().Cents)
	}
	if g.ProgressPercent() != 25 {
		t.Fatalf("progress: got %v", g.ProgressPercent())
	}
	if g.Reached() {
		t.Fatalf("goal should not be reached")
	}

	g.CurrentAmount = Money{Cents: 150000}
	if !g.Reached() || g.Remaining().Cents != 0 || g.ProgressPercent() != 100 {
		t.Fatalf("overfunded goal: reached=%v remaining=%d progress=%v", g.Reached(), g.Remaining().Cents, g.ProgressPercent())
	}
}

func TestRecurringContributionValidate(t *testing.T) {
	good := RecurringContribution{
		GoalID:          "g1",
		SourceAccountID: "a1",
		Amount:          Money{Cents: 5000},
		Every:           Monthly,
		StartDate:       NewDate(2026, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.Every = "hourly"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRepetition) {
		t.Fatalf("expected ErrInvalidRepetition, got %v", err)
	}

	bad = good
	bad.EndDate = NewDate(2025, 12, 1)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for end before start")
	}
}

func TestKind(t *testing.T) {
	refund := &PartialRefundError{GoalID: "g", Attempted: 3, Succeeded: 1, Err: ErrAccountNotFound}
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("contribute: %w", ErrInsufficientBalance), "InsufficientBalance"},
		{ErrConcurrentOperation, "ConcurrentOperationInProgress"},
		{refund, "PartialRefundFailure"},
		{fmt.Errorf("x: %w", fmt.Errorf("%w: %w", ErrCompensationFailed, ErrAccountNotFound)), "CompensationFailed"},
		{fmt.Errorf("goal: %w", ErrInvalidCategory), "InvalidInput"},
		{errors.New("boom"), "Internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if !errors.Is(refund, ErrAccountNotFound) {
		t.Errorf("partial refund error should unwrap to its cause")
	}
}
