// Package calculator holds the savings math: required monthly payment,
// month-by-month growth simulation, achievement dates and scenario
// comparisons. Everything here is pure; inputs are assumed validated
// (non-negative, finite) by the caller.
package calculator

import (
	"errors"
	"iter"
	"math"
	"time"
)

// ErrNeverReached is returned when a goal cannot be reached with the given
// monthly contribution.
var ErrNeverReached = errors.New("target never reached")

// SimulationResult summarises a simulated savings run.
type SimulationResult struct {
	FinalAmount        float64
	TotalContributions float64 // initial amount included
	TotalInterest      float64
}

// ProjectionPoint is the state at the end of a simulated month.
type ProjectionPoint struct {
	Month    int
	Total    float64
	Interest float64 // interest earned in this month
}

// Scenario is the monthly contribution needed under a named rate preset.
type Scenario struct {
	Label               string
	AnnualRatePct       float64
	MonthlyContribution float64
}

// LumpSumResult compares a plan with and without an extra initial deposit.
type LumpSumResult struct {
	WithoutLumpSum float64
	WithLumpSum    float64
	Difference     float64
}

// RatePreset is a named annual interest rate.
type RatePreset struct {
	Label         string
	AnnualRatePct float64
}

// Presets are the rates compared by CompareScenarios.
var Presets = []RatePreset{
	{Label: "No interest", AnnualRatePct: 0},
	{Label: "Savings account", AnnualRatePct: 2},
	{Label: "Conservative", AnnualRatePct: 4},
	{Label: "Balanced", AnnualRatePct: 6},
	{Label: "Aggressive", AnnualRatePct: 8},
}

func monthlyRate(annualRatePct float64) float64 {
	return annualRatePct / 100 / 12
}

// Months converts a horizon in years to whole months.
func Months(years float64) int {
	return int(math.Round(years * 12))
}

// MonthlyPaymentNeeded solves
//
//	initial*(1+r)^n + P*((1+r)^n-1)/r = target
//
// for P with r the monthly rate and n the number of months. With a zero
// rate it falls back to (target-initial)/n, and with no months left the
// whole target is due now. The result is never negative.
func MonthlyPaymentNeeded(target, initial, annualRatePct, years float64) float64 {
	n := Months(years)
	if n <= 0 {
		return target
	}
	r := monthlyRate(annualRatePct)
	var p float64
	if r == 0 {
		p = (target - initial) / float64(n)
	} else {
		growth := math.Pow(1+r, float64(n))
		p = (target - initial*growth) * r / (growth - 1)
	}
	return math.Max(p, 0)
}

// Simulate runs the plan month by month. Each month interest on the running
// total is credited before the contribution is added.
func Simulate(initial, monthlyContribution, annualRatePct, years float64) SimulationResult {
	res := SimulationResult{FinalAmount: initial, TotalContributions: initial}
	for p := range Projection(initial, monthlyContribution, annualRatePct, Months(years)) {
		res.FinalAmount = p.Total
		res.TotalInterest += p.Interest
		res.TotalContributions += monthlyContribution
	}
	return res
}

// Projection yields the running total for months 1..months using the same
// recurrence as Simulate. Each range over the sequence starts a fresh run.
func Projection(initial, monthlyContribution, annualRatePct float64, months int) iter.Seq[ProjectionPoint] {
	r := monthlyRate(annualRatePct)
	return func(yield func(ProjectionPoint) bool) {
		total := initial
		for m := 1; m <= months; m++ {
			interest := total * r
			total += interest
			total += monthlyContribution
			if !yield(ProjectionPoint{Month: m, Total: total, Interest: interest}) {
				return
			}
		}
	}
}

// AchievementDate is the date the target is reached by adding
// monthlyContribution every month from now, without interest.
func AchievementDate(target, current, monthlyContribution float64, now time.Time) (time.Time, error) {
	if current >= target {
		return now, nil
	}
	if monthlyContribution <= 0 || math.IsNaN(monthlyContribution) {
		return time.Time{}, ErrNeverReached
	}
	months := int(math.Ceil((target - current) / monthlyContribution))
	return now.AddDate(0, months, 0), nil
}

// CompareScenarios computes the monthly payment needed for every preset.
func CompareScenarios(initial, target, years float64) []Scenario {
	out := make([]Scenario, 0, len(Presets))
	for _, p := range Presets {
		out = append(out, Scenario{
			Label:               p.Label,
			AnnualRatePct:       p.AnnualRatePct,
			MonthlyContribution: MonthlyPaymentNeeded(target, initial, p.AnnualRatePct, years),
		})
	}
	return out
}

// LumpSumImpact is the extra final amount gained by adding lumpSum to the
// initial deposit.
func LumpSumImpact(initial, monthlyContribution, annualRatePct, lumpSum, years float64) LumpSumResult {
	without := Simulate(initial, monthlyContribution, annualRatePct, years).FinalAmount
	with := Simulate(initial+lumpSum, monthlyContribution, annualRatePct, years).FinalAmount
	return LumpSumResult{
		WithoutLumpSum: without,
		WithLumpSum:    with,
		Difference:     with - without,
	}
}

// MonthsUntil counts whole calendar months from now to target, rounding a
// partial month up. Past dates give 0.
func MonthsUntil(now, target time.Time) int {
	if !target.After(now) {
		return 0
	}
	months := (target.Year()-now.Year())*12 + int(target.Month()) - int(now.Month())
	if now.AddDate(0, months, 0).Before(target) {
		months++
	}
	return months
}
