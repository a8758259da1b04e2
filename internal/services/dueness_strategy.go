package services

import (
	"fmt"
	"time"

	"risparmi/internal/core"
)

// DuenessChecker decides whether a recurring contribution runs now.
type DuenessChecker interface {
	IsDue(lastExecution, now time.Time, startDate core.Date) bool
}

// DailyChecker runs once per calendar day.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastExecution, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	return core.DateOf(lastExecution).Before(core.DateOf(now).Time)
}

// WeeklyChecker runs when a week has passed since the last run.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastExecution, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	return now.Sub(lastExecution) >= 7*24*time.Hour
}

// MonthlyChecker runs once a month, on the start date's day or the last
// day of shorter months.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastExecution, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() && lastExecution.Month() == now.Month() {
		return false
	}
	return now.Day() >= clampDay(now.Year(), now.Month(), startDate.Day())
}

// YearlyChecker runs once a year on the start date's anniversary.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(lastExecution, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() {
		return false
	}
	targetMonth := time.Month(startDate.Month())
	switch {
	case now.Month() < targetMonth:
		return false
	case now.Month() == targetMonth:
		return now.Day() >= clampDay(now.Year(), now.Month(), startDate.Day())
	default:
		return true
	}
}

// clampDay caps day to the length of the given month (31 -> 28 in February).
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

var duenessStrategies = map[core.RepetitionTypes]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for frequency.
func GetDuenessChecker(frequency core.RepetitionTypes) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", frequency)
	}
	return checker, nil
}
