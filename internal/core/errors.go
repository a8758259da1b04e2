package core

import (
	"errors"
	"fmt"
)

// Ledger error taxonomy. Validation kinds are returned before any mutation.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAccountNotFound      = errors.New("account not found")
	ErrGoalNotFound         = errors.New("goal not found")
	ErrGoalAlreadyCompleted = errors.New("goal already completed")
	ErrConcurrentOperation  = errors.New("operation already in progress for goal")
	ErrPartialRefundFailure = errors.New("partial refund failure")
	ErrConsistencyDrift     = errors.New("consistency drift")

	ErrSelfContribution     = errors.New("source account is the goal savings account")
	ErrInvalidAccountType   = errors.New("account is not a savings account")
	ErrSavingsAccountChange = errors.New("savings account cannot change while the goal holds funds")
	ErrGoalOverfunded       = errors.New("contribution exceeds goal target")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrRecurringNotFound    = errors.New("recurring contribution not found")
	ErrCompensationFailed   = errors.New("compensation failed, resync required")
)

// PartialRefundError reports a refund sequence that did not fully apply.
// When RolledBack is true every applied refund was reversed and no money
// moved; otherwise Succeeded refunds remain applied.
type PartialRefundError struct {
	GoalID     string
	Attempted  int
	Succeeded  int
	RolledBack bool
	Err        error
}

func (e *PartialRefundError) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "NOT rolled back"
	}
	return fmt.Sprintf("refund of goal %s: %d of %d applied, %s: %v", e.GoalID, e.Succeeded, e.Attempted, state, e.Err)
}

func (e *PartialRefundError) Unwrap() []error {
	return []error{ErrPartialRefundFailure, e.Err}
}

// kinds is ordered so wrapping errors win over the causes they carry.
var kinds = []struct {
	err  error
	name string
}{
	{ErrPartialRefundFailure, "PartialRefundFailure"},
	{ErrCompensationFailed, "CompensationFailed"},
	{ErrConcurrentOperation, "ConcurrentOperationInProgress"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrAccountNotFound, "AccountNotFound"},
	{ErrGoalNotFound, "GoalNotFound"},
	{ErrGoalAlreadyCompleted, "GoalAlreadyCompleted"},
	{ErrConsistencyDrift, "ConsistencyDrift"},
	{ErrSelfContribution, "SelfContribution"},
	{ErrInvalidAccountType, "InvalidAccountType"},
	{ErrSavingsAccountChange, "SavingsAccountChange"},
	{ErrGoalOverfunded, "GoalOverfunded"},
	{ErrContributionNotFound, "ContributionNotFound"},
	{ErrRecurringNotFound, "RecurringNotFound"},
	{ErrEmptyName, "InvalidInput"},
	{ErrNameTooLong, "InvalidInput"},
	{ErrInvalidCategory, "InvalidInput"},
	{ErrMissingAccount, "InvalidInput"},
	{ErrInvalidRepetition, "InvalidInput"},
	{ErrInvalidTargetDate, "InvalidInput"},
	{ErrInvalidDay, "InvalidInput"},
	{ErrInvalidMonth, "InvalidInput"},
	{ErrUnknownAccountType, "InvalidInput"},
	{ErrInvalidDate, "InvalidInput"},
	{ErrInvalidDateRange, "InvalidInput"},
	{ErrMissingGoal, "InvalidInput"},
}

// Kind names the taxonomy entry err belongs to, "Internal" when none.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
