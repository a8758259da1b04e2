// Package records declares the Record Store the ledger reads and writes
// through. Every call is atomic per record; sequences of writes are made
// consistent by the callers (see services).
package records

import (
	"context"
	"time"

	"risparmi/internal/core"
)

// Ports for outbound adapters.
type (
	AccountStore interface {
		CreateAccount(ctx context.Context, a core.Account) error
		// GetAccount returns core.ErrAccountNotFound for unknown ids.
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
		// AdjustBalance adds delta to the balance and returns the updated account.
		AdjustBalance(ctx context.Context, id string, delta core.Money) (core.Account, error)
	}

	GoalStore interface {
		CreateGoal(ctx context.Context, g core.SavingsGoal) error
		// GetGoal returns core.ErrGoalNotFound for unknown ids.
		GetGoal(ctx context.Context, id string) (core.SavingsGoal, error)
		ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
		// UpdateGoal persists the user-editable fields. CurrentAmount is
		// ignored; it only moves through AdjustGoalAmount.
		UpdateGoal(ctx context.Context, g core.SavingsGoal) error
		AdjustGoalAmount(ctx context.Context, id string, delta core.Money) (core.SavingsGoal, error)
		SetGoalCompleted(ctx context.Context, id string, completed bool) error
		DeleteGoal(ctx context.Context, id string) error
	}

	ContributionStore interface {
		AddContribution(ctx context.Context, c core.Contribution) error
		GetContribution(ctx context.Context, id string) (core.Contribution, error)
		// ListContributions returns a goal's contributions, oldest first.
		ListContributions(ctx context.Context, goalID string) ([]core.Contribution, error)
		DeleteContribution(ctx context.Context, id string) error
	}

	TransactionStore interface {
		AddTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		// TransactionsByParent matches ParentTransactionID exactly.
		TransactionsByParent(ctx context.Context, userID string, parentIDs []string) ([]core.Transaction, error)
		// TransactionsByDescription matches descriptions containing needle,
		// case-insensitively.
		TransactionsByDescription(ctx context.Context, userID, needle string) ([]core.Transaction, error)
	}

	RecurringStore interface {
		CreateRecurring(ctx context.Context, r core.RecurringContribution) error
		ListRecurring(ctx context.Context, userID string) ([]core.RecurringContribution, error)
		// ListActiveRecurring returns active templates whose window contains now.
		ListActiveRecurring(ctx context.Context, now time.Time) ([]core.RecurringContribution, error)
		MarkRecurringExecuted(ctx context.Context, id string, at time.Time) error
		SetRecurringActive(ctx context.Context, id string, active bool) error
	}

	// Store is the whole Record Store.
	Store interface {
		AccountStore
		GoalStore
		ContributionStore
		TransactionStore
		RecurringStore
		Close() error
	}
)
