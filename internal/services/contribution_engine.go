package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"risparmi/internal/amqp"
	"risparmi/internal/core"
	"risparmi/internal/records"
)

// OverfundingPolicy decides what happens to a contribution that would
// take a goal past its target.
type OverfundingPolicy string

const (
	OverfundAllow  OverfundingPolicy = "allow"
	OverfundCap    OverfundingPolicy = "cap"
	OverfundReject OverfundingPolicy = "reject"
)

func (p OverfundingPolicy) IsValid() bool {
	switch p {
	case OverfundAllow, OverfundCap, OverfundReject:
		return true
	}
	return false
}

type ContributeRequest struct {
	UserID string
	GoalID string
	Amount core.Money
	// SourceAccountID defaults to the goal's contribution account.
	SourceAccountID string
	Note            string
	// Date defaults to today.
	Date core.Date
}

type ContributionResult struct {
	Contribution core.Contribution
	Transaction  core.Transaction
	Goal         core.SavingsGoal
	// Capped is set when the overfunding policy reduced the amount.
	Capped       bool
	WillComplete bool
	Message      string
}

type DeleteContributionResult struct {
	Contribution        core.Contribution
	Goal                core.SavingsGoal
	Refunded            core.Money
	RetainedInSavings   core.Money
	TransactionsRemoved int
}

// ContributionEngine moves money from a source account into a goal.
type ContributionEngine struct {
	store  records.Store
	events EventPublisher
	guard  *goalGuard
	policy OverfundingPolicy
	now    func() time.Time
}

func NewContributionEngine(store records.Store, events EventPublisher, policy OverfundingPolicy) *ContributionEngine {
	if !policy.IsValid() {
		policy = OverfundAllow
	}
	return &ContributionEngine{
		store:  store,
		events: events,
		guard:  newGoalGuard(),
		policy: policy,
		now:    time.Now,
	}
}

// lockGoal turns away a second operation on goalID while one is running.
func (e *ContributionEngine) lockGoal(goalID string) (func(), error) {
	release, ok := e.guard.tryAcquire(goalID)
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", goalID, core.ErrConcurrentOperation)
	}
	return release, nil
}

// userGoal loads a goal owned by userID; other users' goals do not exist.
func userGoal(ctx context.Context, store records.GoalStore, userID, goalID string) (core.SavingsGoal, error) {
	g, err := store.GetGoal(ctx, goalID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if g.UserID != userID {
		return core.SavingsGoal{}, fmt.Errorf("%w: %s", core.ErrGoalNotFound, goalID)
	}
	return g, nil
}

func userAccount(ctx context.Context, store records.AccountStore, userID, accountID string) (core.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return core.Account{}, fmt.Errorf("%w: no account id", core.ErrAccountNotFound)
	}
	a, err := store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	if a.UserID != userID {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	return a, nil
}

// Contribute transfers req.Amount from the source account to the goal's
// savings account. Every check runs before the first write; a failed write
// rolls back the ones before it. The goal is never marked completed here,
// WillComplete only reports that it is now eligible.
func (e *ContributionEngine) Contribute(ctx context.Context, req ContributeRequest) (ContributionResult, error) {
	if err := req.Amount.Validate(); err != nil {
		return ContributionResult{}, err
	}

	release, err := e.lockGoal(req.GoalID)
	if err != nil {
		return ContributionResult{}, err
	}
	defer release()

	goal, err := userGoal(ctx, e.store, req.UserID, req.GoalID)
	if err != nil {
		return ContributionResult{}, err
	}
	if goal.IsCompleted {
		return ContributionResult{}, fmt.Errorf("goal %s: %w", goal.ID, core.ErrGoalAlreadyCompleted)
	}

	sourceID := req.SourceAccountID
	if sourceID == "" {
		sourceID = goal.ContributionAccountID
	}
	if sourceID == goal.SavingsAccountID {
		return ContributionResult{}, core.ErrSelfContribution
	}
	source, err := userAccount(ctx, e.store, req.UserID, sourceID)
	if err != nil {
		return ContributionResult{}, fmt.Errorf("source account: %w", err)
	}
	if _, err := userAccount(ctx, e.store, req.UserID, goal.SavingsAccountID); err != nil {
		return ContributionResult{}, fmt.Errorf("savings account: %w", err)
	}

	amount, capped, err := e.applyPolicy(goal, req.Amount)
	if err != nil {
		return ContributionResult{}, err
	}
	if source.Balance.Cents < amount.Cents {
		return ContributionResult{}, fmt.Errorf("%w: %s has %s, needs %s",
			core.ErrInsufficientBalance, source.Name, source.Balance, amount)
	}

	now := e.now().UTC()
	date := req.Date
	if date.IsZero() {
		date = core.DateOf(now)
	}
	contribution := core.Contribution{
		ID:            uuid.NewString(),
		GoalID:        goal.ID,
		Amount:        amount,
		Date:          date,
		FromAccountID: source.ID,
		Note:          req.Note,
		CreatedAt:     now,
	}
	txn := core.Transaction{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		Type:                core.TransactionTransfer,
		Description:         contributionDescription(goal.Name),
		Date:                date,
		Amount:              amount,
		AccountID:           source.ID,
		ToAccountID:         goal.SavingsAccountID,
		ParentTransactionID: contribution.ID,
		CreatedAt:           now,
	}

	var updated core.SavingsGoal
	s := newSaga("contribute")
	steps := []step{
		transferStep("debit source", e.store, source.ID, amount.Neg()),
		transferStep("credit savings", e.store, goal.SavingsAccountID, amount),
		{
			name: "increment goal",
			do: func(ctx context.Context) error {
				g, err := e.store.AdjustGoalAmount(ctx, goal.ID, amount)
				updated = g
				return err
			},
			undo: func(ctx context.Context) error {
				_, err := e.store.AdjustGoalAmount(ctx, goal.ID, amount.Neg())
				return err
			},
		},
		{
			name: "record contribution",
			do:   func(ctx context.Context) error { return e.store.AddContribution(ctx, contribution) },
			undo: func(ctx context.Context) error { return e.store.DeleteContribution(ctx, contribution.ID) },
		},
		{
			name: "record transaction",
			do:   func(ctx context.Context) error { return e.store.AddTransaction(ctx, txn) },
		},
	}
	for _, st := range steps {
		if err := s.run(ctx, st); err != nil {
			return ContributionResult{}, s.fail(ctx, err)
		}
	}

	result := ContributionResult{
		Contribution: contribution,
		Transaction:  txn,
		Goal:         updated,
		Capped:       capped,
		WillComplete: updated.Reached(),
		Message:      fmt.Sprintf("Added %s to %s", amount, goal.Name),
	}
	if result.WillComplete {
		result.Message += ", target reached: mark the goal completed when ready"
	}

	slog.InfoContext(ctx, "Contribution applied",
		"goal_id", goal.ID,
		"contribution_id", contribution.ID,
		"account_id", source.ID,
		"amount_cents", amount.Cents,
		"current_cents", updated.CurrentAmount.Cents,
		"will_complete", result.WillComplete)

	event := amqp.NewLedgerEvent(amqp.EventContributionCreated, req.UserID, goal.ID)
	event.ContributionID = contribution.ID
	event.AccountID = source.ID
	event.AmountCents = amount.Cents
	publishEvent(ctx, e.events, event)

	return result, nil
}

func (e *ContributionEngine) applyPolicy(goal core.SavingsGoal, amount core.Money) (core.Money, bool, error) {
	remaining := goal.Remaining()
	if amount.Cents <= remaining.Cents {
		return amount, false, nil
	}
	switch e.policy {
	case OverfundReject:
		return core.Money{}, false, fmt.Errorf("%w: %s remaining", core.ErrGoalOverfunded, remaining)
	case OverfundCap:
		if remaining.IsZero() {
			return core.Money{}, false, fmt.Errorf("%w: target already reached", core.ErrGoalOverfunded)
		}
		return remaining, true, nil
	default:
		return amount, false, nil
	}
}

// transferStep adjusts one account balance and undoes it with the
// opposite delta.
func transferStep(name string, store records.AccountStore, accountID string, delta core.Money) step {
	return step{
		name: name,
		do: func(ctx context.Context) error {
			_, err := store.AdjustBalance(ctx, accountID, delta)
			return err
		},
		undo: func(ctx context.Context) error {
			_, err := store.AdjustBalance(ctx, accountID, delta.Neg())
			return err
		},
	}
}

// DeleteContribution removes one contribution and reverses it: the goal
// amount drops and the money goes back to the source account. When the
// source is gone, or is the savings account itself, the money stays in
// the savings account as unallocated funds.
func (e *ContributionEngine) DeleteContribution(ctx context.Context, userID, contributionID string) (DeleteContributionResult, error) {
	c, err := e.store.GetContribution(ctx, contributionID)
	if err != nil {
		return DeleteContributionResult{}, err
	}

	release, err := e.lockGoal(c.GoalID)
	if err != nil {
		return DeleteContributionResult{}, err
	}
	defer release()

	goal, err := userGoal(ctx, e.store, userID, c.GoalID)
	if err != nil {
		return DeleteContributionResult{}, err
	}
	savings, err := userAccount(ctx, e.store, userID, goal.SavingsAccountID)
	if err != nil {
		return DeleteContributionResult{}, fmt.Errorf("savings account: %w", err)
	}

	// never take the goal below zero, even on drifted data
	reverse := c.Amount.Min(goal.CurrentAmount)
	if reverse.IsNegative() {
		reverse = core.Money{}
	}

	refundTo := ""
	if c.FromAccountID != savings.ID {
		switch _, err := userAccount(ctx, e.store, userID, c.FromAccountID); {
		case err == nil:
			refundTo = c.FromAccountID
		case errors.Is(err, core.ErrAccountNotFound):
		default:
			return DeleteContributionResult{}, fmt.Errorf("source account: %w", err)
		}
	}
	if refundTo != "" && savings.Balance.Cents < reverse.Cents {
		return DeleteContributionResult{}, fmt.Errorf("%w: savings account holds %s, refund needs %s",
			core.ErrInsufficientBalance, savings.Balance, reverse)
	}

	linked, err := e.store.TransactionsByParent(ctx, userID, []string{c.ID})
	if err != nil {
		return DeleteContributionResult{}, fmt.Errorf("linked transactions: %w", err)
	}

	result := DeleteContributionResult{Contribution: c}
	s := newSaga("delete contribution")
	var steps []step
	if refundTo != "" && !reverse.IsZero() {
		steps = append(steps,
			transferStep("debit savings", e.store, savings.ID, reverse.Neg()),
			transferStep("credit source", e.store, refundTo, reverse))
		result.Refunded = reverse
	} else {
		result.RetainedInSavings = reverse
	}
	if !reverse.IsZero() {
		steps = append(steps, step{
			name: "decrement goal",
			do: func(ctx context.Context) error {
				g, err := e.store.AdjustGoalAmount(ctx, goal.ID, reverse.Neg())
				result.Goal = g
				return err
			},
			undo: func(ctx context.Context) error {
				_, err := e.store.AdjustGoalAmount(ctx, goal.ID, reverse)
				return err
			},
		})
	}
	for _, t := range linked {
		steps = append(steps, step{
			name: "delete transaction " + t.ID,
			do:   func(ctx context.Context) error { return e.store.DeleteTransaction(ctx, t.ID) },
			undo: func(ctx context.Context) error { return e.store.AddTransaction(ctx, t) },
		})
	}
	steps = append(steps, step{
		name: "delete contribution",
		do:   func(ctx context.Context) error { return e.store.DeleteContribution(ctx, c.ID) },
	})

	for _, st := range steps {
		if err := s.run(ctx, st); err != nil {
			return DeleteContributionResult{}, s.fail(ctx, err)
		}
	}
	result.TransactionsRemoved = len(linked)
	if result.Goal.ID == "" {
		result.Goal = goal
	}

	slog.InfoContext(ctx, "Contribution deleted",
		"goal_id", goal.ID,
		"contribution_id", c.ID,
		"refunded_cents", result.Refunded.Cents,
		"retained_cents", result.RetainedInSavings.Cents)

	event := amqp.NewLedgerEvent(amqp.EventContributionDeleted, userID, goal.ID)
	event.ContributionID = c.ID
	event.AccountID = refundTo
	event.AmountCents = reverse.Cents
	publishEvent(ctx, e.events, event)

	return result, nil
}
