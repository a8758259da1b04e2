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
	"risparmi/internal/calculator"
	"risparmi/internal/core"
	"risparmi/internal/records"
)

const openingBalanceNote = "Opening balance"

type CreateGoalRequest struct {
	UserID       string
	Name         string
	TargetAmount core.Money
	// InitialAmount is money already sitting unallocated in the savings
	// account that the goal claims at creation.
	InitialAmount core.Money
	TargetDate    core.Date
	// MonthlyContribution is computed from the target date when zero.
	MonthlyContribution   core.Money
	Category              core.GoalCategory
	Color                 string
	Icon                  string
	SavingsAccountID      string
	ContributionAccountID string
}

// GoalUpdate lists the mutable fields; nil leaves a field unchanged.
type GoalUpdate struct {
	Name                  *string
	TargetAmount          *core.Money
	TargetDate            *core.Date
	MonthlyContribution   *core.Money
	Category              *core.GoalCategory
	Color                 *string
	Icon                  *string
	SavingsAccountID      *string
	ContributionAccountID *string
}

type DeleteOptions struct {
	// WithRefund returns the goal amount to the accounts it came from.
	WithRefund bool
	// DeleteTransactions removes contributions and correlated transactions.
	DeleteTransactions bool
}

type DeleteResult struct {
	GoalID string
	// Refunded went back to source accounts.
	Refunded core.Money
	// RetainedInSavings stayed in the savings account: its source is gone
	// or is the savings account itself.
	RetainedInSavings    core.Money
	RefundsApplied       int
	ContributionsRemoved int
	TransactionsRemoved  int
	// RemovalFailures counts history records that could not be removed.
	RemovalFailures int
}

// Forecast describes where a goal stands and where it is heading.
type Forecast struct {
	Goal            core.SavingsGoal
	ProgressPercent float64
	Remaining       core.Money
	// AchievementDate is zero when Never is set.
	AchievementDate time.Time
	Never           bool
	MonthsLeft      int
	// MonthlyNeeded reaches the target by TargetDate at the planning rate.
	MonthlyNeeded core.Money
	OnTrack       bool
}

// GoalManager owns the goal lifecycle: create, update, complete, delete
// with refund, and resync.
type GoalManager struct {
	store        records.Store
	engine       *ContributionEngine
	events       EventPublisher
	planningRate float64
	now          func() time.Time
}

// NewGoalManager shares engine's per-goal guard, so a goal cannot be
// deleted while a contribution to it is running.
func NewGoalManager(store records.Store, engine *ContributionEngine, events EventPublisher, planningRate float64) *GoalManager {
	return &GoalManager{
		store:        store,
		engine:       engine,
		events:       events,
		planningRate: planningRate,
		now:          time.Now,
	}
}

func (m *GoalManager) GetGoal(ctx context.Context, userID, goalID string) (core.SavingsGoal, error) {
	return userGoal(ctx, m.store, userID, goalID)
}

func (m *GoalManager) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	return m.store.ListGoals(ctx, userID)
}

func (m *GoalManager) ListContributions(ctx context.Context, userID, goalID string) ([]core.Contribution, error) {
	if _, err := userGoal(ctx, m.store, userID, goalID); err != nil {
		return nil, err
	}
	return m.store.ListContributions(ctx, goalID)
}

// savingsAccount loads id and checks it can back a goal.
func (m *GoalManager) savingsAccount(ctx context.Context, userID, id string) (core.Account, error) {
	a, err := userAccount(ctx, m.store, userID, id)
	if err != nil {
		return core.Account{}, err
	}
	if !a.IsSavings() {
		return core.Account{}, fmt.Errorf("%w: %s is %s", core.ErrInvalidAccountType, a.Name, a.Type)
	}
	return a, nil
}

// unallocated is the part of a savings account balance no goal claims.
func (m *GoalManager) unallocated(ctx context.Context, account core.Account) (core.Money, error) {
	goals, err := m.store.ListGoals(ctx, account.UserID)
	if err != nil {
		return core.Money{}, fmt.Errorf("list goals: %w", err)
	}
	free := account.Balance
	for _, g := range goals {
		if g.SavingsAccountID == account.ID {
			free = free.Sub(g.CurrentAmount)
		}
	}
	return free, nil
}

// plannedMonthly is the payment reaching target by targetDate at the
// planning rate.
func (m *GoalManager) plannedMonthly(target, current core.Money, targetDate core.Date) (core.Money, int) {
	months := calculator.MonthsUntil(m.now(), targetDate.Time)
	payment := calculator.MonthlyPaymentNeeded(target.Euros(), current.Euros(), m.planningRate, float64(months)/12)
	money, err := core.MoneyFromFloat(payment)
	if err != nil {
		return core.Money{}, months
	}
	return money, months
}

// Create validates and stores a new goal. A non-zero InitialAmount must be
// covered by unallocated funds of the savings account and is recorded as
// an opening-balance contribution from that account.
func (m *GoalManager) Create(ctx context.Context, req CreateGoalRequest) (core.SavingsGoal, error) {
	if req.InitialAmount.IsNegative() {
		return core.SavingsGoal{}, fmt.Errorf("%w: negative initial amount", core.ErrInvalidAmount)
	}
	if err := req.TargetAmount.Validate(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("target amount: %w", err)
	}
	if req.Category == "" {
		req.Category = core.CategoryOther
	}

	savings, err := m.savingsAccount(ctx, req.UserID, req.SavingsAccountID)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("savings account: %w", err)
	}
	if req.ContributionAccountID != "" {
		if req.ContributionAccountID == savings.ID {
			return core.SavingsGoal{}, core.ErrSelfContribution
		}
		if _, err := userAccount(ctx, m.store, req.UserID, req.ContributionAccountID); err != nil {
			return core.SavingsGoal{}, fmt.Errorf("contribution account: %w", err)
		}
	}

	monthly := req.MonthlyContribution
	if monthly.IsZero() {
		if req.TargetDate.IsZero() {
			return core.SavingsGoal{}, fmt.Errorf("%w: monthly contribution or target date required", core.ErrInvalidAmount)
		}
		if req.InitialAmount.Cents >= req.TargetAmount.Cents {
			return core.SavingsGoal{}, fmt.Errorf("%w: target already covered by initial amount, monthly contribution required", core.ErrInvalidAmount)
		}
		monthly, _ = m.plannedMonthly(req.TargetAmount, req.InitialAmount, req.TargetDate)
	}

	now := m.now().UTC()
	goal := core.SavingsGoal{
		ID:                    uuid.NewString(),
		UserID:                req.UserID,
		Name:                  strings.TrimSpace(req.Name),
		TargetAmount:          req.TargetAmount,
		CurrentAmount:         req.InitialAmount,
		TargetDate:            req.TargetDate,
		MonthlyContribution:   monthly,
		Category:              req.Category,
		Color:                 req.Color,
		Icon:                  req.Icon,
		SavingsAccountID:      savings.ID,
		ContributionAccountID: req.ContributionAccountID,
		CreatedAt:             now,
	}
	if err := goal.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	if !req.InitialAmount.IsZero() {
		free, err := m.unallocated(ctx, savings)
		if err != nil {
			return core.SavingsGoal{}, err
		}
		if free.Cents < req.InitialAmount.Cents {
			return core.SavingsGoal{}, fmt.Errorf("%w: %s unallocated in %s, initial amount is %s",
				core.ErrInsufficientBalance, free, savings.Name, req.InitialAmount)
		}
	}

	s := newSaga("create goal")
	steps := []step{{
		name: "store goal",
		do:   func(ctx context.Context) error { return m.store.CreateGoal(ctx, goal) },
		undo: func(ctx context.Context) error { return m.store.DeleteGoal(ctx, goal.ID) },
	}}
	if !req.InitialAmount.IsZero() {
		opening := core.Contribution{
			ID:            uuid.NewString(),
			GoalID:        goal.ID,
			Amount:        req.InitialAmount,
			Date:          core.DateOf(now),
			FromAccountID: savings.ID,
			Note:          openingBalanceNote,
			CreatedAt:     now,
		}
		steps = append(steps, step{
			name: "record opening balance",
			do:   func(ctx context.Context) error { return m.store.AddContribution(ctx, opening) },
		})
	}
	for _, st := range steps {
		if err := s.run(ctx, st); err != nil {
			return core.SavingsGoal{}, s.fail(ctx, err)
		}
	}

	slog.InfoContext(ctx, "Goal created",
		"goal_id", goal.ID,
		"name", goal.Name,
		"target_cents", goal.TargetAmount.Cents,
		"initial_cents", goal.CurrentAmount.Cents,
		"monthly_cents", goal.MonthlyContribution.Cents)

	event := amqp.NewLedgerEvent(amqp.EventGoalCreated, req.UserID, goal.ID)
	event.AccountID = savings.ID
	event.AmountCents = goal.CurrentAmount.Cents
	publishEvent(ctx, m.events, event)

	return goal, nil
}

// Update applies the non-nil fields of u. The savings account can only be
// switched while the goal holds nothing, to another savings account.
func (m *GoalManager) Update(ctx context.Context, userID, goalID string, u GoalUpdate) (core.SavingsGoal, error) {
	release, err := m.engine.lockGoal(goalID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	defer release()

	goal, err := userGoal(ctx, m.store, userID, goalID)
	if err != nil {
		return core.SavingsGoal{}, err
	}

	if u.Name != nil {
		goal.Name = strings.TrimSpace(*u.Name)
	}
	if u.TargetAmount != nil {
		goal.TargetAmount = *u.TargetAmount
	}
	if u.TargetDate != nil {
		goal.TargetDate = *u.TargetDate
	}
	if u.MonthlyContribution != nil {
		goal.MonthlyContribution = *u.MonthlyContribution
	}
	if u.Category != nil {
		goal.Category = *u.Category
	}
	if u.Color != nil {
		goal.Color = *u.Color
	}
	if u.Icon != nil {
		goal.Icon = *u.Icon
	}
	if u.SavingsAccountID != nil && *u.SavingsAccountID != goal.SavingsAccountID {
		if !goal.CurrentAmount.IsZero() {
			return core.SavingsGoal{}, fmt.Errorf("%w: %s held, resync or empty the goal first",
				core.ErrSavingsAccountChange, goal.CurrentAmount)
		}
		if _, err := m.savingsAccount(ctx, userID, *u.SavingsAccountID); err != nil {
			return core.SavingsGoal{}, fmt.Errorf("savings account: %w", err)
		}
		goal.SavingsAccountID = *u.SavingsAccountID
	}
	if u.ContributionAccountID != nil {
		id := *u.ContributionAccountID
		if id != "" {
			if id == goal.SavingsAccountID {
				return core.SavingsGoal{}, core.ErrSelfContribution
			}
			if _, err := userAccount(ctx, m.store, userID, id); err != nil {
				return core.SavingsGoal{}, fmt.Errorf("contribution account: %w", err)
			}
		}
		goal.ContributionAccountID = id
	}

	if err := goal.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	if err := m.store.UpdateGoal(ctx, goal); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal updated", "goal_id", goal.ID)
	return goal, nil
}

// MarkCompleted sets the completed flag. Completing a completed goal is a
// no-op.
func (m *GoalManager) MarkCompleted(ctx context.Context, userID, goalID string) (core.SavingsGoal, error) {
	release, err := m.engine.lockGoal(goalID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	defer release()

	goal, err := userGoal(ctx, m.store, userID, goalID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if goal.IsCompleted {
		return goal, nil
	}
	if err := m.store.SetGoalCompleted(ctx, goalID, true); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("mark completed: %w", err)
	}
	goal.IsCompleted = true

	slog.InfoContext(ctx, "Goal completed",
		"goal_id", goal.ID,
		"current_cents", goal.CurrentAmount.Cents,
		"target_cents", goal.TargetAmount.Cents)
	publishEvent(ctx, m.events, amqp.NewLedgerEvent(amqp.EventGoalCompleted, userID, goal.ID))

	return goal, nil
}

// RelatedTransactions lists the transactions correlated to a goal, for
// confirmation before a destructive delete.
func (m *GoalManager) RelatedTransactions(ctx context.Context, userID, goalID string) ([]core.Transaction, error) {
	goal, err := userGoal(ctx, m.store, userID, goalID)
	if err != nil {
		return nil, err
	}
	contributions, err := m.store.ListContributions(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return Correlate(ctx, m.store, userID, goal, contributions)
}

func (m *GoalManager) RelatedTransactionsCount(ctx context.Context, userID, goalID string) (int, error) {
	txns, err := m.RelatedTransactions(ctx, userID, goalID)
	return len(txns), err
}

// refund is one planned reversal of a contribution.
type refund struct {
	contribution core.Contribution
	accountID    string
	amount       core.Money
}

// planRefunds walks contributions newest first until the goal amount is
// covered. Only the goal amount is reversed.
func (m *GoalManager) planRefunds(ctx context.Context, userID string, goal core.SavingsGoal, contributions []core.Contribution) ([]refund, core.Money, error) {
	left := goal.CurrentAmount
	var plan []refund
	var retained core.Money
	for i := len(contributions) - 1; i >= 0 && left.Cents > 0; i-- {
		c := contributions[i]
		amount := c.Amount.Min(left)
		left = left.Sub(amount)

		if c.FromAccountID == goal.SavingsAccountID {
			retained = retained.Add(amount)
			continue
		}
		_, err := userAccount(ctx, m.store, userID, c.FromAccountID)
		if errors.Is(err, core.ErrAccountNotFound) {
			retained = retained.Add(amount)
			continue
		}
		if err != nil {
			return nil, core.Money{}, fmt.Errorf("source account: %w", err)
		}
		plan = append(plan, refund{contribution: c, accountID: c.FromAccountID, amount: amount})
	}
	// goal amount not backed by any contribution stays in savings
	return plan, retained.Add(left), nil
}

// Delete removes a goal. With a refund, every planned reversal and the
// goal removal land together or not at all, so a goal that survives a
// failure still holds the sum of its contributions. History removal is
// best effort and runs once the goal is gone.
func (m *GoalManager) Delete(ctx context.Context, userID, goalID string, opts DeleteOptions) (DeleteResult, error) {
	release, err := m.engine.lockGoal(goalID)
	if err != nil {
		return DeleteResult{}, err
	}
	defer release()

	goal, err := userGoal(ctx, m.store, userID, goalID)
	if err != nil {
		return DeleteResult{}, err
	}
	contributions, err := m.store.ListContributions(ctx, goalID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("list contributions: %w", err)
	}

	result := DeleteResult{GoalID: goalID}
	s := newSaga("delete goal")
	if opts.WithRefund && goal.CurrentAmount.Cents > 0 {
		if err := m.refundGoal(ctx, s, userID, goal, contributions, &result); err != nil {
			return DeleteResult{GoalID: goalID}, err
		}
	}

	err = s.run(ctx, step{
		name: "remove goal",
		do:   func(ctx context.Context) error { return m.store.DeleteGoal(ctx, goalID) },
		undo: func(ctx context.Context) error { return m.store.CreateGoal(ctx, goal) },
	})
	if err != nil {
		slog.ErrorContext(ctx, "Goal removal failed",
			"goal_id", goalID,
			"refunds_applied", result.RefundsApplied,
			"error", err)
		return DeleteResult{GoalID: goalID}, s.fail(ctx, err)
	}
	m.engine.guard.forget(goalID)

	if opts.DeleteTransactions {
		m.removeHistory(ctx, userID, goal, contributions, &result)
	}

	slog.InfoContext(ctx, "Goal deleted",
		"goal_id", goalID,
		"refunded_cents", result.Refunded.Cents,
		"retained_cents", result.RetainedInSavings.Cents,
		"contributions_removed", result.ContributionsRemoved,
		"transactions_removed", result.TransactionsRemoved,
		"removal_failures", result.RemovalFailures)

	event := amqp.NewLedgerEvent(amqp.EventGoalDeleted, userID, goalID)
	event.AmountCents = result.Refunded.Cents
	publishEvent(ctx, m.events, event)

	return result, nil
}

// refundGoal runs the planned reversals as steps of s. The goal amount is
// left alone; removing the goal settles it.
func (m *GoalManager) refundGoal(ctx context.Context, s *saga, userID string, goal core.SavingsGoal, contributions []core.Contribution, result *DeleteResult) error {
	savings, err := userAccount(ctx, m.store, userID, goal.SavingsAccountID)
	if err != nil {
		return fmt.Errorf("savings account: %w", err)
	}
	plan, retained, err := m.planRefunds(ctx, userID, goal, contributions)
	if err != nil {
		return err
	}

	var total core.Money
	for _, r := range plan {
		total = total.Add(r.amount)
	}
	if savings.Balance.Cents < total.Cents {
		return fmt.Errorf("%w: savings account holds %s, refund needs %s",
			core.ErrInsufficientBalance, savings.Balance, total)
	}

	now := m.now().UTC()
	applied := 0
	for _, r := range plan {
		txn := core.Transaction{
			ID:                  uuid.NewString(),
			UserID:              userID,
			Type:                core.TransactionRefund,
			Description:         refundDescription(goal.Name),
			Date:                core.DateOf(now),
			Amount:              r.amount,
			AccountID:           savings.ID,
			ToAccountID:         r.accountID,
			ParentTransactionID: r.contribution.ID,
			CreatedAt:           now,
		}
		steps := []step{
			transferStep("debit savings", m.store, savings.ID, r.amount.Neg()),
			transferStep("credit "+r.accountID, m.store, r.accountID, r.amount),
			{
				name: "record refund",
				do:   func(ctx context.Context) error { return m.store.AddTransaction(ctx, txn) },
				undo: func(ctx context.Context) error { return m.store.DeleteTransaction(ctx, txn.ID) },
			},
		}
		for _, st := range steps {
			if err := s.run(ctx, st); err != nil {
				return m.abandonRefund(ctx, s, goal.ID, len(plan), applied, err)
			}
		}
		applied++
	}

	result.Refunded = total
	result.RetainedInSavings = retained
	result.RefundsApplied = applied
	return nil
}

// abandonRefund rolls back a failed refund and reports how far it got.
func (m *GoalManager) abandonRefund(ctx context.Context, s *saga, goalID string, attempted, succeeded int, cause error) error {
	perr := &core.PartialRefundError{
		GoalID:     goalID,
		Attempted:  attempted,
		Succeeded:  succeeded,
		RolledBack: true,
		Err:        cause,
	}
	if cerr := s.compensate(ctx, cause); cerr != nil {
		perr.RolledBack = false
		perr.Err = cerr
	}
	slog.ErrorContext(ctx, "Refund failed",
		"goal_id", goalID,
		"attempted", attempted,
		"succeeded", succeeded,
		"rolled_back", perr.RolledBack,
		"error", cause)
	return perr
}

func (m *GoalManager) removeHistory(ctx context.Context, userID string, goal core.SavingsGoal, contributions []core.Contribution, result *DeleteResult) {
	txns, err := Correlate(ctx, m.store, userID, goal, contributions)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to correlate transactions", "goal_id", goal.ID, "error", err)
		result.RemovalFailures++
	}
	for _, t := range txns {
		if err := m.store.DeleteTransaction(ctx, t.ID); err != nil {
			slog.WarnContext(ctx, "Failed to delete transaction", "transaction_id", t.ID, "error", err)
			result.RemovalFailures++
			continue
		}
		result.TransactionsRemoved++
	}
	for _, c := range contributions {
		if err := m.store.DeleteContribution(ctx, c.ID); err != nil {
			slog.WarnContext(ctx, "Failed to delete contribution", "contribution_id", c.ID, "error", err)
			result.RemovalFailures++
			continue
		}
		result.ContributionsRemoved++
	}
}

// Forecast projects the goal from its current amount and monthly plan.
func (m *GoalManager) Forecast(ctx context.Context, userID, goalID string) (Forecast, error) {
	goal, err := userGoal(ctx, m.store, userID, goalID)
	if err != nil {
		return Forecast{}, err
	}
	now := m.now()
	f := Forecast{
		Goal:            goal,
		ProgressPercent: goal.ProgressPercent(),
		Remaining:       goal.Remaining(),
	}

	date, err := calculator.AchievementDate(goal.TargetAmount.Euros(), goal.CurrentAmount.Euros(), goal.MonthlyContribution.Euros(), now)
	switch {
	case errors.Is(err, calculator.ErrNeverReached):
		f.Never = true
	case err != nil:
		return Forecast{}, err
	default:
		f.AchievementDate = date
	}

	if goal.TargetDate.IsZero() {
		f.OnTrack = !f.Never
		return f, nil
	}
	f.MonthlyNeeded, f.MonthsLeft = m.plannedMonthly(goal.TargetAmount, goal.CurrentAmount, goal.TargetDate)
	f.OnTrack = !f.Never && !core.DateOf(f.AchievementDate).After(goal.TargetDate.Time)
	return f, nil
}
