package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"risparmi/internal/amqp"
	"risparmi/internal/core"
)

// GoalDrift is a goal whose stored amount differs from its contributions.
type GoalDrift struct {
	GoalID     string
	Name       string
	Recorded   core.Money
	Recomputed core.Money
}

// AccountDrift is a savings account whose balance cannot cover the goals
// it backs.
type AccountDrift struct {
	AccountID string
	Recorded  core.Money
	Expected  core.Money
}

type ResyncReport struct {
	UserID       string
	GoalsChecked int
	Goals        []GoalDrift
	Accounts     []AccountDrift
	// MissingAccounts back goals but no longer exist; they are reported,
	// never created.
	MissingAccounts []string
	Applied         bool
}

func (r ResyncReport) HasDrift() bool {
	return len(r.Goals) > 0 || len(r.Accounts) > 0 || len(r.MissingAccounts) > 0
}

// Err wraps core.ErrConsistencyDrift when the report found drift.
func (r ResyncReport) Err() error {
	if !r.HasDrift() {
		return nil
	}
	return fmt.Errorf("%w: %d goals, %d accounts, %d missing accounts",
		core.ErrConsistencyDrift, len(r.Goals), len(r.Accounts), len(r.MissingAccounts))
}

// reconcile recomputes every goal amount from its contributions. A savings
// account must hold at least the recomputed amounts of the goals it backs;
// anything above that is non-goal money and is left alone, so a balance is
// never lowered. Running it on its own output changes nothing.
func (m *GoalManager) reconcile(ctx context.Context, userID string) (ResyncReport, error) {
	report := ResyncReport{UserID: userID}

	goals, err := m.store.ListGoals(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("list goals: %w", err)
	}
	report.GoalsChecked = len(goals)

	var order []string
	backed := make(map[string]core.Money)

	for _, g := range goals {
		contributions, err := m.store.ListContributions(ctx, g.ID)
		if err != nil {
			return report, fmt.Errorf("list contributions of %s: %w", g.ID, err)
		}
		var sum core.Money
		for _, c := range contributions {
			sum = sum.Add(c.Amount)
		}
		if sum != g.CurrentAmount {
			report.Goals = append(report.Goals, GoalDrift{
				GoalID:     g.ID,
				Name:       g.Name,
				Recorded:   g.CurrentAmount,
				Recomputed: sum,
			})
		}

		if _, ok := backed[g.SavingsAccountID]; !ok {
			order = append(order, g.SavingsAccountID)
		}
		backed[g.SavingsAccountID] = backed[g.SavingsAccountID].Add(sum)
	}

	for _, id := range order {
		account, err := m.store.GetAccount(ctx, id)
		if errors.Is(err, core.ErrAccountNotFound) {
			report.MissingAccounts = append(report.MissingAccounts, id)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("get account %s: %w", id, err)
		}
		if need := backed[id]; account.Balance.Cents < need.Cents {
			report.Accounts = append(report.Accounts, AccountDrift{
				AccountID: id,
				Recorded:  account.Balance,
				Expected:  need,
			})
		}
	}
	return report, nil
}

// DetectDrift reports drift without changing anything.
func (m *GoalManager) DetectDrift(ctx context.Context, userID string) (ResyncReport, error) {
	report, err := m.reconcile(ctx, userID)
	if err != nil {
		return report, err
	}
	if report.HasDrift() {
		slog.WarnContext(ctx, "Ledger drift detected",
			"user_id", userID,
			"goals", len(report.Goals),
			"accounts", len(report.Accounts),
			"missing_accounts", len(report.MissingAccounts))
	}
	return report, nil
}

// EmergencyResync repairs the drift DetectDrift reports. It holds every
// goal of the user for its whole run and fails with
// core.ErrConcurrentOperation if any of them is busy.
func (m *GoalManager) EmergencyResync(ctx context.Context, userID string) (ResyncReport, error) {
	goals, err := m.store.ListGoals(ctx, userID)
	if err != nil {
		return ResyncReport{UserID: userID}, fmt.Errorf("list goals: %w", err)
	}
	for _, g := range goals {
		release, err := m.engine.lockGoal(g.ID)
		if err != nil {
			return ResyncReport{UserID: userID}, err
		}
		defer release()
	}

	report, err := m.reconcile(ctx, userID)
	if err != nil {
		return report, err
	}

	for _, d := range report.Goals {
		if _, err := m.store.AdjustGoalAmount(ctx, d.GoalID, d.Recomputed.Sub(d.Recorded)); err != nil {
			return report, fmt.Errorf("repair goal %s: %w", d.GoalID, err)
		}
	}
	for _, d := range report.Accounts {
		if _, err := m.store.AdjustBalance(ctx, d.AccountID, d.Expected.Sub(d.Recorded)); err != nil {
			return report, fmt.Errorf("repair account %s: %w", d.AccountID, err)
		}
	}
	report.Applied = true

	slog.InfoContext(ctx, "Ledger resynced",
		"user_id", userID,
		"goals_checked", report.GoalsChecked,
		"goals_repaired", len(report.Goals),
		"accounts_repaired", len(report.Accounts))

	if len(report.Goals) > 0 || len(report.Accounts) > 0 {
		publishEvent(ctx, m.events, amqp.NewLedgerEvent(amqp.EventLedgerResynced, userID, ""))
	}
	return report, nil
}
