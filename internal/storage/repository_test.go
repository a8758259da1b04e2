package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"risparmi/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "risparmi.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_Accounts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	a := core.Account{ID: "a1", UserID: "u1", Name: "Main", Type: core.AccountChecking, Balance: core.Money{Cents: 1000}, CreatedAt: created}
	if err := repo.CreateAccount(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateAccount(ctx, a); err == nil {
		t.Error("duplicate id should fail")
	}

	got, err := repo.AdjustBalance(ctx, "a1", core.Money{Cents: -1500})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.Balance.Cents != -500 || !got.CreatedAt.Equal(created) || got.Type != core.AccountChecking {
		t.Errorf("account = %+v", got)
	}

	if _, err := repo.GetAccount(ctx, "nope"); !errors.Is(err, core.ErrAccountNotFound) {
		t.Errorf("GetAccount unknown: %v", err)
	}
	if _, err := repo.AdjustBalance(ctx, "nope", core.Money{Cents: 1}); !errors.Is(err, core.ErrAccountNotFound) {
		t.Errorf("AdjustBalance unknown: %v", err)
	}

	list, err := repo.ListAccounts(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Errorf("list = %v, %v", list, err)
	}
}

func TestRepository_Goals(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	g := core.SavingsGoal{
		ID:                  "g1",
		UserID:              "u1",
		Name:                "Car",
		TargetAmount:        core.Money{Cents: 100000},
		CurrentAmount:       core.Money{Cents: 500},
		TargetDate:          core.NewDate(2026, 6, 30),
		MonthlyContribution: core.Money{Cents: 5000},
		Category:            core.CategoryOther,
		SavingsAccountID:    "s1",
		CreatedAt:           time.Now().UTC(),
	}
	if err := repo.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	g.Name = "New car"
	g.CurrentAmount = core.Money{Cents: 999999}
	if err := repo.UpdateGoal(ctx, g); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.AdjustGoalAmount(ctx, "g1", core.Money{Cents: 250})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.Name != "New car" || got.CurrentAmount.Cents != 750 || !got.TargetDate.Equal(g.TargetDate.Time) {
		t.Errorf("goal = %+v", got)
	}

	if err := repo.SetGoalCompleted(ctx, "g1", true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = repo.GetGoal(ctx, "g1")
	if !got.IsCompleted {
		t.Error("goal should be completed")
	}

	if err := repo.DeleteGoal(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetGoal(ctx, "g1"); !errors.Is(err, core.ErrGoalNotFound) {
		t.Errorf("GetGoal after delete: %v", err)
	}
	if err := repo.DeleteGoal(ctx, "g1"); !errors.Is(err, core.ErrGoalNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if _, err := repo.AdjustGoalAmount(ctx, "g1", core.Money{Cents: 1}); !errors.Is(err, core.ErrGoalNotFound) {
		t.Errorf("AdjustGoalAmount unknown: %v", err)
	}
}

func TestRepository_ContributionsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	// same timestamp for c1 and c2; c0 is older by a fraction of a second
	cs := []core.Contribution{
		{ID: "c1", GoalID: "g1", Amount: core.Money{Cents: 100}, Date: core.DateOf(now), FromAccountID: "a1", CreatedAt: now},
		{ID: "c2", GoalID: "g1", Amount: core.Money{Cents: 200}, Date: core.DateOf(now), FromAccountID: "a1", CreatedAt: now},
		{ID: "c0", GoalID: "g1", Amount: core.Money{Cents: 300}, Date: core.DateOf(now), FromAccountID: "a1", CreatedAt: now.Add(-time.Millisecond)},
	}
	for _, c := range cs {
		if err := repo.AddContribution(ctx, c); err != nil {
			t.Fatalf("add %s: %v", c.ID, err)
		}
	}

	list, err := repo.ListContributions(ctx, "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"c0", "c1", "c2"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
		}
	}

	if err := repo.DeleteContribution(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetContribution(ctx, "c1"); !errors.Is(err, core.ErrContributionNotFound) {
		t.Errorf("GetContribution after delete: %v", err)
	}
}

func TestRepository_TransactionLookups(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()

	txns := []core.Transaction{
		{ID: "t1", UserID: "u1", Type: core.TransactionTransfer, Description: "Savings contribution: 100% Vacation", Amount: core.Money{Cents: 100}, AccountID: "a1", ParentTransactionID: "c1", CreatedAt: now},
		{ID: "t2", UserID: "u1", Type: core.TransactionRefund, Description: "Savings refund: 100% vacation", Amount: core.Money{Cents: 100}, AccountID: "s1", ParentTransactionID: "c1", CreatedAt: now},
		{ID: "t3", UserID: "u1", Description: "Savings contribution: 1000 Vacation", Amount: core.Money{Cents: 1}, AccountID: "a1", CreatedAt: now},
		{ID: "t4", UserID: "u2", Description: "Savings contribution: 100% Vacation", Amount: core.Money{Cents: 1}, AccountID: "a9", ParentTransactionID: "c1", CreatedAt: now},
	}
	for _, txn := range txns {
		if err := repo.AddTransaction(ctx, txn); err != nil {
			t.Fatalf("add %s: %v", txn.ID, err)
		}
	}

	byParent, err := repo.TransactionsByParent(ctx, "u1", []string{"c1", "c2"})
	if err != nil || len(byParent) != 2 {
		t.Errorf("by parent = %v, %v", byParent, err)
	}
	if none, err := repo.TransactionsByParent(ctx, "u1", nil); err != nil || len(none) != 0 {
		t.Errorf("by no parents = %v, %v", none, err)
	}

	// % is literal, so "1000 Vacation" does not match
	byName, err := repo.TransactionsByDescription(ctx, "u1", "100% VACATION")
	if err != nil {
		t.Fatalf("by description: %v", err)
	}
	if len(byName) != 2 || byName[0].ID != "t1" || byName[1].ID != "t2" {
		t.Errorf("by description = %v", byName)
	}

	if err := repo.DeleteTransaction(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteTransaction(ctx, "t1"); err == nil {
		t.Error("second delete should fail")
	}
}

func TestRepository_Recurring(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	templates := []core.RecurringContribution{
		{ID: "r1", UserID: "u1", GoalID: "g1", SourceAccountID: "a1", Amount: core.Money{Cents: 100}, Every: core.Monthly, StartDate: core.NewDate(2025, 1, 1), Active: true, CreatedAt: time.Now().UTC()},
		{ID: "r2", UserID: "u1", GoalID: "g1", SourceAccountID: "a1", Amount: core.Money{Cents: 100}, Every: core.Daily, StartDate: core.NewDate(2025, 6, 1), Active: true, CreatedAt: time.Now().UTC()},
		{ID: "r3", UserID: "u1", GoalID: "g1", SourceAccountID: "a1", Amount: core.Money{Cents: 100}, Every: core.Weekly, StartDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 12, 31), Active: true, CreatedAt: time.Now().UTC()},
	}
	for _, rc := range templates {
		if err := repo.CreateRecurring(ctx, rc); err != nil {
			t.Fatalf("create %s: %v", rc.ID, err)
		}
	}

	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	active, err := repo.ListActiveRecurring(ctx, now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "r1" {
		t.Fatalf("active = %v, want only r1", active)
	}

	if err := repo.MarkRecurringExecuted(ctx, "r1", now); err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	if err := repo.SetRecurringActive(ctx, "r1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	all, err := repo.ListRecurring(ctx, "u1")
	if err != nil || len(all) != 3 {
		t.Fatalf("list = %v, %v", all, err)
	}
	if all[0].Active || !all[0].LastExecution.Equal(now) {
		t.Errorf("r1 = %+v", all[0])
	}
	if err := repo.SetRecurringActive(ctx, "nope", true); !errors.Is(err, core.ErrRecurringNotFound) {
		t.Errorf("SetRecurringActive unknown: %v", err)
	}
}
