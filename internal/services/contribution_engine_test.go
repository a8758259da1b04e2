package services

import (
	"errors"
	"slices"
	"testing"

	"risparmi/internal/amqp"
	"risparmi/internal/core"
)

func TestContributeMovesMoney(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Vacation", 120000)
	checkingBefore := f.balance(t, f.checking.ID)
	savingsBefore := f.balance(t, f.savings.ID)

	res := f.contribute(t, g.ID, f.checking.ID, 2550)

	if got := f.current(t, g.ID); got != 2550 {
		t.Errorf("current = %d, want 2550", got)
	}
	if got := f.balance(t, f.checking.ID); got != checkingBefore-2550 {
		t.Errorf("checking = %d, want %d", got, checkingBefore-2550)
	}
	if got := f.balance(t, f.savings.ID); got != savingsBefore+2550 {
		t.Errorf("savings = %d, want %d", got, savingsBefore+2550)
	}

	cs := f.contributions(t, g.ID)
	if len(cs) != 1 || cs[0].ID != res.Contribution.ID || cs[0].FromAccountID != f.checking.ID {
		t.Fatalf("contributions = %+v", cs)
	}
	txns := f.related(t, g)
	if len(txns) != 1 {
		t.Fatalf("related transactions = %d, want 1", len(txns))
	}
	txn := txns[0]
	if txn.ParentTransactionID != res.Contribution.ID || txn.AccountID != f.checking.ID || txn.ToAccountID != f.savings.ID {
		t.Errorf("transaction = %+v", txn)
	}
	if txn.Amount.Cents != 2550 || txn.Type != core.TransactionTransfer {
		t.Errorf("transaction amount/type = %d/%s", txn.Amount.Cents, txn.Type)
	}
	if res.WillComplete {
		t.Error("WillComplete should be false below target")
	}
	if !slices.Contains(f.events.types(), amqp.EventContributionCreated) {
		t.Errorf("events = %v, want %s", f.events.types(), amqp.EventContributionCreated)
	}
	f.assertConsistent(t)
}

func TestContributeDefaultsToGoalContributionAccount(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Bike", 50000)

	res := f.contribute(t, g.ID, "", 1000)

	if res.Contribution.FromAccountID != f.checking.ID {
		t.Errorf("source = %s, want %s", res.Contribution.FromAccountID, f.checking.ID)
	}
}

func TestContributeValidation(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Vacation", 120000)
	done := f.goal(t, "Done", 1000)
	if _, err := f.manager.MarkCompleted(f.ctx, testUser, done.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	tests := []struct {
		name    string
		req     ContributeRequest
		wantErr error
	}{
		{
			name:    "zero amount",
			req:     ContributeRequest{UserID: testUser, GoalID: g.ID, SourceAccountID: f.checking.ID},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     ContributeRequest{UserID: testUser, GoalID: g.ID, SourceAccountID: f.checking.ID, Amount: core.Money{Cents: -5}},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "unknown goal",
			req:     ContributeRequest{UserID: testUser, GoalID: "nope", SourceAccountID: f.checking.ID, Amount: core.Money{Cents: 100}},
			wantErr: core.ErrGoalNotFound,
		},
		{
			name:    "goal of another user",
			req:     ContributeRequest{UserID: "intruder", GoalID: g.ID, SourceAccountID: f.checking.ID, Amount: core.Money{Cents: 100}},
			wantErr: core.ErrGoalNotFound,
		},
		{
			name:    "unknown source account",
			req:     ContributeRequest{UserID: testUser, GoalID: g.ID, SourceAccountID: "nope", Amount: core.Money{Cents: 100}},
			wantErr: core.ErrAccountNotFound,
		},
		{
			name:    "self contribution",
			req:     ContributeRequest{UserID: testUser, GoalID: g.ID, SourceAccountID: f.savings.ID, Amount: core.Money{Cents: 100}},
			wantErr: core.ErrSelfContribution,
		},
		{
			name:    "completed goal",
			req:     ContributeRequest{UserID: testUser, GoalID: done.ID, SourceAccountID: f.checking.ID, Amount: core.Money{Cents: 100}},
			wantErr: core.ErrGoalAlreadyCompleted,
		},
		{
			name:    "insufficient balance",
			req:     ContributeRequest{UserID: testUser, GoalID: g.ID, SourceAccountID: f.backup.ID, Amount: core.Money{Cents: 200001}},
			wantErr: core.ErrInsufficientBalance,
		},
	}

	total := f.total(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Contribute(f.ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := f.total(t); got != total {
				t.Errorf("total balance changed: %d -> %d", total, got)
			}
			if got := f.current(t, g.ID); got != 0 {
				t.Errorf("goal current = %d, want 0", got)
			}
			if got := len(f.contributions(t, g.ID)); got != 0 {
				t.Errorf("contributions = %d, want 0", got)
			}
		})
	}
}

func TestContributeInsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Car", 1000000)
	checking := f.balance(t, f.checking.ID)
	savings := f.balance(t, f.savings.ID)

	_, err := f.engine.Contribute(f.ctx, ContributeRequest{
		UserID:          testUser,
		GoalID:          g.ID,
		Amount:          core.Money{Cents: checking + 1},
		SourceAccountID: f.checking.ID,
	})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if core.Kind(err) != "InsufficientBalance" {
		t.Errorf("Kind = %s", core.Kind(err))
	}
	if f.balance(t, f.checking.ID) != checking || f.balance(t, f.savings.ID) != savings || f.current(t, g.ID) != 0 {
		t.Error("state changed after rejected contribution")
	}
}

func TestContributeSixTimesThenComplete(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Laptop", 120000)

	for i := 0; i < 6; i++ {
		res := f.contribute(t, g.ID, f.checking.ID, 10000)
		if res.WillComplete || res.Goal.IsCompleted {
			t.Fatalf("contribution %d: WillComplete=%v IsCompleted=%v", i+1, res.WillComplete, res.Goal.IsCompleted)
		}
	}
	if got := f.current(t, g.ID); got != 60000 {
		t.Fatalf("current = %d, want 60000", got)
	}
	if got := len(f.contributions(t, g.ID)); got != 6 {
		t.Fatalf("contributions = %d, want 6", got)
	}

	res := f.contribute(t, g.ID, f.checking.ID, 60000)
	if !res.WillComplete {
		t.Error("WillComplete should be true at target")
	}
	stored, _ := f.store.GetGoal(f.ctx, g.ID)
	if stored.CurrentAmount.Cents != 120000 || stored.IsCompleted {
		t.Fatalf("goal = %d completed=%v, want 120000 and not completed", stored.CurrentAmount.Cents, stored.IsCompleted)
	}

	for i := 0; i < 2; i++ {
		done, err := f.manager.MarkCompleted(f.ctx, testUser, g.ID)
		if err != nil || !done.IsCompleted {
			t.Fatalf("mark completed #%d: %v completed=%v", i+1, err, done.IsCompleted)
		}
	}
	completed := 0
	for _, typ := range f.events.types() {
		if typ == amqp.EventGoalCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("goal.completed events = %d, want 1", completed)
	}
	f.assertConsistent(t)
}

func TestContributeRejectsConcurrentCallForSameGoal(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "House", 10000000)
	other := f.goal(t, "Other", 10000000)

	block := make(chan struct{})
	entered := make(chan struct{})
	f.store.block, f.store.entered = block, entered

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Contribute(f.ctx, ContributeRequest{
			UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: 100}, SourceAccountID: f.checking.ID,
		})
		done <- err
	}()
	<-entered

	_, err := f.engine.Contribute(f.ctx, ContributeRequest{
		UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: 100}, SourceAccountID: f.checking.ID,
	})
	if !errors.Is(err, core.ErrConcurrentOperation) {
		t.Fatalf("second call err = %v, want ErrConcurrentOperation", err)
	}
	if _, err := f.manager.Delete(f.ctx, testUser, g.ID, DeleteOptions{WithRefund: true}); !errors.Is(err, core.ErrConcurrentOperation) {
		t.Fatalf("delete during contribution err = %v, want ErrConcurrentOperation", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if got := len(f.contributions(t, g.ID)); got != 1 {
		t.Errorf("contributions = %d, want 1", got)
	}

	// other goals and later calls are not affected
	f.contribute(t, other.ID, f.checking.ID, 100)
	f.contribute(t, g.ID, f.checking.ID, 100)
	f.assertConsistent(t)
}

func TestContributeOverfundingPolicy(t *testing.T) {
	tests := []struct {
		policy      OverfundingPolicy
		amount      int64
		wantErr     error
		wantCurrent int64
		wantCapped  bool
	}{
		{policy: OverfundAllow, amount: 1500, wantCurrent: 1900},
		{policy: OverfundCap, amount: 1500, wantCurrent: 1000, wantCapped: true},
		{policy: OverfundCap, amount: 600, wantCurrent: 1000},
		{policy: OverfundReject, amount: 1500, wantErr: core.ErrGoalOverfunded, wantCurrent: 400},
		{policy: OverfundReject, amount: 600, wantCurrent: 1000},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(t, tt.policy)
			g := f.goal(t, "Phone", 1000)
			f.contribute(t, g.ID, f.checking.ID, 400)
			before := f.balance(t, f.checking.ID)

			res, err := f.engine.Contribute(f.ctx, ContributeRequest{
				UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: tt.amount}, SourceAccountID: f.checking.ID,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := f.current(t, g.ID); got != tt.wantCurrent {
				t.Errorf("current = %d, want %d", got, tt.wantCurrent)
			}
			if res.Capped != tt.wantCapped {
				t.Errorf("Capped = %v, want %v", res.Capped, tt.wantCapped)
			}
			if moved := before - f.balance(t, f.checking.ID); moved != tt.wantCurrent-400 {
				t.Errorf("debited %d, want %d", moved, tt.wantCurrent-400)
			}
			f.assertConsistent(t)
		})
	}
}

func TestContributeCapRejectsReachedGoal(t *testing.T) {
	f := newFixture(t, OverfundCap)
	g := f.goal(t, "Phone", 1000)
	f.contribute(t, g.ID, f.checking.ID, 1000)

	_, err := f.engine.Contribute(f.ctx, ContributeRequest{
		UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: 1}, SourceAccountID: f.checking.ID,
	})
	if !errors.Is(err, core.ErrGoalOverfunded) {
		t.Fatalf("err = %v, want ErrGoalOverfunded", err)
	}
}

func TestContributeRollsBackFailedStep(t *testing.T) {
	tests := []struct {
		name string
		op   string
		call int
	}{
		{"debit fails", "AdjustBalance", 1},
		{"credit fails", "AdjustBalance", 2},
		{"goal update fails", "AdjustGoalAmount", 1},
		{"contribution write fails", "AddContribution", 1},
		{"transaction write fails", "AddTransaction", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, OverfundAllow)
			g := f.goal(t, "Vacation", 120000)
			f.contribute(t, g.ID, f.checking.ID, 1000)
			checking, savings := f.balance(t, f.checking.ID), f.balance(t, f.savings.ID)

			f.store.fail(tt.op, tt.call)
			_, err := f.engine.Contribute(f.ctx, ContributeRequest{
				UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: 500}, SourceAccountID: f.checking.ID,
			})
			f.store.reset()

			if !errors.Is(err, errInjected) {
				t.Fatalf("err = %v, want injected failure", err)
			}
			if errors.Is(err, core.ErrCompensationFailed) {
				t.Fatalf("rollback should have succeeded: %v", err)
			}
			if f.balance(t, f.checking.ID) != checking || f.balance(t, f.savings.ID) != savings {
				t.Error("balances changed after rolled back contribution")
			}
			if got := f.current(t, g.ID); got != 1000 {
				t.Errorf("current = %d, want 1000", got)
			}
			if got := len(f.contributions(t, g.ID)); got != 1 {
				t.Errorf("contributions = %d, want 1", got)
			}
			if got := len(f.related(t, g)); got != 1 {
				t.Errorf("related transactions = %d, want 1", got)
			}
			f.assertConsistent(t)

			// the guard was released
			f.contribute(t, g.ID, f.checking.ID, 500)
		})
	}
}

func TestContributeCompensationFailureIsHealedByResync(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Vacation", 120000)
	total := f.total(t)

	// contribution write fails, then undoing the goal increment fails too
	f.store.fail("AddContribution", 1)
	f.store.fail("AdjustGoalAmount", 2)
	_, err := f.engine.Contribute(f.ctx, ContributeRequest{
		UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: 700}, SourceAccountID: f.checking.ID,
	})
	f.store.reset()

	if !errors.Is(err, core.ErrCompensationFailed) {
		t.Fatalf("err = %v, want ErrCompensationFailed", err)
	}
	if core.Kind(err) != "CompensationFailed" {
		t.Errorf("Kind = %s", core.Kind(err))
	}
	if got := f.total(t); got != total {
		t.Errorf("total balance = %d, want %d", got, total)
	}

	report, err := f.manager.DetectDrift(f.ctx, testUser)
	if err != nil {
		t.Fatalf("detect drift: %v", err)
	}
	if len(report.Goals) != 1 || report.Goals[0].Recorded.Cents != 700 || report.Goals[0].Recomputed.Cents != 0 {
		t.Fatalf("drift report = %+v", report)
	}
	if !errors.Is(report.Err(), core.ErrConsistencyDrift) {
		t.Errorf("report.Err() = %v", report.Err())
	}

	if _, err := f.manager.EmergencyResync(f.ctx, testUser); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if got := f.current(t, g.ID); got != 0 {
		t.Errorf("current after resync = %d, want 0", got)
	}
	if got := f.total(t); got != total {
		t.Errorf("total after resync = %d, want %d", got, total)
	}
	f.assertConsistent(t)
}

func TestPublishFailureDoesNotFailContribution(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	f.events.err = errors.New("broker down")
	g := f.goal(t, "Vacation", 120000)

	f.contribute(t, g.ID, f.checking.ID, 100)

	if got := f.current(t, g.ID); got != 100 {
		t.Errorf("current = %d, want 100", got)
	}
}

func TestDeleteContribution(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Vacation", 120000)
	f.contribute(t, g.ID, f.checking.ID, 1000)
	res := f.contribute(t, g.ID, f.backup.ID, 300)
	total := f.total(t)
	backup := f.balance(t, f.backup.ID)

	out, err := f.engine.DeleteContribution(f.ctx, testUser, res.Contribution.ID)
	if err != nil {
		t.Fatalf("delete contribution: %v", err)
	}

	if out.Refunded.Cents != 300 || !out.RetainedInSavings.IsZero() || out.TransactionsRemoved != 1 {
		t.Errorf("result = %+v", out)
	}
	if got := f.balance(t, f.backup.ID); got != backup+300 {
		t.Errorf("backup = %d, want %d", got, backup+300)
	}
	if got := f.current(t, g.ID); got != 1000 {
		t.Errorf("current = %d, want 1000", got)
	}
	if got := len(f.contributions(t, g.ID)); got != 1 {
		t.Errorf("contributions = %d, want 1", got)
	}
	if got := len(f.related(t, g)); got != 1 {
		t.Errorf("related = %d, want 1", got)
	}
	if got := f.total(t); got != total {
		t.Errorf("total = %d, want %d", got, total)
	}
	f.assertConsistent(t)

	if _, err := f.engine.DeleteContribution(f.ctx, testUser, res.Contribution.ID); !errors.Is(err, core.ErrContributionNotFound) {
		t.Errorf("second delete err = %v, want ErrContributionNotFound", err)
	}
}

func TestDeleteContributionFromMissingSourceStaysInSavings(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Vacation", 120000)
	res := f.contribute(t, g.ID, f.backup.ID, 800)
	savings := f.balance(t, f.savings.ID)

	f.store.missing[f.backup.ID] = true
	out, err := f.engine.DeleteContribution(f.ctx, testUser, res.Contribution.ID)
	if err != nil {
		t.Fatalf("delete contribution: %v", err)
	}

	if out.RetainedInSavings.Cents != 800 || !out.Refunded.IsZero() {
		t.Errorf("result = %+v", out)
	}
	if got := f.balance(t, f.savings.ID); got != savings {
		t.Errorf("savings = %d, want %d", got, savings)
	}
	if got := f.current(t, g.ID); got != 0 {
		t.Errorf("current = %d, want 0", got)
	}
	f.assertConsistent(t)
}

func TestDeleteContributionRollsBack(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	g := f.goal(t, "Vacation", 120000)
	res := f.contribute(t, g.ID, f.checking.ID, 1000)
	total, checking := f.total(t), f.balance(t, f.checking.ID)

	f.store.fail("DeleteContribution", 1)
	_, err := f.engine.DeleteContribution(f.ctx, testUser, res.Contribution.ID)
	f.store.reset()

	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	if f.total(t) != total || f.balance(t, f.checking.ID) != checking || f.current(t, g.ID) != 1000 {
		t.Error("state changed after rolled back delete")
	}
	if got := len(f.related(t, g)); got != 1 {
		t.Errorf("related = %d, want transaction restored", got)
	}
	f.assertConsistent(t)
}
