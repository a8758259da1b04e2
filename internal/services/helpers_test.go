package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"risparmi/internal/amqp"
	"risparmi/internal/core"
	"risparmi/internal/records"
	"risparmi/internal/records/memory"
)

const testUser = "user-1"

var errInjected = errors.New("injected store failure")

// flakyStore fails the n-th call of selected operations and can hide
// accounts to simulate deleted ones.
type flakyStore struct {
	records.Store

	mu      sync.Mutex
	calls   map[string]int
	failOn  map[string][]int
	missing map[string]bool
	// block, when set, is received from before the first AdjustBalance
	// call; entered is closed when that call starts.
	block   chan struct{}
	entered chan struct{}
}

func newFlakyStore(inner records.Store) *flakyStore {
	return &flakyStore{
		Store:   inner,
		calls:   make(map[string]int),
		failOn:  make(map[string][]int),
		missing: make(map[string]bool),
	}
}

// fail makes the given 1-based calls of op return errInjected. Counting
// starts from the moment fail is called.
func (f *flakyStore) fail(op string, calls ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op] = 0
	f.failOn[op] = calls
}

func (f *flakyStore) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
	f.failOn = make(map[string][]int)
}

func (f *flakyStore) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	for _, n := range f.failOn[op] {
		if n == f.calls[op] {
			return fmt.Errorf("%s call %d: %w", op, n, errInjected)
		}
	}
	return nil
}

func (f *flakyStore) GetAccount(ctx context.Context, id string) (core.Account, error) {
	f.mu.Lock()
	hidden := f.missing[id]
	f.mu.Unlock()
	if hidden {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return f.Store.GetAccount(ctx, id)
}

func (f *flakyStore) AdjustBalance(ctx context.Context, id string, delta core.Money) (core.Account, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.block = nil
	f.mu.Unlock()
	if block != nil {
		close(entered)
		<-block
	}
	if err := f.hit("AdjustBalance"); err != nil {
		return core.Account{}, err
	}
	return f.Store.AdjustBalance(ctx, id, delta)
}

func (f *flakyStore) AdjustGoalAmount(ctx context.Context, id string, delta core.Money) (core.SavingsGoal, error) {
	if err := f.hit("AdjustGoalAmount"); err != nil {
		return core.SavingsGoal{}, err
	}
	return f.Store.AdjustGoalAmount(ctx, id, delta)
}

func (f *flakyStore) AddContribution(ctx context.Context, c core.Contribution) error {
	if err := f.hit("AddContribution"); err != nil {
		return err
	}
	return f.Store.AddContribution(ctx, c)
}

func (f *flakyStore) DeleteContribution(ctx context.Context, id string) error {
	if err := f.hit("DeleteContribution"); err != nil {
		return err
	}
	return f.Store.DeleteContribution(ctx, id)
}

func (f *flakyStore) AddTransaction(ctx context.Context, t core.Transaction) error {
	if err := f.hit("AddTransaction"); err != nil {
		return err
	}
	return f.Store.AddTransaction(ctx, t)
}

func (f *flakyStore) DeleteTransaction(ctx context.Context, id string) error {
	if err := f.hit("DeleteTransaction"); err != nil {
		return err
	}
	return f.Store.DeleteTransaction(ctx, id)
}

func (f *flakyStore) DeleteGoal(ctx context.Context, id string) error {
	if err := f.hit("DeleteGoal"); err != nil {
		return err
	}
	return f.Store.DeleteGoal(ctx, id)
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *flakyStore
	engine   *ContributionEngine
	manager  *GoalManager
	events   *recordingPublisher
	checking core.Account
	backup   core.Account
	savings  core.Account
}

func newFixture(t *testing.T, policy OverfundingPolicy) *fixture {
	t.Helper()
	ctx := context.Background()
	store := newFlakyStore(memory.New())
	events := &recordingPublisher{}
	engine := NewContributionEngine(store, events, policy)
	f := &fixture{
		ctx:     ctx,
		store:   store,
		engine:  engine,
		manager: NewGoalManager(store, engine, events, 0),
		events:  events,
	}
	f.checking = f.account(t, "checking", "Checking", core.AccountChecking, 500000)
	f.backup = f.account(t, "backup", "Backup", core.AccountChecking, 200000)
	f.savings = f.account(t, "savings", "Savings", core.AccountSavings, 0)
	return f
}

func (f *fixture) account(t *testing.T, id, name string, typ core.AccountType, cents int64) core.Account {
	t.Helper()
	a := core.Account{
		ID:        id,
		UserID:    testUser,
		Name:      name,
		Type:      typ,
		Balance:   core.Money{Cents: cents},
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateAccount(f.ctx, a); err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
	return a
}

func (f *fixture) goal(t *testing.T, name string, targetCents int64) core.SavingsGoal {
	t.Helper()
	g, err := f.manager.Create(f.ctx, CreateGoalRequest{
		UserID:                testUser,
		Name:                  name,
		TargetAmount:          core.Money{Cents: targetCents},
		MonthlyContribution:   core.Money{Cents: 10000},
		Category:              core.CategoryTravel,
		SavingsAccountID:      f.savings.ID,
		ContributionAccountID: f.checking.ID,
	})
	if err != nil {
		t.Fatalf("create goal %s: %v", name, err)
	}
	return g
}

func (f *fixture) contribute(t *testing.T, goalID, source string, cents int64) ContributionResult {
	t.Helper()
	res, err := f.engine.Contribute(f.ctx, ContributeRequest{
		UserID:          testUser,
		GoalID:          goalID,
		Amount:          core.Money{Cents: cents},
		SourceAccountID: source,
	})
	if err != nil {
		t.Fatalf("contribute %d from %s: %v", cents, source, err)
	}
	return res
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := f.store.Store.GetAccount(f.ctx, id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a.Balance.Cents
}

// total is the sum of all account balances; ledger operations only move it
// between accounts.
func (f *fixture) total(t *testing.T) int64 {
	t.Helper()
	accounts, err := f.store.ListAccounts(f.ctx, testUser)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	var sum int64
	for _, a := range accounts {
		sum += a.Balance.Cents
	}
	return sum
}

func (f *fixture) current(t *testing.T, goalID string) int64 {
	t.Helper()
	g, err := f.store.GetGoal(f.ctx, goalID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	return g.CurrentAmount.Cents
}

func (f *fixture) contributions(t *testing.T, goalID string) []core.Contribution {
	t.Helper()
	cs, err := f.store.ListContributions(f.ctx, goalID)
	if err != nil {
		t.Fatalf("list contributions: %v", err)
	}
	return cs
}

func (f *fixture) related(t *testing.T, g core.SavingsGoal) []core.Transaction {
	t.Helper()
	txns, err := Correlate(f.ctx, f.store, testUser, g, f.contributions(t, g.ID))
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	return txns
}

// assertConsistent uses the resync reducer as an oracle for the
// incremental path.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	report, err := f.manager.DetectDrift(f.ctx, testUser)
	if err != nil {
		t.Fatalf("detect drift: %v", err)
	}
	if report.HasDrift() {
		t.Fatalf("unexpected drift: %+v", report)
	}
}
