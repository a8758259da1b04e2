package memory

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"risparmi/internal/core"
)

// Store keeps every record in memory. It is safe for concurrent use and
// returns copies, never pointers into its maps.
type Store struct {
	mu            sync.Mutex
	accounts      map[string]core.Account
	goals         map[string]core.SavingsGoal
	contributions map[string]core.Contribution
	transactions  map[string]core.Transaction
	recurring     map[string]core.RecurringContribution

	// insertion order, ties on CreatedAt are broken by it
	seq   uint64
	order map[string]uint64
}

func New() *Store {
	return &Store{
		accounts:      make(map[string]core.Account),
		goals:         make(map[string]core.SavingsGoal),
		contributions: make(map[string]core.Contribution),
		transactions:  make(map[string]core.Transaction),
		recurring:     make(map[string]core.RecurringContribution),
		order:         make(map[string]uint64),
	}
}

func (s *Store) track(id string) {
	s.seq++
	s.order[id] = s.seq
}

func (s *Store) byCreation(a, b time.Time, idA, idB string) int {
	return cmp.Or(a.Compare(b), cmp.Compare(s.order[idA], s.order[idB]))
}

// NewFromFiles seeds accounts for userID from base/seed_accounts.txt. Each
// line is "name,type,balance"; blank lines and # comments are skipped, as
// are malformed lines.
func NewFromFiles(base, userID string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_accounts.txt")) {
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		var balance core.Money
		if b := strings.TrimSpace(parts[2]); b != "0" {
			m, err := core.ParseMoney(b)
			if err != nil {
				continue
			}
			balance = m
		}
		a := core.Account{
			ID:        uuid.NewString(),
			UserID:    userID,
			Name:      strings.TrimSpace(parts[0]),
			Type:      core.AccountType(strings.TrimSpace(parts[1])),
			Balance:   balance,
			CreatedAt: time.Now().UTC(),
		}
		if a.Validate() != nil {
			continue
		}
		s.accounts[a.ID] = a
		s.track(a.ID)
	}
	return s
}

func (s *Store) Close() error { return nil }

// Accounts

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	s.accounts[a.ID] = a
	s.track(a.ID)
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, userID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b core.Account) int {
		return s.byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) AdjustBalance(_ context.Context, id string, delta core.Money) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	a.Balance = a.Balance.Add(delta)
	s.accounts[id] = a
	return a, nil
}

// Goals

func (s *Store) CreateGoal(_ context.Context, g core.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return fmt.Errorf("goal %s already exists", g.ID)
	}
	s.goals[g.ID] = g
	s.track(g.ID)
	return nil
}

func (s *Store) GetGoal(_ context.Context, id string) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return core.SavingsGoal{}, fmt.Errorf("%w: %s", core.ErrGoalNotFound, id)
	}
	return g, nil
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SavingsGoal
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b core.SavingsGoal) int {
		return s.byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.goals[g.ID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrGoalNotFound, g.ID)
	}
	g.CurrentAmount = old.CurrentAmount
	g.IsCompleted = old.IsCompleted
	g.UserID = old.UserID
	g.CreatedAt = old.CreatedAt
	s.goals[g.ID] = g
	return nil
}

func (s *Store) AdjustGoalAmount(_ context.Context, id string, delta core.Money) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return core.SavingsGoal{}, fmt.Errorf("%w: %s", core.ErrGoalNotFound, id)
	}
	g.CurrentAmount = g.CurrentAmount.Add(delta)
	s.goals[id] = g
	return g, nil
}

func (s *Store) SetGoalCompleted(_ context.Context, id string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrGoalNotFound, id)
	}
	g.IsCompleted = completed
	s.goals[id] = g
	return nil
}

func (s *Store) DeleteGoal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrGoalNotFound, id)
	}
	delete(s.goals, id)
	return nil
}

// Contributions

func (s *Store) AddContribution(_ context.Context, c core.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contributions[c.ID]; ok {
		return fmt.Errorf("contribution %s already exists", c.ID)
	}
	s.contributions[c.ID] = c
	s.track(c.ID)
	return nil
}

func (s *Store) GetContribution(_ context.Context, id string) (core.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contributions[id]
	if !ok {
		return core.Contribution{}, fmt.Errorf("%w: %s", core.ErrContributionNotFound, id)
	}
	return c, nil
}

func (s *Store) ListContributions(_ context.Context, goalID string) ([]core.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Contribution
	for _, c := range s.contributions {
		if c.GoalID == goalID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b core.Contribution) int {
		return s.byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) DeleteContribution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contributions[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrContributionNotFound, id)
	}
	delete(s.contributions, id)
	return nil
}

// Transactions

func (s *Store) AddTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; ok {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	s.transactions[t.ID] = t
	s.track(t.ID)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s not found", id)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) TransactionsByParent(_ context.Context, userID string, parentIDs []string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID && t.ParentTransactionID != "" && slices.Contains(parentIDs, t.ParentTransactionID) {
			out = append(out, t)
		}
	}
	s.sortTransactions(out)
	return out, nil
}

func (s *Store) TransactionsByDescription(_ context.Context, userID, needle string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle = strings.ToLower(needle)
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID && strings.Contains(strings.ToLower(t.Description), needle) {
			out = append(out, t)
		}
	}
	s.sortTransactions(out)
	return out, nil
}

func (s *Store) sortTransactions(ts []core.Transaction) {
	slices.SortFunc(ts, func(a, b core.Transaction) int {
		return s.byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

// Recurring contributions

func (s *Store) CreateRecurring(_ context.Context, r core.RecurringContribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recurring[r.ID]; ok {
		return fmt.Errorf("recurring contribution %s already exists", r.ID)
	}
	s.recurring[r.ID] = r
	s.track(r.ID)
	return nil
}

func (s *Store) ListRecurring(_ context.Context, userID string) ([]core.RecurringContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringContribution
	for _, r := range s.recurring {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b core.RecurringContribution) int {
		return s.byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListActiveRecurring(_ context.Context, now time.Time) ([]core.RecurringContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := core.DateOf(now)
	var out []core.RecurringContribution
	for _, r := range s.recurring {
		if !r.Active || r.StartDate.After(today.Time) {
			continue
		}
		if !r.EndDate.IsZero() && r.EndDate.Before(today.Time) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b core.RecurringContribution) int {
		return s.byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) MarkRecurringExecuted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurring[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
	}
	r.LastExecution = at
	s.recurring[id] = r
	return nil
}

func (s *Store) SetRecurringActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurring[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
	}
	r.Active = active
	s.recurring[id] = r
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
