package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"risparmi/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so created_at text sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var errTransactionNotFound = errors.New("transaction not found")

// SQLiteRepository implements records.Store on a local SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer: sequential ledger steps must not hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

// notFound maps zero affected rows or sql.ErrNoRows to sentinel.
func notFound(err error, sentinel error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}

func affected(n int64, err error, sentinel error, id string) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return nil
}

// Accounts

func accountFromRow(a Account) core.Account {
	return core.Account{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Type:      core.AccountType(a.Type),
		Balance:   core.Money{Cents: a.BalanceCents},
		Color:     a.Color,
		CreatedAt: parseTime(a.CreatedAt),
	}
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	err := r.queries.CreateAccount(ctx, Account{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Type:         string(a.Type),
		BalanceCents: a.Balance.Cents,
		Color:        a.Color,
		CreatedAt:    formatTime(a.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account saved to SQLite", "account_id", a.ID, "type", a.Type, "balance_cents", a.Balance.Cents)
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := r.queries.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", notFound(err, core.ErrAccountNotFound, id))
	}
	return accountFromRow(a), nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.queries.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, len(rows))
	for i, a := range rows {
		out[i] = accountFromRow(a)
	}
	return out, nil
}

func (r *SQLiteRepository) AdjustBalance(ctx context.Context, id string, delta core.Money) (core.Account, error) {
	a, err := r.queries.AdjustAccountBalance(ctx, id, delta.Cents)
	if err != nil {
		return core.Account{}, fmt.Errorf("adjust balance: %w", notFound(err, core.ErrAccountNotFound, id))
	}
	slog.DebugContext(ctx, "Account balance adjusted", "account_id", id, "delta_cents", delta.Cents, "balance_cents", a.BalanceCents)
	return accountFromRow(a), nil
}

// Goals

func goalFromRow(g SavingsGoal) core.SavingsGoal {
	return core.SavingsGoal{
		ID:                    g.ID,
		UserID:                g.UserID,
		Name:                  g.Name,
		TargetAmount:          core.Money{Cents: g.TargetAmountCents},
		CurrentAmount:         core.Money{Cents: g.CurrentAmountCents},
		TargetDate:            parseDate(g.TargetDate),
		MonthlyContribution:   core.Money{Cents: g.MonthlyContributionCents},
		Category:              core.GoalCategory(g.Category),
		Color:                 g.Color,
		Icon:                  g.Icon,
		IsCompleted:           g.IsCompleted,
		SavingsAccountID:      g.SavingsAccountID,
		ContributionAccountID: g.ContributionAccountID,
		CreatedAt:             parseTime(g.CreatedAt),
	}
}

func goalToRow(g core.SavingsGoal) SavingsGoal {
	return SavingsGoal{
		ID:                       g.ID,
		UserID:                   g.UserID,
		Name:                     g.Name,
		TargetAmountCents:        g.TargetAmount.Cents,
		CurrentAmountCents:       g.CurrentAmount.Cents,
		TargetDate:               g.TargetDate.String(),
		MonthlyContributionCents: g.MonthlyContribution.Cents,
		Category:                 string(g.Category),
		Color:                    g.Color,
		Icon:                     g.Icon,
		IsCompleted:              g.IsCompleted,
		SavingsAccountID:         g.SavingsAccountID,
		ContributionAccountID:    g.ContributionAccountID,
		CreatedAt:                formatTime(g.CreatedAt),
	}
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) error {
	if err := r.queries.CreateGoal(ctx, goalToRow(g)); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	slog.InfoContext(ctx, "Goal saved to SQLite",
		"goal_id", g.ID,
		"name", g.Name,
		"target_cents", g.TargetAmount.Cents,
		"savings_account_id", g.SavingsAccountID)
	return nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	g, err := r.queries.GetGoal(ctx, id)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", notFound(err, core.ErrGoalNotFound, id))
	}
	return goalFromRow(g), nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	rows, err := r.queries.ListGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]core.SavingsGoal, len(rows))
	for i, g := range rows {
		out[i] = goalFromRow(g)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.SavingsGoal) error {
	n, err := r.queries.UpdateGoal(ctx, goalToRow(g))
	if err := affected(n, err, core.ErrGoalNotFound, g.ID); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AdjustGoalAmount(ctx context.Context, id string, delta core.Money) (core.SavingsGoal, error) {
	g, err := r.queries.AdjustGoalAmount(ctx, id, delta.Cents)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("adjust goal amount: %w", notFound(err, core.ErrGoalNotFound, id))
	}
	return goalFromRow(g), nil
}

func (r *SQLiteRepository) SetGoalCompleted(ctx context.Context, id string, completed bool) error {
	n, err := r.queries.SetGoalCompleted(ctx, id, completed)
	if err := affected(n, err, core.ErrGoalNotFound, id); err != nil {
		return fmt.Errorf("set goal completed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) error {
	n, err := r.queries.DeleteGoal(ctx, id)
	if err := affected(n, err, core.ErrGoalNotFound, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	slog.InfoContext(ctx, "Goal deleted from SQLite", "goal_id", id)
	return nil
}

// Contributions

func contributionFromRow(c SavingsContribution) core.Contribution {
	return core.Contribution{
		ID:            c.ID,
		GoalID:        c.GoalID,
		Amount:        core.Money{Cents: c.AmountCents},
		Date:          parseDate(c.Date),
		FromAccountID: c.FromAccountID,
		Note:          c.Note,
		CreatedAt:     parseTime(c.CreatedAt),
	}
}

func (r *SQLiteRepository) AddContribution(ctx context.Context, c core.Contribution) error {
	err := r.queries.CreateContribution(ctx, SavingsContribution{
		ID:            c.ID,
		GoalID:        c.GoalID,
		AmountCents:   c.Amount.Cents,
		Date:          c.Date.String(),
		FromAccountID: c.FromAccountID,
		Note:          c.Note,
		CreatedAt:     formatTime(c.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create contribution: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetContribution(ctx context.Context, id string) (core.Contribution, error) {
	c, err := r.queries.GetContribution(ctx, id)
	if err != nil {
		return core.Contribution{}, fmt.Errorf("get contribution: %w", notFound(err, core.ErrContributionNotFound, id))
	}
	return contributionFromRow(c), nil
}

func (r *SQLiteRepository) ListContributions(ctx context.Context, goalID string) ([]core.Contribution, error) {
	rows, err := r.queries.ListContributions(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	out := make([]core.Contribution, len(rows))
	for i, c := range rows {
		out[i] = contributionFromRow(c)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteContribution(ctx context.Context, id string) error {
	n, err := r.queries.DeleteContribution(ctx, id)
	if err := affected(n, err, core.ErrContributionNotFound, id); err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	return nil
}

// Transactions

func transactionFromRow(t Transaction) core.Transaction {
	return core.Transaction{
		ID:                  t.ID,
		UserID:              t.UserID,
		Type:                core.TransactionType(t.Type),
		Description:         t.Description,
		Date:                parseDate(t.Date),
		Amount:              core.Money{Cents: t.AmountCents},
		AccountID:           t.AccountID,
		ToAccountID:         t.ToAccountID,
		ParentTransactionID: t.ParentTransactionID,
		CreatedAt:           parseTime(t.CreatedAt),
	}
}

func transactionsFromRows(rows []Transaction) []core.Transaction {
	out := make([]core.Transaction, len(rows))
	for i, t := range rows {
		out[i] = transactionFromRow(t)
	}
	return out
}

func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) error {
	err := r.queries.CreateTransaction(ctx, Transaction{
		ID:                  t.ID,
		UserID:              t.UserID,
		Type:                string(t.Type),
		Description:         t.Description,
		Date:                t.Date.String(),
		AmountCents:         t.Amount.Cents,
		AccountID:           t.AccountID,
		ToAccountID:         t.ToAccountID,
		ParentTransactionID: t.ParentTransactionID,
		CreatedAt:           formatTime(t.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err := affected(n, err, errTransactionNotFound, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) TransactionsByParent(ctx context.Context, userID string, parentIDs []string) ([]core.Transaction, error) {
	rows, err := r.queries.TransactionsByParent(ctx, userID, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("transactions by parent: %w", err)
	}
	return transactionsFromRows(rows), nil
}

func (r *SQLiteRepository) TransactionsByDescription(ctx context.Context, userID, needle string) ([]core.Transaction, error) {
	rows, err := r.queries.TransactionsByDescription(ctx, userID, needle)
	if err != nil {
		return nil, fmt.Errorf("transactions by description: %w", err)
	}
	return transactionsFromRows(rows), nil
}

// Recurring contributions

func recurringFromRow(rc RecurringContribution) core.RecurringContribution {
	return core.RecurringContribution{
		ID:              rc.ID,
		UserID:          rc.UserID,
		GoalID:          rc.GoalID,
		SourceAccountID: rc.SourceAccountID,
		Amount:          core.Money{Cents: rc.AmountCents},
		Every:           core.RepetitionTypes(rc.Frequency),
		StartDate:       parseDate(rc.StartDate),
		EndDate:         parseDate(rc.EndDate),
		LastExecution:   parseTime(rc.LastExecution),
		Active:          rc.IsActive,
		CreatedAt:       parseTime(rc.CreatedAt),
	}
}

func recurringFromRows(rows []RecurringContribution) []core.RecurringContribution {
	out := make([]core.RecurringContribution, len(rows))
	for i, rc := range rows {
		out[i] = recurringFromRow(rc)
	}
	return out
}

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rc core.RecurringContribution) error {
	err := r.queries.CreateRecurring(ctx, RecurringContribution{
		ID:              rc.ID,
		UserID:          rc.UserID,
		GoalID:          rc.GoalID,
		SourceAccountID: rc.SourceAccountID,
		AmountCents:     rc.Amount.Cents,
		Frequency:       string(rc.Every),
		StartDate:       rc.StartDate.String(),
		EndDate:         rc.EndDate.String(),
		LastExecution:   formatTime(rc.LastExecution),
		IsActive:        rc.Active,
		CreatedAt:       formatTime(rc.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create recurring contribution: %w", err)
	}
	slog.InfoContext(ctx, "Recurring contribution saved to SQLite",
		"id", rc.ID,
		"goal_id", rc.GoalID,
		"amount_cents", rc.Amount.Cents,
		"frequency", rc.Every)
	return nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringContribution, error) {
	rows, err := r.queries.ListRecurring(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring contributions: %w", err)
	}
	return recurringFromRows(rows), nil
}

func (r *SQLiteRepository) ListActiveRecurring(ctx context.Context, now time.Time) ([]core.RecurringContribution, error) {
	rows, err := r.queries.ListActiveRecurring(ctx, core.DateOf(now).String())
	if err != nil {
		return nil, fmt.Errorf("list active recurring contributions: %w", err)
	}
	return recurringFromRows(rows), nil
}

func (r *SQLiteRepository) MarkRecurringExecuted(ctx context.Context, id string, at time.Time) error {
	n, err := r.queries.MarkRecurringExecuted(ctx, id, formatTime(at))
	if err := affected(n, err, core.ErrRecurringNotFound, id); err != nil {
		return fmt.Errorf("mark recurring executed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetRecurringActive(ctx context.Context, id string, active bool) error {
	n, err := r.queries.SetRecurringActive(ctx, id, active)
	if err := affected(n, err, core.ErrRecurringNotFound, id); err != nil {
		return fmt.Errorf("set recurring active: %w", err)
	}
	return nil
}
