package storage

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Account struct {
	ID           string
	UserID       string
	Name         string
	Type         string
	BalanceCents int64
	Color        string
	CreatedAt    string
}

type SavingsGoal struct {
	ID                       string
	UserID                   string
	Name                     string
	TargetAmountCents        int64
	CurrentAmountCents       int64
	TargetDate               string
	MonthlyContributionCents int64
	Category                 string
	Color                    string
	Icon                     string
	IsCompleted              bool
	SavingsAccountID         string
	ContributionAccountID    string
	CreatedAt                string
}

type SavingsContribution struct {
	ID            string
	GoalID        string
	AmountCents   int64
	Date          string
	FromAccountID string
	Note          string
	CreatedAt     string
}

type Transaction struct {
	ID                  string
	UserID              string
	Type                string
	Description         string
	Date                string
	AmountCents         int64
	AccountID           string
	ToAccountID         string
	ParentTransactionID string
	CreatedAt           string
}

type RecurringContribution struct {
	ID              string
	UserID          string
	GoalID          string
	SourceAccountID string
	AmountCents     int64
	Frequency       string
	StartDate       string
	EndDate         string
	LastExecution   string
	IsActive        bool
	CreatedAt       string
}

type scanner interface {
	Scan(dest ...any) error
}

// Accounts

const accountColumns = `id, user_id, name, type, balance_cents, color, created_at`

func scanAccount(row scanner) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.BalanceCents, &a.Color, &a.CreatedAt)
	return a, err
}

const createAccount = `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAccount(ctx context.Context, a Account) error {
	_, err := q.db.ExecContext(ctx, createAccount, a.ID, a.UserID, a.Name, a.Type, a.BalanceCents, a.Color, a.CreatedAt)
	return err
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, id))
}

const listAccounts = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? ORDER BY created_at, seq`

func (q *Queries) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const adjustAccountBalance = `UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ? RETURNING ` + accountColumns

func (q *Queries) AdjustAccountBalance(ctx context.Context, id string, delta int64) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, adjustAccountBalance, delta, id))
}

// Goals

const goalColumns = `id, user_id, name, target_amount_cents, current_amount_cents, target_date,
 monthly_contribution_cents, category, color, icon, is_completed, savings_account_id,
 contribution_account_id, created_at`

func scanGoal(row scanner) (SavingsGoal, error) {
	var g SavingsGoal
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmountCents, &g.CurrentAmountCents, &g.TargetDate,
		&g.MonthlyContributionCents, &g.Category, &g.Color, &g.Icon, &g.IsCompleted, &g.SavingsAccountID,
		&g.ContributionAccountID, &g.CreatedAt)
	return g, err
}

const createGoal = `INSERT INTO savings_goals (` + goalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateGoal(ctx context.Context, g SavingsGoal) error {
	_, err := q.db.ExecContext(ctx, createGoal, g.ID, g.UserID, g.Name, g.TargetAmountCents, g.CurrentAmountCents,
		g.TargetDate, g.MonthlyContributionCents, g.Category, g.Color, g.Icon, g.IsCompleted,
		g.SavingsAccountID, g.ContributionAccountID, g.CreatedAt)
	return err
}

const getGoal = `SELECT ` + goalColumns + ` FROM savings_goals WHERE id = ?`

func (q *Queries) GetGoal(ctx context.Context, id string) (SavingsGoal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id))
}

const listGoals = `SELECT ` + goalColumns + ` FROM savings_goals WHERE user_id = ? ORDER BY created_at, seq`

func (q *Queries) ListGoals(ctx context.Context, userID string) ([]SavingsGoal, error) {
	rows, err := q.db.QueryContext(ctx, listGoals, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

const updateGoal = `UPDATE savings_goals SET name = ?, target_amount_cents = ?, target_date = ?,
 monthly_contribution_cents = ?, category = ?, color = ?, icon = ?, savings_account_id = ?,
 contribution_account_id = ? WHERE id = ?`

func (q *Queries) UpdateGoal(ctx context.Context, g SavingsGoal) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateGoal, g.Name, g.TargetAmountCents, g.TargetDate,
		g.MonthlyContributionCents, g.Category, g.Color, g.Icon, g.SavingsAccountID,
		g.ContributionAccountID, g.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const adjustGoalAmount = `UPDATE savings_goals SET current_amount_cents = current_amount_cents + ? WHERE id = ? RETURNING ` + goalColumns

func (q *Queries) AdjustGoalAmount(ctx context.Context, id string, delta int64) (SavingsGoal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, adjustGoalAmount, delta, id))
}

const setGoalCompleted = `UPDATE savings_goals SET is_completed = ? WHERE id = ?`

func (q *Queries) SetGoalCompleted(ctx context.Context, id string, completed bool) (int64, error) {
	res, err := q.db.ExecContext(ctx, setGoalCompleted, completed, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteGoal = `DELETE FROM savings_goals WHERE id = ?`

func (q *Queries) DeleteGoal(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteGoal, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Contributions

const contributionColumns = `id, goal_id, amount_cents, date, from_account_id, note, created_at`

func scanContribution(row scanner) (SavingsContribution, error) {
	var c SavingsContribution
	err := row.Scan(&c.ID, &c.GoalID, &c.AmountCents, &c.Date, &c.FromAccountID, &c.Note, &c.CreatedAt)
	return c, err
}

const createContribution = `INSERT INTO savings_contributions (` + contributionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateContribution(ctx context.Context, c SavingsContribution) error {
	_, err := q.db.ExecContext(ctx, createContribution, c.ID, c.GoalID, c.AmountCents, c.Date, c.FromAccountID, c.Note, c.CreatedAt)
	return err
}

const getContribution = `SELECT ` + contributionColumns + ` FROM savings_contributions WHERE id = ?`

func (q *Queries) GetContribution(ctx context.Context, id string) (SavingsContribution, error) {
	return scanContribution(q.db.QueryRowContext(ctx, getContribution, id))
}

const listContributions = `SELECT ` + contributionColumns + ` FROM savings_contributions WHERE goal_id = ? ORDER BY created_at, seq`

func (q *Queries) ListContributions(ctx context.Context, goalID string) ([]SavingsContribution, error) {
	rows, err := q.db.QueryContext(ctx, listContributions, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SavingsContribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const deleteContribution = `DELETE FROM savings_contributions WHERE id = ?`

func (q *Queries) DeleteContribution(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteContribution, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Transactions

const transactionColumns = `id, user_id, type, description, date, amount_cents, account_id,
 to_account_id, parent_transaction_id, created_at`

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Description, &t.Date, &t.AmountCents, &t.AccountID,
		&t.ToAccountID, &t.ParentTransactionID, &t.CreatedAt)
	return t, err
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction, t.ID, t.UserID, t.Type, t.Description, t.Date,
		t.AmountCents, t.AccountID, t.ToAccountID, t.ParentTransactionID, t.CreatedAt)
	return err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TransactionsByParent expands the IN list to one placeholder per id.
func (q *Queries) TransactionsByParent(ctx context.Context, userID string, parentIDs []string) ([]Transaction, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(parentIDs)), ", ")
	query := `SELECT ` + transactionColumns + ` FROM transactions
 WHERE user_id = ? AND parent_transaction_id IN (` + placeholders + `) ORDER BY created_at, seq`
	args := make([]any, 0, len(parentIDs)+1)
	args = append(args, userID)
	for _, id := range parentIDs {
		args = append(args, id)
	}
	return q.queryTransactions(ctx, query, args...)
}

// instr on lower() keeps the match literal; LIKE would treat % and _ in
// goal names as wildcards.
const transactionsByDescription = `SELECT ` + transactionColumns + ` FROM transactions
 WHERE user_id = ? AND instr(lower(description), lower(?)) > 0 ORDER BY created_at, seq`

func (q *Queries) TransactionsByDescription(ctx context.Context, userID, needle string) ([]Transaction, error) {
	return q.queryTransactions(ctx, transactionsByDescription, userID, needle)
}

// Recurring contributions

const recurringColumns = `id, user_id, goal_id, source_account_id, amount_cents, frequency, start_date,
 end_date, last_execution, is_active, created_at`

func scanRecurring(row scanner) (RecurringContribution, error) {
	var r RecurringContribution
	err := row.Scan(&r.ID, &r.UserID, &r.GoalID, &r.SourceAccountID, &r.AmountCents, &r.Frequency, &r.StartDate,
		&r.EndDate, &r.LastExecution, &r.IsActive, &r.CreatedAt)
	return r, err
}

func (q *Queries) queryRecurring(ctx context.Context, query string, args ...any) ([]RecurringContribution, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringContribution
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const createRecurring = `INSERT INTO recurring_contributions (` + recurringColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateRecurring(ctx context.Context, r RecurringContribution) error {
	_, err := q.db.ExecContext(ctx, createRecurring, r.ID, r.UserID, r.GoalID, r.SourceAccountID, r.AmountCents,
		r.Frequency, r.StartDate, r.EndDate, r.LastExecution, r.IsActive, r.CreatedAt)
	return err
}

const listRecurring = `SELECT ` + recurringColumns + ` FROM recurring_contributions WHERE user_id = ? ORDER BY created_at, seq`

func (q *Queries) ListRecurring(ctx context.Context, userID string) ([]RecurringContribution, error) {
	return q.queryRecurring(ctx, listRecurring, userID)
}

// Dates are stored as YYYY-MM-DD so string comparison orders them.
const listActiveRecurring = `SELECT ` + recurringColumns + ` FROM recurring_contributions
 WHERE is_active = 1 AND start_date <= ? AND (end_date = '' OR end_date >= ?) ORDER BY created_at, seq`

func (q *Queries) ListActiveRecurring(ctx context.Context, today string) ([]RecurringContribution, error) {
	return q.queryRecurring(ctx, listActiveRecurring, today, today)
}

const markRecurringExecuted = `UPDATE recurring_contributions SET last_execution = ? WHERE id = ?`

func (q *Queries) MarkRecurringExecuted(ctx context.Context, id, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markRecurringExecuted, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setRecurringActive = `UPDATE recurring_contributions SET is_active = ? WHERE id = ?`

func (q *Queries) SetRecurringActive(ctx context.Context, id string, active bool) (int64, error) {
	res, err := q.db.ExecContext(ctx, setRecurringActive, active, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
