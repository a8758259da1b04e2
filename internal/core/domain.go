package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCash       AccountType = "cash"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
)

const (
	CategoryEmergency GoalCategory = "emergency"
	CategoryTravel    GoalCategory = "travel"
	CategoryHome      GoalCategory = "home"
	CategoryVehicle   GoalCategory = "vehicle"
	CategoryEducation GoalCategory = "education"
	CategoryWedding   GoalCategory = "wedding"
	CategoryRetire    GoalCategory = "retirement"
	CategoryOther     GoalCategory = "other"
)

const (
	TransactionTransfer TransactionType = "transfer"
	TransactionRefund   TransactionType = "refund"
)

type (
	RepetitionTypes string
	AccountType     string
	GoalCategory    string
	TransactionType string

	Date struct {
		time.Time
	}

	// Account is owned by the accounts subsystem. Its balance is signed and
	// only moves through an explicit adjustment.
	Account struct {
		ID        string
		UserID    string
		Name      string
		Type      AccountType
		Balance   Money
		Color     string
		CreatedAt time.Time
	}

	SavingsGoal struct {
		ID                    string
		UserID                string
		Name                  string
		TargetAmount          Money
		CurrentAmount         Money
		TargetDate            Date
		MonthlyContribution   Money
		Category              GoalCategory
		Color                 string
		Icon                  string
		IsCompleted           bool
		SavingsAccountID      string
		ContributionAccountID string // optional default source
		CreatedAt             time.Time
	}

	Contribution struct {
		ID            string
		GoalID        string
		Amount        Money
		Date          Date
		FromAccountID string
		Note          string
		CreatedAt     time.Time
	}

	// Transaction is a row of the general-purpose transactions subsystem.
	// Goal transactions are found by correlation, not by foreign key.
	Transaction struct {
		ID                  string
		UserID              string
		Type                TransactionType
		Description         string
		Date                Date
		Amount              Money
		AccountID           string
		ToAccountID         string
		ParentTransactionID string
		CreatedAt           time.Time
	}

	RecurringContribution struct {
		ID              string
		UserID          string
		GoalID          string
		SourceAccountID string
		Amount          Money
		Every           RepetitionTypes
		StartDate       Date
		EndDate         Date
		LastExecution   time.Time
		Active          bool
		CreatedAt       time.Time
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrInvalidCategory    = errors.New("invalid goal category")
	ErrMissingAccount     = errors.New("missing account id")
	ErrInvalidRepetition  = errors.New("invalid repetition type")
	ErrInvalidTargetDate  = errors.New("invalid target date")
	ErrUnknownAccountType = errors.New("unknown account type")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidDateRange   = errors.New("end date must be after start date")
	ErrMissingGoal        = errors.New("missing goal id")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD, empty for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (t AccountType) IsValid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCash, AccountCredit, AccountInvestment:
		return true
	default:
		return false
	}
}

func (c GoalCategory) IsValid() bool {
	switch c {
	case CategoryEmergency, CategoryTravel, CategoryHome, CategoryVehicle,
		CategoryEducation, CategoryWedding, CategoryRetire, CategoryOther:
		return true
	default:
		return false
	}
}

func (r RepetitionTypes) IsValid() bool {
	switch r {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.IsValid() {
		return ErrUnknownAccountType
	}
	return nil
}

// IsSavings reports whether the account can back a goal.
func (a Account) IsSavings() bool {
	return a.Type == AccountSavings
}

// Validate checks the user-editable fields of a goal. Amount bookkeeping
// (CurrentAmount) is owned by the ledger and is not checked here.
func (g SavingsGoal) Validate() error {
	if len(strings.TrimSpace(g.Name)) == 0 {
		return ErrEmptyName
	}
	if len(g.Name) > 100 {
		return ErrNameTooLong
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	if err := g.MonthlyContribution.Validate(); err != nil {
		return err
	}
	if g.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if !g.TargetDate.IsZero() {
		if err := g.TargetDate.Validate(); err != nil {
			return ErrInvalidTargetDate
		}
	}
	if !g.Category.IsValid() {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(g.SavingsAccountID) == "" {
		return ErrMissingAccount
	}
	return nil
}

// Remaining is what is still missing to reach the target, never negative.
func (g SavingsGoal) Remaining() Money {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return Money{}
	}
	return r
}

// Reached reports whether the goal is eligible for completion.
func (g SavingsGoal) Reached() bool {
	return g.CurrentAmount.Cents >= g.TargetAmount.Cents
}

// ProgressPercent returns CurrentAmount/TargetAmount as a percentage, capped at 100.
func (g SavingsGoal) ProgressPercent() float64 {
	if g.TargetAmount.Cents <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount.Cents) / float64(g.TargetAmount.Cents) * 100
	if p > 100 {
		return 100
	}
	return p
}

func (c Contribution) Validate() error {
	if strings.TrimSpace(c.GoalID) == "" {
		return ErrMissingGoal
	}
	if strings.TrimSpace(c.FromAccountID) == "" {
		return ErrMissingAccount
	}
	return c.Amount.Validate()
}

func (re RecurringContribution) Validate() error {
	if err := re.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}

	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return fmt.Errorf("end date: %w", err)
		}
		if re.EndDate.Before(re.StartDate.Time) {
			return ErrInvalidDateRange
		}
	}

	if !re.Every.IsValid() {
		return ErrInvalidRepetition
	}
	if strings.TrimSpace(re.GoalID) == "" {
		return ErrMissingGoal
	}
	if strings.TrimSpace(re.SourceAccountID) == "" {
		return ErrMissingAccount
	}
	return re.Amount.Validate()
}
