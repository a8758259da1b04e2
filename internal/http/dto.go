package http

import (
	"time"

	"risparmi/internal/core"
	"risparmi/internal/services"
)

// Amounts travel as decimal strings with two digits, dates as YYYY-MM-DD.

type accountJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Balance string `json:"balance"`
	Color   string `json:"color,omitempty"`
}

func toAccountJSON(a core.Account) accountJSON {
	return accountJSON{
		ID:      a.ID,
		Name:    a.Name,
		Type:    string(a.Type),
		Balance: a.Balance.String(),
		Color:   a.Color,
	}
}

type goalJSON struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	TargetAmount          string  `json:"target_amount"`
	CurrentAmount         string  `json:"current_amount"`
	Remaining             string  `json:"remaining"`
	ProgressPercent       float64 `json:"progress_percent"`
	TargetDate            string  `json:"target_date,omitempty"`
	MonthlyContribution   string  `json:"monthly_contribution"`
	Category              string  `json:"category"`
	Color                 string  `json:"color,omitempty"`
	Icon                  string  `json:"icon,omitempty"`
	IsCompleted           bool    `json:"is_completed"`
	SavingsAccountID      string  `json:"savings_account_id"`
	ContributionAccountID string  `json:"contribution_account_id,omitempty"`
}

func toGoalJSON(g core.SavingsGoal) goalJSON {
	return goalJSON{
		ID:                    g.ID,
		Name:                  g.Name,
		TargetAmount:          g.TargetAmount.String(),
		CurrentAmount:         g.CurrentAmount.String(),
		Remaining:             g.Remaining().String(),
		ProgressPercent:       g.ProgressPercent(),
		TargetDate:            g.TargetDate.String(),
		MonthlyContribution:   g.MonthlyContribution.String(),
		Category:              string(g.Category),
		Color:                 g.Color,
		Icon:                  g.Icon,
		IsCompleted:           g.IsCompleted,
		SavingsAccountID:      g.SavingsAccountID,
		ContributionAccountID: g.ContributionAccountID,
	}
}

type contributionJSON struct {
	ID            string `json:"id"`
	GoalID        string `json:"goal_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	FromAccountID string `json:"from_account_id"`
	Note          string `json:"note,omitempty"`
}

func toContributionJSON(c core.Contribution) contributionJSON {
	return contributionJSON{
		ID:            c.ID,
		GoalID:        c.GoalID,
		Amount:        c.Amount.String(),
		Date:          c.Date.String(),
		FromAccountID: c.FromAccountID,
		Note:          c.Note,
	}
}

type transactionJSON struct {
	ID                  string `json:"id"`
	Type                string `json:"type"`
	Description         string `json:"description"`
	Date                string `json:"date"`
	Amount              string `json:"amount"`
	AccountID           string `json:"account_id"`
	ToAccountID         string `json:"to_account_id,omitempty"`
	ParentTransactionID string `json:"parent_transaction_id,omitempty"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:                  t.ID,
		Type:                string(t.Type),
		Description:         t.Description,
		Date:                t.Date.String(),
		Amount:              t.Amount.String(),
		AccountID:           t.AccountID,
		ToAccountID:         t.ToAccountID,
		ParentTransactionID: t.ParentTransactionID,
	}
}

type recurringJSON struct {
	ID              string     `json:"id"`
	GoalID          string     `json:"goal_id"`
	SourceAccountID string     `json:"source_account_id"`
	Amount          string     `json:"amount"`
	Every           string     `json:"every"`
	StartDate       string     `json:"start_date"`
	EndDate         string     `json:"end_date,omitempty"`
	LastExecution   *time.Time `json:"last_execution,omitempty"`
	Active          bool       `json:"active"`
}

func toRecurringJSON(r core.RecurringContribution) recurringJSON {
	out := recurringJSON{
		ID:              r.ID,
		GoalID:          r.GoalID,
		SourceAccountID: r.SourceAccountID,
		Amount:          r.Amount.String(),
		Every:           string(r.Every),
		StartDate:       r.StartDate.String(),
		EndDate:         r.EndDate.String(),
		Active:          r.Active,
	}
	if !r.LastExecution.IsZero() {
		last := r.LastExecution
		out.LastExecution = &last
	}
	return out
}

type contributionResultJSON struct {
	Contribution contributionJSON `json:"contribution"`
	Transaction  transactionJSON  `json:"transaction"`
	Goal         goalJSON         `json:"goal"`
	Capped       bool             `json:"capped"`
	WillComplete bool             `json:"will_complete"`
	Message      string           `json:"message,omitempty"`
}

func toContributionResultJSON(r services.ContributionResult) contributionResultJSON {
	return contributionResultJSON{
		Contribution: toContributionJSON(r.Contribution),
		Transaction:  toTransactionJSON(r.Transaction),
		Goal:         toGoalJSON(r.Goal),
		Capped:       r.Capped,
		WillComplete: r.WillComplete,
		Message:      r.Message,
	}
}

type deleteContributionJSON struct {
	Contribution        contributionJSON `json:"contribution"`
	Goal                goalJSON         `json:"goal"`
	Refunded            string           `json:"refunded"`
	RetainedInSavings   string           `json:"retained_in_savings"`
	TransactionsRemoved int              `json:"transactions_removed"`
}

type deleteGoalJSON struct {
	GoalID               string `json:"goal_id"`
	Refunded             string `json:"refunded"`
	RetainedInSavings    string `json:"retained_in_savings"`
	RefundsApplied       int    `json:"refunds_applied"`
	ContributionsRemoved int    `json:"contributions_removed"`
	TransactionsRemoved  int    `json:"transactions_removed"`
	RemovalFailures      int    `json:"removal_failures"`
}

func toDeleteGoalJSON(r services.DeleteResult) deleteGoalJSON {
	return deleteGoalJSON{
		GoalID:               r.GoalID,
		Refunded:             r.Refunded.String(),
		RetainedInSavings:    r.RetainedInSavings.String(),
		RefundsApplied:       r.RefundsApplied,
		ContributionsRemoved: r.ContributionsRemoved,
		TransactionsRemoved:  r.TransactionsRemoved,
		RemovalFailures:      r.RemovalFailures,
	}
}

type forecastJSON struct {
	Goal            goalJSON `json:"goal"`
	ProgressPercent float64  `json:"progress_percent"`
	Remaining       string   `json:"remaining"`
	AchievementDate string   `json:"achievement_date,omitempty"`
	Never           bool     `json:"never"`
	MonthsLeft      int      `json:"months_left"`
	MonthlyNeeded   string   `json:"monthly_needed"`
	OnTrack         bool     `json:"on_track"`
}

func toForecastJSON(f services.Forecast) forecastJSON {
	out := forecastJSON{
		Goal:            toGoalJSON(f.Goal),
		ProgressPercent: f.ProgressPercent,
		Remaining:       f.Remaining.String(),
		Never:           f.Never,
		MonthsLeft:      f.MonthsLeft,
		MonthlyNeeded:   f.MonthlyNeeded.String(),
		OnTrack:         f.OnTrack,
	}
	if !f.Never {
		out.AchievementDate = core.DateOf(f.AchievementDate).String()
	}
	return out
}

type goalDriftJSON struct {
	GoalID     string `json:"goal_id"`
	Name       string `json:"name"`
	Recorded   string `json:"recorded"`
	Recomputed string `json:"recomputed"`
}

type accountDriftJSON struct {
	AccountID string `json:"account_id"`
	Recorded  string `json:"recorded"`
	Expected  string `json:"expected"`
}

type resyncReportJSON struct {
	GoalsChecked    int                `json:"goals_checked"`
	Drift           bool               `json:"drift"`
	Goals           []goalDriftJSON    `json:"goals"`
	Accounts        []accountDriftJSON `json:"accounts"`
	MissingAccounts []string           `json:"missing_accounts"`
	Applied         bool               `json:"applied"`
}

func toResyncReportJSON(r services.ResyncReport) resyncReportJSON {
	out := resyncReportJSON{
		GoalsChecked:    r.GoalsChecked,
		Drift:           r.HasDrift(),
		Goals:           make([]goalDriftJSON, 0, len(r.Goals)),
		Accounts:        make([]accountDriftJSON, 0, len(r.Accounts)),
		MissingAccounts: append([]string{}, r.MissingAccounts...),
		Applied:         r.Applied,
	}
	for _, g := range r.Goals {
		out.Goals = append(out.Goals, goalDriftJSON{
			GoalID:     g.GoalID,
			Name:       g.Name,
			Recorded:   g.Recorded.String(),
			Recomputed: g.Recomputed.String(),
		})
	}
	for _, a := range r.Accounts {
		out.Accounts = append(out.Accounts, accountDriftJSON{
			AccountID: a.AccountID,
			Recorded:  a.Recorded.String(),
			Expected:  a.Expected.String(),
		})
	}
	return out
}

// mapSlice converts a slice of records, never returning nil so lists
// encode as [].
func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
