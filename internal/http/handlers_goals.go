package http

import (
	"net/http"

	"risparmi/internal/core"
	applog "risparmi/internal/log"
	"risparmi/internal/services"
)

type createGoalRequest struct {
	Name                  string `json:"name"`
	TargetAmount          string `json:"target_amount"`
	InitialAmount         string `json:"initial_amount"`
	TargetDate            string `json:"target_date"`
	MonthlyContribution   string `json:"monthly_contribution"`
	Category              string `json:"category"`
	Color                 string `json:"color"`
	Icon                  string `json:"icon"`
	SavingsAccountID      string `json:"savings_account_id"`
	ContributionAccountID string `json:"contribution_account_id"`
}

// updateGoalRequest uses pointers so absent fields stay unchanged.
type updateGoalRequest struct {
	Name                  *string `json:"name"`
	TargetAmount          *string `json:"target_amount"`
	TargetDate            *string `json:"target_date"`
	MonthlyContribution   *string `json:"monthly_contribution"`
	Category              *string `json:"category"`
	Color                 *string `json:"color"`
	Icon                  *string `json:"icon"`
	SavingsAccountID      *string `json:"savings_account_id"`
	ContributionAccountID *string `json:"contribution_account_id"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.deps.Goals.ListGoals(r.Context(), s.userID(r))
	if err != nil {
		writeLedgerError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(goals, toGoalJSON)).Write(w)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.deps.Goals.GetGoal(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(toGoalJSON(goal)).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		resp.Write(w)
		return
	}

	target, resp := parseAmount("target_amount", req.TargetAmount)
	if resp != nil {
		resp.Write(w)
		return
	}
	initial, resp := parseOptionalAmount("initial_amount", req.InitialAmount)
	if resp != nil {
		resp.Write(w)
		return
	}
	monthly, resp := parseOptionalAmount("monthly_contribution", req.MonthlyContribution)
	if resp != nil {
		resp.Write(w)
		return
	}
	targetDate, resp := parseOptionalDate("target_date", req.TargetDate)
	if resp != nil {
		resp.Write(w)
		return
	}

	userID := s.userID(r)
	goal, err := s.deps.Goals.Create(r.Context(), services.CreateGoalRequest{
		UserID:                userID,
		Name:                  sanitizeInput(req.Name),
		TargetAmount:          target,
		InitialAmount:         initial,
		TargetDate:            targetDate,
		MonthlyContribution:   monthly,
		Category:              core.GoalCategory(sanitizeInput(req.Category)),
		Color:                 sanitizeInput(req.Color),
		Icon:                  sanitizeInput(req.Icon),
		SavingsAccountID:      sanitizeInput(req.SavingsAccountID),
		ContributionAccountID: sanitizeInput(req.ContributionAccountID),
	})
	if err != nil {
		writeLedgerError(w, r, applog.OpCreate, err)
		return
	}

	ledgerLog(r).LogLedgerOperation(r.Context(), "Goal created", applog.ComponentGoal, applog.OpCreate,
		userID, goal.ID, goal.SavingsAccountID, goal.CurrentAmount.Cents)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/goals/"+goal.ID).
		Body(toGoalJSON(goal)).
		Write(w)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req updateGoalRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		resp.Write(w)
		return
	}

	u := services.GoalUpdate{
		Name:                  optionalString(req.Name),
		Color:                 optionalString(req.Color),
		Icon:                  optionalString(req.Icon),
		SavingsAccountID:      optionalString(req.SavingsAccountID),
		ContributionAccountID: optionalString(req.ContributionAccountID),
	}
	if req.Category != nil {
		c := core.GoalCategory(sanitizeInput(*req.Category))
		u.Category = &c
	}
	if req.TargetAmount != nil {
		m, resp := parseAmount("target_amount", *req.TargetAmount)
		if resp != nil {
			resp.Write(w)
			return
		}
		u.TargetAmount = &m
	}
	if req.MonthlyContribution != nil {
		m, resp := parseAmount("monthly_contribution", *req.MonthlyContribution)
		if resp != nil {
			resp.Write(w)
			return
		}
		u.MonthlyContribution = &m
	}
	if req.TargetDate != nil {
		d, resp := parseOptionalDate("target_date", *req.TargetDate)
		if resp != nil {
			resp.Write(w)
			return
		}
		u.TargetDate = &d
	}

	goal, err := s.deps.Goals.Update(r.Context(), s.userID(r), r.PathValue("id"), u)
	if err != nil {
		writeLedgerError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(toGoalJSON(goal)).Write(w)
}

// handleDeleteGoal deletes a goal. ?refund=true returns its money to the
// source accounts, ?delete_transactions=true also removes its history.
func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refund, resp := parseBoolQuery(q, "refund")
	if resp != nil {
		resp.Write(w)
		return
	}
	deleteTxns, resp := parseBoolQuery(q, "delete_transactions")
	if resp != nil {
		resp.Write(w)
		return
	}

	userID := s.userID(r)
	result, err := s.deps.Goals.Delete(r.Context(), userID, r.PathValue("id"), services.DeleteOptions{
		WithRefund:         refund,
		DeleteTransactions: deleteTxns,
	})
	if err != nil {
		writeLedgerError(w, r, applog.OpDelete, err)
		return
	}

	ledgerLog(r).LogLedgerOperation(r.Context(), "Goal deleted", applog.ComponentGoal, applog.OpDelete,
		userID, result.GoalID, "", result.Refunded.Cents)
	NewJSONResponse().Body(toDeleteGoalJSON(result)).Write(w)
}

func (s *Server) handleCompleteGoal(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	goal, err := s.deps.Goals.MarkCompleted(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpComplete, err)
		return
	}

	ledgerLog(r).LogLedgerOperation(r.Context(), "Goal completed", applog.ComponentGoal, applog.OpComplete,
		userID, goal.ID, goal.SavingsAccountID, goal.CurrentAmount.Cents)
	NewJSONResponse().Body(toGoalJSON(goal)).Write(w)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Goals.Forecast(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(toForecastJSON(f)).Write(w)
}

func (s *Server) handleRelatedTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.deps.Goals.RelatedTransactions(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(txns, toTransactionJSON)).Write(w)
}

// handleRelatedTransactionsCount backs the delete confirmation prompt.
func (s *Server) handleRelatedTransactionsCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Goals.RelatedTransactionsCount(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(map[string]int{"count": n}).Write(w)
}
