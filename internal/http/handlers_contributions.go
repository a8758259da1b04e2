package http

import (
	"net/http"

	applog "risparmi/internal/log"
	"risparmi/internal/services"
)

type contributeRequest struct {
	Amount string `json:"amount"`
	// SourceAccountID defaults to the goal's contribution account.
	SourceAccountID string `json:"source_account_id"`
	Note            string `json:"note"`
	Date            string `json:"date"`
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	contributions, err := s.deps.Goals.ListContributions(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(contributions, toContributionJSON)).Write(w)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		resp.Write(w)
		return
	}

	amount, resp := parseAmount("amount", req.Amount)
	if resp != nil {
		resp.Write(w)
		return
	}
	date, resp := parseOptionalDate("date", req.Date)
	if resp != nil {
		resp.Write(w)
		return
	}

	userID := s.userID(r)
	result, err := s.deps.Engine.Contribute(r.Context(), services.ContributeRequest{
		UserID:          userID,
		GoalID:          r.PathValue("id"),
		Amount:          amount,
		SourceAccountID: sanitizeInput(req.SourceAccountID),
		Note:            sanitizeInput(req.Note),
		Date:            date,
	})
	if err != nil {
		writeLedgerError(w, r, applog.OpContribute, err)
		return
	}

	ledgerLog(r).LogLedgerOperation(r.Context(), "Contribution recorded", applog.ComponentContribution, applog.OpContribute,
		userID, result.Goal.ID, result.Contribution.FromAccountID, result.Contribution.Amount.Cents)
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(toContributionResultJSON(result)).
		Write(w)
}

// handleDeleteContribution reverses one contribution back to its source.
func (s *Server) handleDeleteContribution(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	result, err := s.deps.Engine.DeleteContribution(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, applog.OpRefund, err)
		return
	}

	ledgerLog(r).LogLedgerOperation(r.Context(), "Contribution deleted", applog.ComponentContribution, applog.OpRefund,
		userID, result.Goal.ID, result.Contribution.FromAccountID, result.Refunded.Cents)
	NewJSONResponse().Body(deleteContributionJSON{
		Contribution:        toContributionJSON(result.Contribution),
		Goal:                toGoalJSON(result.Goal),
		Refunded:            result.Refunded.String(),
		RetainedInSavings:   result.RetainedInSavings.String(),
		TransactionsRemoved: result.TransactionsRemoved,
	}).Write(w)
}
