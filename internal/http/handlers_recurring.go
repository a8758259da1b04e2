package http

import (
	"net/http"

	"risparmi/internal/core"
	applog "risparmi/internal/log"
	"risparmi/internal/services"
)

type scheduleRecurringRequest struct {
	GoalID          string `json:"goal_id"`
	SourceAccountID string `json:"source_account_id"`
	Amount          string `json:"amount"`
	Every           string `json:"every"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Recurring.List(r.Context(), s.userID(r))
	if err != nil {
		writeLedgerError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(list, toRecurringJSON)).Write(w)
}

func (s *Server) handleScheduleRecurring(w http.ResponseWriter, r *http.Request) {
	var req scheduleRecurringRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		resp.Write(w)
		return
	}

	amount, resp := parseAmount("amount", req.Amount)
	if resp != nil {
		resp.Write(w)
		return
	}
	start, resp := parseOptionalDate("start_date", req.StartDate)
	if resp != nil {
		resp.Write(w)
		return
	}
	end, resp := parseOptionalDate("end_date", req.EndDate)
	if resp != nil {
		resp.Write(w)
		return
	}

	rc, err := s.deps.Recurring.Schedule(r.Context(), services.ScheduleRequest{
		UserID:          s.userID(r),
		GoalID:          sanitizeInput(req.GoalID),
		SourceAccountID: sanitizeInput(req.SourceAccountID),
		Amount:          amount,
		Every:           core.RepetitionTypes(sanitizeInput(req.Every)),
		StartDate:       start,
		EndDate:         end,
	})
	if err != nil {
		writeLedgerError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toRecurringJSON(rc)).Write(w)
}

func (s *Server) handleSetRecurringActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Recurring.SetActive(r.Context(), s.userID(r), r.PathValue("id"), active); err != nil {
			writeLedgerError(w, r, applog.OpUpdate, err)
			return
		}
		NewJSONResponse().Status(http.StatusNoContent).Write(w)
	}
}
