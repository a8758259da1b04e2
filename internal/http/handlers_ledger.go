package http

import (
	"net/http"

	applog "risparmi/internal/log"
)

// handleDetectDrift reports drift between goal amounts, contributions and
// savings balances without changing anything.
func (s *Server) handleDetectDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Goals.DetectDrift(r.Context(), s.userID(r))
	if err != nil {
		writeLedgerError(w, r, applog.OpResync, err)
		return
	}
	NewJSONResponse().Body(toResyncReportJSON(report)).Write(w)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	report, err := s.deps.Goals.EmergencyResync(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, applog.OpResync, err)
		return
	}

	ledgerLog(r).LogLedgerOperation(r.Context(), "Ledger resynced", applog.ComponentLedger, applog.OpResync,
		userID, "", "", 0)
	NewJSONResponse().Body(toResyncReportJSON(report)).Write(w)
}
