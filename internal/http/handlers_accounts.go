package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"risparmi/internal/core"
	applog "risparmi/internal/log"
)

type createAccountRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Balance string `json:"balance"`
	Color   string `json:"color"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Accounts.ListAccounts(r.Context(), s.userID(r))
	if err != nil {
		writeLedgerError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(mapSlice(accounts, toAccountJSON)).Write(w)
}

// handleCreateAccount registers an account with its opening balance.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		resp.Write(w)
		return
	}

	balance, resp := parseOptionalAmount("balance", req.Balance)
	if resp != nil {
		resp.Write(w)
		return
	}

	account := core.Account{
		ID:        uuid.NewString(),
		UserID:    s.userID(r),
		Name:      sanitizeInput(req.Name),
		Type:      core.AccountType(sanitizeInput(req.Type)),
		Balance:   balance,
		Color:     sanitizeInput(req.Color),
		CreatedAt: time.Now().UTC(),
	}
	if err := account.Validate(); err != nil {
		writeLedgerError(w, r, applog.OpCreate, err)
		return
	}
	if err := s.deps.Accounts.CreateAccount(r.Context(), account); err != nil {
		writeLedgerError(w, r, applog.OpCreate, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/accounts/"+account.ID).
		Body(toAccountJSON(account)).
		Write(w)
}
