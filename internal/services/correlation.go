package services

import (
	"context"
	"fmt"
	"strings"

	"risparmi/internal/core"
	"risparmi/internal/records"
)

// Descriptions written by the ledger. Correlate relies on them.
const (
	contributionPrefix = "Savings contribution: "
	refundPrefix       = "Savings refund: "
)

func contributionDescription(goalName string) string { return contributionPrefix + goalName }
func refundDescription(goalName string) string       { return refundPrefix + goalName }

// isLedgerDescription reports whether desc was written by the ledger for
// a goal named goalName.
func isLedgerDescription(desc, goalName string) bool {
	if strings.TrimSpace(goalName) == "" {
		return false
	}
	if !strings.HasPrefix(desc, contributionPrefix) && !strings.HasPrefix(desc, refundPrefix) {
		return false
	}
	return strings.Contains(strings.ToLower(desc), strings.ToLower(goalName))
}

// Correlate returns the transactions belonging to goal: those whose parent
// is one of contributions, plus ledger-generated ones naming the goal.
// Each transaction appears once, in store order.
//
// A description match only counts behind contributionPrefix or
// refundPrefix; a user transaction that merely mentions the goal name is
// not claimed.
func Correlate(ctx context.Context, store records.TransactionStore, userID string, goal core.SavingsGoal, contributions []core.Contribution) ([]core.Transaction, error) {
	ids := make([]string, len(contributions))
	for i, c := range contributions {
		ids[i] = c.ID
	}

	byParent, err := store.TransactionsByParent(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("correlate by parent: %w", err)
	}
	byName, err := store.TransactionsByDescription(ctx, userID, goal.Name)
	if err != nil {
		return nil, fmt.Errorf("correlate by description: %w", err)
	}

	seen := make(map[string]struct{}, len(byParent)+len(byName))
	var out []core.Transaction
	add := func(t core.Transaction) {
		if _, dup := seen[t.ID]; dup {
			return
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	for _, t := range byParent {
		add(t)
	}
	for _, t := range byName {
		if isLedgerDescription(t.Description, goal.Name) {
			add(t)
		}
	}
	return out, nil
}
