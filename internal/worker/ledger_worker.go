package worker

import (
	"context"
	"fmt"
	"log/slog"

	"risparmi/internal/amqp"
	"risparmi/internal/services"
)

// DriftChecker inspects one user's ledger for drift.
type DriftChecker interface {
	Check(ctx context.Context, userID string) (services.ResyncReport, error)
}

// LedgerWorker verifies the ledger of every user that a committed change
// touched. It is the consumer side of the ledger events.
type LedgerWorker struct {
	checker DriftChecker
}

func NewLedgerWorker(checker DriftChecker) *LedgerWorker {
	return &LedgerWorker{checker: checker}
}

// HandleLedgerEvent processes a single ledger event from AMQP
func (w *LedgerWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.DebugContext(ctx, "Processing ledger event",
		"type", event.Type,
		"user_id", event.UserID,
		"goal_id", event.GoalID)

	// A resync is itself the outcome of a check.
	if event.Type == amqp.EventLedgerResynced {
		return nil
	}
	if event.UserID == "" {
		slog.WarnContext(ctx, "Ledger event without user, skipping", "type", event.Type)
		return nil
	}

	report, err := w.checker.Check(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("check ledger of %s: %w", event.UserID, err)
	}

	if report.HasDrift() {
		slog.WarnContext(ctx, "Ledger drift detected",
			"user_id", event.UserID,
			"trigger", event.Type,
			"goal_drifts", len(report.Goals),
			"account_drifts", len(report.Accounts),
			"missing_accounts", len(report.MissingAccounts),
			"healed", report.Applied,
			"error", report.Err())
	}
	return nil
}
