package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"risparmi/internal/core"
	"risparmi/internal/records"
)

const recurringNote = "Recurring contribution"

type ScheduleRequest struct {
	UserID          string
	GoalID          string
	SourceAccountID string
	Amount          core.Money
	Every           core.RepetitionTypes
	StartDate       core.Date
	EndDate         core.Date
}

// RecurringProcessor turns due recurring contribution templates into
// contributions. It goes through ContributionEngine like a user would, so
// every ledger rule applies.
type RecurringProcessor struct {
	store  records.Store
	engine *ContributionEngine
}

func NewRecurringProcessor(store records.Store, engine *ContributionEngine) *RecurringProcessor {
	return &RecurringProcessor{
		store:  store,
		engine: engine,
	}
}

// Schedule stores a new recurring contribution template.
func (p *RecurringProcessor) Schedule(ctx context.Context, req ScheduleRequest) (core.RecurringContribution, error) {
	goal, err := userGoal(ctx, p.store, req.UserID, req.GoalID)
	if err != nil {
		return core.RecurringContribution{}, err
	}
	if goal.IsCompleted {
		return core.RecurringContribution{}, core.ErrGoalAlreadyCompleted
	}
	if req.SourceAccountID == "" {
		req.SourceAccountID = goal.ContributionAccountID
	}
	if req.SourceAccountID == goal.SavingsAccountID {
		return core.RecurringContribution{}, core.ErrSelfContribution
	}
	if _, err := userAccount(ctx, p.store, req.UserID, req.SourceAccountID); err != nil {
		return core.RecurringContribution{}, fmt.Errorf("source account: %w", err)
	}

	rc := core.RecurringContribution{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		GoalID:          req.GoalID,
		SourceAccountID: req.SourceAccountID,
		Amount:          req.Amount,
		Every:           req.Every,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := rc.Validate(); err != nil {
		return core.RecurringContribution{}, err
	}
	if err := p.store.CreateRecurring(ctx, rc); err != nil {
		return core.RecurringContribution{}, fmt.Errorf("save recurring contribution: %w", err)
	}
	return rc, nil
}

func (p *RecurringProcessor) List(ctx context.Context, userID string) ([]core.RecurringContribution, error) {
	return p.store.ListRecurring(ctx, userID)
}

func (p *RecurringProcessor) SetActive(ctx context.Context, userID, id string, active bool) error {
	list, err := p.store.ListRecurring(ctx, userID)
	if err != nil {
		return err
	}
	for _, rc := range list {
		if rc.ID == id {
			return p.store.SetRecurringActive(ctx, id, active)
		}
	}
	return fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
}

// ProcessDue runs every template due at now and returns how many
// contributions were made. Templates whose goal is gone or completed are
// deactivated; other failures are logged and retried on the next run.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.engine == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.store.ListActiveRecurring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get active recurring contributions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring contributions",
		"total_active", len(templates),
		"processing_date", core.DateOf(now).String())

	processed := 0
	for _, rc := range templates {
		checker, err := GetDuenessChecker(rc.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping recurring contribution", "id", rc.ID, "error", err)
			continue
		}
		if !checker.IsDue(rc.LastExecution, now, rc.StartDate) {
			continue
		}

		_, err = p.engine.Contribute(ctx, ContributeRequest{
			UserID:          rc.UserID,
			GoalID:          rc.GoalID,
			Amount:          rc.Amount,
			SourceAccountID: rc.SourceAccountID,
			Note:            recurringNote,
			Date:            core.DateOf(now),
		})
		switch {
		case errors.Is(err, core.ErrGoalNotFound), errors.Is(err, core.ErrGoalAlreadyCompleted):
			slog.InfoContext(ctx, "Deactivating recurring contribution", "id", rc.ID, "goal_id", rc.GoalID, "reason", err)
			if err := p.store.SetRecurringActive(ctx, rc.ID, false); err != nil {
				slog.ErrorContext(ctx, "Failed to deactivate recurring contribution", "id", rc.ID, "error", err)
			}
			continue
		case err != nil:
			slog.ErrorContext(ctx, "Failed to contribute from recurring template",
				"recurring_id", rc.ID,
				"goal_id", rc.GoalID,
				"error", err)
			continue
		}

		if err := p.store.MarkRecurringExecuted(ctx, rc.ID, now); err != nil {
			// the contribution landed; the next run may repeat it
			slog.ErrorContext(ctx, "Failed to update last execution date",
				"recurring_id", rc.ID,
				"error", err)
		}

		processed++
		slog.InfoContext(ctx, "Contributed from recurring template",
			"recurring_id", rc.ID,
			"goal_id", rc.GoalID,
			"amount_cents", rc.Amount.Cents,
			"frequency", rc.Every)
	}

	slog.InfoContext(ctx, "Recurring contribution processing complete",
		"processed", processed,
		"total_checked", len(templates))

	return processed, nil
}
