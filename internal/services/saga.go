package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"risparmi/internal/core"
)

// step is one store write of a multi-record operation and the write that
// reverses it. undo may be nil for steps that need no reversal.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga applies steps in order and remembers what landed so a failure can
// be reversed newest first.
type saga struct {
	operation string
	applied   []step
}

func newSaga(operation string) *saga {
	return &saga{operation: operation}
}

func (s *saga) run(ctx context.Context, st step) error {
	if err := st.do(ctx); err != nil {
		return fmt.Errorf("%s: %w", st.name, err)
	}
	s.applied = append(s.applied, st)
	return nil
}

// compensate reverses every applied step. It returns nil when all undos
// succeeded, otherwise an error wrapping core.ErrCompensationFailed.
// Cancellation of ctx does not stop it.
func (s *saga) compensate(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.applied) - 1; i >= 0; i-- {
		st := s.applied[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			slog.ErrorContext(ctx, "Compensation step failed",
				"operation", s.operation,
				"step", st.name,
				"cause", cause,
				"error", err)
			errs = append(errs, fmt.Errorf("undo %s: %w", st.name, err))
		}
	}
	s.applied = nil
	if len(errs) == 0 {
		slog.WarnContext(ctx, "Operation rolled back", "operation", s.operation, "cause", cause)
		return nil
	}
	return fmt.Errorf("%s: %w: %w", s.operation, core.ErrCompensationFailed, errors.Join(append([]error{cause}, errs...)...))
}

// fail rolls back and returns the error the caller should see.
func (s *saga) fail(ctx context.Context, cause error) error {
	if err := s.compensate(ctx, cause); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", s.operation, cause)
}
