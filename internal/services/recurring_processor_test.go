package services

import (
	"errors"
	"testing"
	"time"

	"risparmi/internal/core"
)

func TestScheduleRecurring(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	p := NewRecurringProcessor(f.store, f.engine)
	g := f.goal(t, "Vacation", 120000)

	rc, err := p.Schedule(f.ctx, ScheduleRequest{
		UserID:    testUser,
		GoalID:    g.ID,
		Amount:    core.Money{Cents: 5000},
		Every:     core.Monthly,
		StartDate: core.NewDate(2025, 1, 31),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if rc.SourceAccountID != f.checking.ID || !rc.Active {
		t.Errorf("template = %+v", rc)
	}

	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr error
	}{
		{
			name:    "source is savings",
			req:     ScheduleRequest{UserID: testUser, GoalID: g.ID, SourceAccountID: f.savings.ID, Amount: core.Money{Cents: 1}, Every: core.Daily, StartDate: core.NewDate(2025, 1, 1)},
			wantErr: core.ErrSelfContribution,
		},
		{
			name:    "unknown goal",
			req:     ScheduleRequest{UserID: testUser, GoalID: "nope", Amount: core.Money{Cents: 1}, Every: core.Daily, StartDate: core.NewDate(2025, 1, 1)},
			wantErr: core.ErrGoalNotFound,
		},
		{
			name:    "zero amount",
			req:     ScheduleRequest{UserID: testUser, GoalID: g.ID, Every: core.Daily, StartDate: core.NewDate(2025, 1, 1)},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "bad repetition",
			req:     ScheduleRequest{UserID: testUser, GoalID: g.ID, Amount: core.Money{Cents: 1}, Every: "hourly", StartDate: core.NewDate(2025, 1, 1)},
			wantErr: core.ErrInvalidRepetition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Schedule(f.ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	list, err := p.List(f.ctx, testUser)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %d, %v", len(list), err)
	}
	if err := p.SetActive(f.ctx, testUser, "nope", false); !errors.Is(err, core.ErrRecurringNotFound) {
		t.Errorf("SetActive unknown: %v", err)
	}
}

func TestProcessDueMonthly(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	p := NewRecurringProcessor(f.store, f.engine)
	g := f.goal(t, "Vacation", 120000)

	_, err := p.Schedule(f.ctx, ScheduleRequest{
		UserID:    testUser,
		GoalID:    g.ID,
		Amount:    core.Money{Cents: 5000},
		Every:     core.Monthly,
		StartDate: core.NewDate(2025, 1, 31),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	runs := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2024, 12, 31, 8, 0, 0, 0, time.UTC), 0}, // before start
		{time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC), 0},
		{time.Date(2025, 2, 27, 8, 0, 0, 0, time.UTC), 0},
		{time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC), 1}, // clamped to February's last day
		{time.Date(2025, 3, 30, 8, 0, 0, 0, time.UTC), 0},
		{time.Date(2025, 3, 31, 8, 0, 0, 0, time.UTC), 1},
	}
	for _, r := range runs {
		got, err := p.ProcessDue(f.ctx, r.now)
		if err != nil {
			t.Fatalf("process %s: %v", r.now, err)
		}
		if got != r.want {
			t.Errorf("process %s = %d, want %d", r.now, got, r.want)
		}
	}

	if got := f.current(t, g.ID); got != 15000 {
		t.Errorf("current = %d, want 15000", got)
	}
	for _, c := range f.contributions(t, g.ID) {
		if c.Note != recurringNote || c.FromAccountID != f.checking.ID {
			t.Errorf("contribution = %+v", c)
		}
	}
	f.assertConsistent(t)
}

func TestProcessDueDeactivatesFinishedGoals(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	p := NewRecurringProcessor(f.store, f.engine)
	done := f.goal(t, "Done", 1000)
	gone := f.goal(t, "Gone", 1000)

	for _, g := range []core.SavingsGoal{done, gone} {
		_, err := p.Schedule(f.ctx, ScheduleRequest{
			UserID:    testUser,
			GoalID:    g.ID,
			Amount:    core.Money{Cents: 100},
			Every:     core.Daily,
			StartDate: core.NewDate(2025, 1, 1),
		})
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	if _, err := f.manager.MarkCompleted(f.ctx, testUser, done.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.manager.Delete(f.ctx, testUser, gone.ID, DeleteOptions{}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, err := p.ProcessDue(f.ctx, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC))
	if err != nil || n != 0 {
		t.Fatalf("process = %d, %v", n, err)
	}
	list, _ := p.List(f.ctx, testUser)
	for _, rc := range list {
		if rc.Active {
			t.Errorf("template for goal %s still active", rc.GoalID)
		}
	}
}

func TestProcessDueKeepsTemplateOnFailure(t *testing.T) {
	f := newFixture(t, OverfundAllow)
	p := NewRecurringProcessor(f.store, f.engine)
	g := f.goal(t, "Vacation", 1000000)

	_, err := p.Schedule(f.ctx, ScheduleRequest{
		UserID:          testUser,
		GoalID:          g.ID,
		SourceAccountID: f.backup.ID,
		Amount:          core.Money{Cents: 300000},
		Every:           core.Weekly,
		StartDate:       core.NewDate(2025, 1, 1),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	n, err := p.ProcessDue(f.ctx, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	if err != nil || n != 0 {
		t.Fatalf("process = %d, %v; want 0 on insufficient balance", n, err)
	}
	list, _ := p.List(f.ctx, testUser)
	if !list[0].Active || !list[0].LastExecution.IsZero() {
		t.Errorf("template = %+v, want active and never executed", list[0])
	}
}
