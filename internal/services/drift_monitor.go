package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DriftMonitorConfig holds configuration for the drift monitor
type DriftMonitorConfig struct {
	// Interval is how often every user is checked (default: 1h)
	Interval time.Duration

	// UserIDs are the users checked on each tick
	UserIDs []string

	// AutoHeal runs EmergencyResync when drift is found instead of only
	// reporting it
	AutoHeal bool
}

// DefaultDriftMonitorConfig returns sensible defaults
func DefaultDriftMonitorConfig() DriftMonitorConfig {
	return DriftMonitorConfig{
		Interval: time.Hour,
	}
}

// Reconciler is the part of GoalManager the monitor drives.
type Reconciler interface {
	DetectDrift(ctx context.Context, userID string) (ResyncReport, error)
	EmergencyResync(ctx context.Context, userID string) (ResyncReport, error)
}

// DriftMonitor periodically checks the ledger for drift.
type DriftMonitor struct {
	reconciler Reconciler
	config     DriftMonitorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    map[string]ResyncReport
}

func NewDriftMonitor(reconciler Reconciler, config DriftMonitorConfig) *DriftMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultDriftMonitorConfig().Interval
	}
	return &DriftMonitor{
		reconciler: reconciler,
		config:     config,
		last:       make(map[string]ResyncReport),
	}
}

// Start begins the check loop. Returns an error if already running.
func (m *DriftMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("drift monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.runLoop(ctx)

	slog.InfoContext(ctx, "Drift monitor started",
		"interval", m.config.Interval,
		"users", len(m.config.UserIDs),
		"auto_heal", m.config.AutoHeal)

	return nil
}

// Stop gracefully stops the monitor and waits for the running check.
func (m *DriftMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Drift monitor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Drift monitor stop timed out")
		return ctx.Err()
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	return nil
}

func (m *DriftMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *DriftMonitor) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// check immediately on startup
	m.CheckAll(ctx)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll checks every configured user.
func (m *DriftMonitor) CheckAll(ctx context.Context) {
	for _, userID := range m.config.UserIDs {
		if _, err := m.Check(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Drift check failed", "user_id", userID, "error", err)
		}
	}
}

// Check looks for drift in one user's ledger and heals it when AutoHeal
// is set. The returned report is also kept as LastReport.
func (m *DriftMonitor) Check(ctx context.Context, userID string) (ResyncReport, error) {
	report, err := m.reconciler.DetectDrift(ctx, userID)
	if err != nil {
		return report, err
	}
	if report.HasDrift() && m.config.AutoHeal {
		slog.WarnContext(ctx, "Healing ledger drift", "user_id", userID, "error", report.Err())
		report, err = m.reconciler.EmergencyResync(ctx, userID)
		if err != nil {
			return report, err
		}
	}

	m.mu.Lock()
	m.last[userID] = report
	m.mu.Unlock()
	return report, nil
}

// LastReport returns the most recent report for userID.
func (m *DriftMonitor) LastReport(userID string) (ResyncReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.last[userID]
	return r, ok
}
