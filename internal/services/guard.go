package services

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// goalGuard admits one ledger operation per goal at a time. A second
// caller is turned away instead of queued.
type goalGuard struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newGoalGuard() *goalGuard {
	return &goalGuard{sems: make(map[string]*semaphore.Weighted)}
}

func (g *goalGuard) tryAcquire(goalID string) (release func(), ok bool) {
	g.mu.Lock()
	sem, found := g.sems[goalID]
	if !found {
		sem = semaphore.NewWeighted(1)
		g.sems[goalID] = sem
	}
	g.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}

// forget drops the entry of a deleted goal.
func (g *goalGuard) forget(goalID string) {
	g.mu.Lock()
	delete(g.sems, goalID)
	g.mu.Unlock()
}
