package service

import (
	"context"
	"sync"
	"time"
)

// ActiveRun describes a job run in progress.
type ActiveRun struct {
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"startedAt"`
}

// activeRuns keeps at most one run per job id and lets shutdown wait for
// the runs in flight.
type activeRuns struct {
	mu   sync.Mutex
	runs map[string]ActiveRun
	wg   sync.WaitGroup
	now  func() time.Time
}

// begin marks jobID as running. It returns false if a run is already in
// progress.
func (a *activeRuns) begin(jobID, trigger string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runs == nil {
		a.runs = make(map[string]ActiveRun)
	}
	if _, busy := a.runs[jobID]; busy {
		return false
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	a.runs[jobID] = ActiveRun{Trigger: trigger, StartedAt: now()}
	a.wg.Add(1)
	return true
}

// end releases jobID. Only call it after a successful begin.
func (a *activeRuns) end(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runs, jobID)
	a.wg.Done()
}

// get returns the run in progress for jobID, if any.
func (a *activeRuns) get(jobID string) (ActiveRun, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[jobID]
	return r, ok
}

// wait blocks until no run is in progress or ctx is done.
func (a *activeRuns) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
