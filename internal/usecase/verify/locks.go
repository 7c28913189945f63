package verify

import "sync"

// ReportLocks is an advisory in-process single-flight guard keyed by
// report ID. Concurrent runs for the same report are safe but wasteful, so
// the second caller is turned away instead of recomputing.
type ReportLocks struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewReportLocks constructs an empty guard.
func NewReportLocks() *ReportLocks {
	return &ReportLocks{inflight: make(map[string]struct{})}
}

// TryAcquire claims the lock for a report ID. It returns false when a run
// is already in flight; otherwise the caller must invoke the returned
// release function when done.
func (l *ReportLocks) TryAcquire(reportID string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.inflight[reportID]; busy {
		return nil, false
	}
	l.inflight[reportID] = struct{}{}

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.inflight, reportID)
	}
	return release, true
}
