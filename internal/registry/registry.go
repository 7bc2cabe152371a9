// Package registry tracks in-flight and recently finished scan jobs. It is
// the only synchronization point between the HTTP surface and the scan
// orchestrators: all job state mutation goes through it, and readers only
// ever see snapshots.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/therickybobbeh/depscan/internal/model"
)

const (
	// DefaultMaxConcurrent bounds simultaneous scans; further requests are
	// rejected, not queued.
	DefaultMaxConcurrent = 4

	// DefaultRetention keeps terminal jobs readable before eviction.
	DefaultRetention = time.Hour

	sweepInterval = time.Minute
)

type entry struct {
	progress   model.ScanProgress
	report     *model.Report
	cancel     context.CancelFunc
	terminalAt time.Time
}

// Registry is safe for concurrent use.
type Registry struct {
	mu            sync.Mutex
	jobs          map[string]*entry
	maxConcurrent int
	retention     time.Duration
	log           *logrus.Logger
}

func New(maxConcurrent int, log *logrus.Logger) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Registry{
		jobs:          make(map[string]*entry),
		maxConcurrent: maxConcurrent,
		retention:     DefaultRetention,
		log:           log,
	}
}

// Create allocates a job id in PENDING state, holding the scan's cancel
// function. Returns ErrBusy when the concurrency limit is reached.
func (r *Registry) Create(cancel context.CancelFunc) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := 0
	for _, e := range r.jobs {
		if !e.progress.Status.Terminal() {
			active++
		}
	}
	if active >= r.maxConcurrent {
		return "", fmt.Errorf("%w: %d scans already running", model.ErrBusy, active)
	}
	jobID := uuid.New().String()
	r.jobs[jobID] = &entry{
		progress: model.ScanProgress{
			JobID:     jobID,
			Status:    model.StatusPending,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	return jobID, nil
}

// Update applies a mutation to a job's progress under the registry lock.
// Illegal status transitions and progress regressions are dropped so
// readers always observe a monotonic sequence.
func (r *Registry) Update(jobID string, mutate func(p *model.ScanProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return
	}
	prev := e.progress
	next := prev.Clone()
	mutate(&next)
	if next.Status != prev.Status && !prev.Status.CanTransition(next.Status) {
		r.log.WithFields(logrus.Fields{
			"job_id": jobID, "from": prev.Status, "to": next.Status,
		}).Warn("illegal job status transition dropped")
		return
	}
	if next.ProgressPercent < prev.ProgressPercent {
		next.ProgressPercent = prev.ProgressPercent
	}
	if next.Status.Terminal() && !prev.Status.Terminal() {
		now := time.Now().UTC()
		next.CompletedAt = &now
		e.terminalAt = now
	}
	e.progress = next
}

// Progress returns a snapshot, or ErrNotFound for unknown/evicted ids.
func (r *Registry) Progress(jobID string) (model.ScanProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return model.ScanProgress{}, model.ErrNotFound
	}
	return e.progress.Clone(), nil
}

// SetReport attaches the final report to a job.
func (r *Registry) SetReport(jobID string, report *model.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[jobID]; ok {
		e.report = report
	}
}

// Report returns the final report. The job's current status is returned
// alongside so callers can distinguish "still running" from "unknown".
func (r *Registry) Report(jobID string) (*model.Report, model.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return nil, "", model.ErrNotFound
	}
	return e.report, e.progress.Status, nil
}

// Cancel signals a job's orchestrator to stop. Cancelling an already
// terminal or already cancelled job is a no-op.
func (r *Registry) Cancel(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return model.ErrNotFound
	}
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// List snapshots every live job, newest first.
func (r *Registry) List() []model.ScanProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ScanProgress, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.progress.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// StartSweeper evicts jobs past retention until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for id, e := range r.jobs {
		if e.progress.Status.Terminal() && now.Sub(e.terminalAt) > r.retention {
			delete(r.jobs, id)
			r.log.WithField("job_id", id).Debug("evicted finished job")
		}
	}
}

// SetRetention overrides the retention window (used by tests).
func (r *Registry) SetRetention(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retention = d
}
