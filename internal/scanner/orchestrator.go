// Package scanner drives a scan end to end: lockfile generation, dependency
// resolution, vulnerability lookup, filtering and report assembly.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/therickybobbeh/depscan/internal/generator"
	"github.com/therickybobbeh/depscan/internal/model"
	"github.com/therickybobbeh/depscan/internal/osv"
	"github.com/therickybobbeh/depscan/internal/parser"
	"github.com/therickybobbeh/depscan/internal/registry"
	"github.com/therickybobbeh/depscan/internal/resolver"
)

// DefaultDeadline is the whole-scan soft deadline.
const DefaultDeadline = 15 * time.Minute

// cancelGrace is how long a cancelled scan waits for in-flight batches.
const cancelGrace = 5 * time.Second

// Archiver stores finished reports outside the process. Implementations
// must treat failures as non-fatal; the orchestrator only logs them.
type Archiver interface {
	ArchiveReport(ctx context.Context, report *model.Report) (string, error)
}

// Orchestrator owns the scan pipeline. One orchestrator serves every job;
// per-job state lives in the registry.
type Orchestrator struct {
	resolver   *resolver.Resolver
	client     *osv.Client
	generators *generator.Registry
	registry   *registry.Registry
	archiver   Archiver
	log        *logrus.Logger
	deadline   time.Duration
}

func New(res *resolver.Resolver, client *osv.Client, gens *generator.Registry, reg *registry.Registry, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:   res,
		client:     client,
		generators: gens,
		registry:   reg,
		log:        log,
		deadline:   DefaultDeadline,
	}
}

// SetArchiver enables best-effort report archiving.
func (o *Orchestrator) SetArchiver(a Archiver) { o.archiver = a }

// SetDeadline overrides the soft deadline (used by tests).
func (o *Orchestrator) SetDeadline(d time.Duration) {
	if d > 0 {
		o.deadline = d
	}
}

// StartScan registers a job and runs it in the background, returning the
// job id immediately. Rejected with ErrBusy at the concurrency limit.
func (o *Orchestrator) StartScan(files map[string]string, opts model.ScanOptions) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	jobID, err := o.registry.Create(cancel)
	if err != nil {
		cancel()
		return "", err
	}
	go o.run(ctx, jobID, files, opts)
	return jobID, nil
}

// RunScan registers a job and runs it synchronously, returning the final
// report.
func (o *Orchestrator) RunScan(ctx context.Context, files map[string]string, opts model.ScanOptions) (*model.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	jobID, err := o.registry.Create(cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	o.run(runCtx, jobID, files, opts)
	report, status, err := o.registry.Report(jobID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		progress, perr := o.registry.Progress(jobID)
		if perr != nil {
			return nil, perr
		}
		return nil, fmt.Errorf("scan %s: %s", status, progress.ErrorMessage)
	}
	return report, nil
}

// Progress exposes the registry's snapshot for a job id.
func (o *Orchestrator) Progress(jobID string) (model.ScanProgress, error) {
	return o.registry.Progress(jobID)
}

// run executes the scan pipeline for one job. No error escapes: every
// failure path transitions the job to FAILED with a one-line message.
func (o *Orchestrator) run(jobCtx context.Context, jobID string, files map[string]string, opts model.ScanOptions) {
	started := time.Now()
	ctx, cancelDeadline := context.WithTimeout(jobCtx, o.deadline)
	defer cancelDeadline()

	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("job_id", jobID).Errorf("scan panicked: %v", r)
			o.fail(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	o.setProgress(jobID, model.StatusRunning, 0, "starting")

	var (
		report  *model.Report
		execErr error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("internal error: %v", r)
			}
		}()
		report, execErr = o.execute(ctx, jobID, files, opts, started)
	}()

	select {
	case <-done:
	case <-jobCtx.Done():
		// Stop initiating work and give in-flight batches a short grace
		// period to settle before declaring the job failed.
		select {
		case <-done:
		case <-time.After(cancelGrace):
		}
	}

	if jobCtx.Err() != nil {
		o.fail(jobID, "cancelled")
		return
	}
	if execErr != nil {
		switch {
		case errors.Is(execErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			o.fail(jobID, "timeout")
		default:
			o.fail(jobID, truncate(execErr.Error(), 512))
		}
		return
	}

	o.registry.SetReport(jobID, report)
	o.registry.Update(jobID, func(p *model.ScanProgress) {
		p.Status = model.StatusCompleted
		p.ProgressPercent = 100
		p.CurrentStep = "done"
		p.TotalDependencies = report.TotalDependencies
		p.VulnerabilitiesFound = report.VulnerableCount
	})

	if o.archiver != nil {
		if key, err := o.archiver.ArchiveReport(context.Background(), report); err != nil {
			o.log.WithField("job_id", jobID).Warnf("report archive failed: %v", err)
		} else {
			o.log.WithFields(logrus.Fields{"job_id": jobID, "object_key": key}).Info("report archived")
		}
	}
}

// execute runs the pipeline stages and assembles the report.
func (o *Orchestrator) execute(ctx context.Context, jobID string, files map[string]string, opts model.ScanOptions, started time.Time) (*model.Report, error) {
	var warnings []string

	files, genWarnings := o.generateLockfiles(ctx, files)
	warnings = append(warnings, genWarnings...)
	o.setProgress(jobID, model.StatusRunning, 5, "resolving dependencies")

	resolved, err := o.resolver.Resolve(files, opts)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, resolved.Warnings...)
	o.registry.Update(jobID, func(p *model.ScanProgress) {
		p.ProgressPercent = 10
		p.CurrentStep = "checking vulnerabilities"
		p.TotalDependencies = len(resolved.Deps)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scan, err := o.client.Scan(ctx, resolved.Deps, func(done, total int) {
		percent := 10
		if total > 0 {
			percent = 10 + (85*done)/total
		}
		o.setProgress(jobID, model.StatusRunning, percent, "checking vulnerabilities")
	})
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, scan.Warnings...)
	o.setProgress(jobID, model.StatusRunning, 95, "assembling report")

	var kept []model.Vuln
	suppressed := 0
	for _, v := range scan.Vulns {
		if opts.Ignores(v.Severity) {
			suppressed++
			continue
		}
		kept = append(kept, v)
	}
	model.SortVulns(kept)

	report := &model.Report{
		JobID:              jobID,
		Status:             model.StatusCompleted,
		TotalDependencies:  len(resolved.Deps),
		VulnerableCount:    len(kept),
		VulnerablePackages: kept,
		Dependencies:       resolved.Deps,
		SuppressedCount:    suppressed,
		Meta: model.ReportMeta{
			GeneratedAt:         time.Now().UTC(),
			Ecosystems:          resolved.Ecosystems,
			ScanDurationSeconds: time.Since(started).Seconds(),
			ScanOptions:         opts,
			SeverityCounts:      model.CountSeverities(kept),
			Warnings:            warnings,
			StaleCacheKeys:      scan.StaleKeys,
		},
	}
	return report, nil
}

// generateLockfiles invokes the pluggable generator for every manifest
// missing a companion lockfile. Failures fall through to manifest-only
// parsing with a warning.
func (o *Orchestrator) generateLockfiles(ctx context.Context, files map[string]string) (map[string]string, []string) {
	if o.generators == nil {
		return files, nil
	}
	out := make(map[string]string, len(files))
	for name, content := range files {
		out[name] = content
	}
	var warnings []string
	for name, content := range files {
		eco, ok := parser.Ecosystem(name)
		if !ok {
			continue
		}
		p, ok := parser.ForFile(name)
		if !ok || p.SupportsTransitive() {
			continue
		}
		if hasLockfile(out, eco) {
			continue
		}
		lockName, lockContent, err := o.generators.Generate(ctx, eco, name, content)
		if errors.Is(err, generator.ErrUnavailable) {
			continue
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: lockfile generation failed: %v", name, err))
			continue
		}
		out[lockName] = lockContent
	}
	return out, warnings
}

func hasLockfile(files map[string]string, eco model.Ecosystem) bool {
	for name := range files {
		fileEco, ok := parser.Ecosystem(name)
		if !ok || fileEco != eco {
			continue
		}
		if p, ok := parser.ForFile(name); ok && p.SupportsTransitive() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) setProgress(jobID string, status model.JobStatus, percent int, step string) {
	o.registry.Update(jobID, func(p *model.ScanProgress) {
		p.Status = status
		p.ProgressPercent = percent
		p.CurrentStep = step
	})
}

func (o *Orchestrator) fail(jobID, message string) {
	o.registry.Update(jobID, func(p *model.ScanProgress) {
		p.Status = model.StatusFailed
		p.ErrorMessage = message
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
