package registry

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therickybobbeh/depscan/internal/model"
)

func testRegistry(max int) *Registry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(max, log)
}

func TestCreateAndProgress(t *testing.T) {
	reg := testRegistry(4)
	jobID, err := reg.Create(func() {})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	progress, err := reg.Progress(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, progress.Status)
	assert.Zero(t, progress.ProgressPercent)
}

func TestConcurrencyLimit(t *testing.T) {
	reg := testRegistry(2)
	_, err := reg.Create(func() {})
	require.NoError(t, err)
	_, err = reg.Create(func() {})
	require.NoError(t, err)

	_, err = reg.Create(func() {})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrBusy)
}

func TestTerminalJobFreesSlot(t *testing.T) {
	reg := testRegistry(1)
	jobID, err := reg.Create(func() {})
	require.NoError(t, err)

	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusRunning })
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusCompleted })

	_, err = reg.Create(func() {})
	assert.NoError(t, err)
}

func TestIllegalTransitionDropped(t *testing.T) {
	reg := testRegistry(4)
	jobID, _ := reg.Create(func() {})
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusRunning })
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusCompleted })

	// COMPLETED is terminal; any further transition is dropped.
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusRunning })
	progress, err := reg.Progress(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, progress.Status)
	assert.NotNil(t, progress.CompletedAt)
}

func TestProgressMonotonic(t *testing.T) {
	reg := testRegistry(4)
	jobID, _ := reg.Create(func() {})
	reg.Update(jobID, func(p *model.ScanProgress) {
		p.Status = model.StatusRunning
		p.ProgressPercent = 50
	})
	reg.Update(jobID, func(p *model.ScanProgress) { p.ProgressPercent = 30 })

	progress, _ := reg.Progress(jobID)
	assert.Equal(t, 50, progress.ProgressPercent)
}

func TestCancelIdempotent(t *testing.T) {
	reg := testRegistry(4)
	calls := 0
	jobID, _ := reg.Create(func() { calls++ })

	require.NoError(t, reg.Cancel(jobID))
	require.NoError(t, reg.Cancel(jobID))
	assert.Equal(t, 2, calls) // the signal itself is idempotent downstream

	assert.ErrorIs(t, reg.Cancel("missing"), model.ErrNotFound)
}

func TestReportLifecycle(t *testing.T) {
	reg := testRegistry(4)
	jobID, _ := reg.Create(func() {})

	_, status, err := reg.Report(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusRunning })
	reg.SetReport(jobID, &model.Report{JobID: jobID, Status: model.StatusCompleted})
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusCompleted })

	report, status, err := reg.Report(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)
	require.NotNil(t, report)
	assert.Equal(t, jobID, report.JobID)
}

func TestEviction(t *testing.T) {
	reg := testRegistry(4)
	reg.SetRetention(time.Millisecond)
	jobID, _ := reg.Create(func() {})
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusRunning })
	reg.Update(jobID, func(p *model.ScanProgress) { p.Status = model.StatusFailed })

	time.Sleep(5 * time.Millisecond)
	reg.sweep()

	_, err := reg.Progress(jobID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, _, err = reg.Report(jobID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListSnapshots(t *testing.T) {
	reg := testRegistry(4)
	a, _ := reg.Create(func() {})
	b, _ := reg.Create(func() {})

	jobs := reg.List()
	ids := make(map[string]bool)
	for _, j := range jobs {
		ids[j.JobID] = true
	}
	assert.True(t, ids[a])
	assert.True(t, ids[b])
}

func TestSweeperStops(t *testing.T) {
	reg := testRegistry(4)
	ctx, cancel := context.WithCancel(context.Background())
	reg.StartSweeper(ctx)
	cancel()
}
