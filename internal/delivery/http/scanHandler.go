package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/therickybobbeh/depscan/internal/archive"
	"github.com/therickybobbeh/depscan/internal/model"
	"github.com/therickybobbeh/depscan/internal/model/responses"
	"github.com/therickybobbeh/depscan/internal/registry"
	"github.com/therickybobbeh/depscan/internal/scanner"
)

// ScanHandler exposes the scan lifecycle over HTTP. All job state flows
// through the registry; the handler never holds any itself.
type ScanHandler struct {
	orchestrator *scanner.Orchestrator
	registry     *registry.Registry
	archiver     *archive.MinioArchive
	limits       Limits
	log          *logrus.Logger
}

func NewScanHandler(orch *scanner.Orchestrator, reg *registry.Registry, limits Limits, log *logrus.Logger) *ScanHandler {
	return &ScanHandler{orchestrator: orch, registry: reg, limits: limits, log: log}
}

// SetArchiver enables the archived-report location endpoint.
func (h *ScanHandler) SetArchiver(a *archive.MinioArchive) { h.archiver = a }

type scanRequest struct {
	ManifestFiles map[string]string  `json:"manifest_files" binding:"required"`
	Options       *model.ScanOptions `json:"options"`
}

// StartScan accepts a scan request and returns the job id immediately.
func (h *ScanHandler) StartScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.JSONErrorResponse(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.ManifestFiles) == 0 {
		responses.JSONErrorResponse(c, http.StatusBadRequest, "invalid_request", "manifest_files must not be empty")
		return
	}
	if h.limits.MaxFilesPerScan > 0 && len(req.ManifestFiles) > h.limits.MaxFilesPerScan {
		responses.JSONErrorResponse(c, http.StatusBadRequest, "invalid_request", "too many files in one request")
		return
	}
	opts := model.DefaultScanOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	jobID, err := h.orchestrator.StartScan(req.ManifestFiles, opts)
	if err != nil {
		if errors.Is(err, model.ErrBusy) {
			responses.JSONErrorResponse(c, http.StatusServiceUnavailable, "busy", nil)
			return
		}
		h.log.WithError(err).Error("failed to start scan")
		responses.JSONErrorResponse(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

// GetStatus returns a progress snapshot for a job.
func (h *ScanHandler) GetStatus(c *gin.Context) {
	progress, err := h.registry.Progress(c.Param("job_id"))
	if err != nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", nil)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GetReport returns the final report, or 409 while the job is still
// running.
func (h *ScanHandler) GetReport(c *gin.Context) {
	report, status, err := h.registry.Report(c.Param("job_id"))
	if err != nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", nil)
		return
	}
	if !status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready", "status": status})
		return
	}
	if report == nil {
		progress, perr := h.registry.Progress(c.Param("job_id"))
		detail := ""
		if perr == nil {
			detail = progress.ErrorMessage
		}
		responses.JSONErrorResponse(c, http.StatusUnprocessableEntity, "scan_failed", detail)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetArchiveLocation returns the object key a completed report was archived
// under, when archiving is enabled.
func (h *ScanHandler) GetArchiveLocation(c *gin.Context) {
	if h.archiver == nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", "archiving disabled")
		return
	}
	jobID := c.Param("job_id")
	_, status, err := h.registry.Report(jobID)
	if err != nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", nil)
		return
	}
	if status != model.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready", "status": status})
		return
	}
	responses.JSONSuccessResponse(c, http.StatusOK, "report archived", gin.H{
		"object_key": h.archiver.ObjectKey(jobID),
	})
}

// CancelScan cancels an in-flight job.
func (h *ScanHandler) CancelScan(c *gin.Context) {
	err := h.registry.Cancel(c.Param("job_id"))
	if err != nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// ListJobs snapshots every live job in the registry.
func (h *ScanHandler) ListJobs(c *gin.Context) {
	jobs := h.registry.List()
	responses.JSONSuccessResponse(c, http.StatusOK, "jobs listed", gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
