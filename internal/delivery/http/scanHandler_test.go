package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therickybobbeh/depscan/internal/generator"
	"github.com/therickybobbeh/depscan/internal/model"
	"github.com/therickybobbeh/depscan/internal/osv"
	"github.com/therickybobbeh/depscan/internal/registry"
	"github.com/therickybobbeh/depscan/internal/resolver"
	"github.com/therickybobbeh/depscan/internal/scanner"
)

// emptyOSV answers every batch with no vulnerabilities.
func emptyOSV(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/querybatch", func(w http.ResponseWriter, r *http.Request) {
		var req osv.BatchRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := osv.BatchResponse{Results: make([]osv.BatchResult, len(req.Queries))}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testRouter(t *testing.T) (*gin.Engine, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	srv := emptyOSV(t)
	reg := registry.New(4, log)
	client := osv.NewClient(srv.URL, nil)
	orch := scanner.New(resolver.NewResolver(log), client, generator.NewRegistry(), reg, log)

	router := gin.New()
	cfg := &RouteConfig{
		Router:       router,
		ScanHandler:  NewScanHandler(orch, reg, DefaultLimits(), log),
		CacheHandler: NewCacheHandler(nil, log),
		Limits:       DefaultLimits(),
	}
	cfg.Setup()
	return router, reg
}

func postScan(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScanLifecycle(t *testing.T) {
	router, reg := testRouter(t)

	w := postScan(t, router, `{
		"manifest_files": {"package.json": "{\"dependencies\": {\"left-pad\": \"1.3.0\"}}"},
		"options": {"include_dev_dependencies": true}
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var started struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.JobID)

	// Status is always readable.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/"+started.JobID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var progress model.ScanProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, started.JobID, progress.JobID)

	// Wait for completion, then fetch the report.
	require.Eventually(t, func() bool {
		p, err := reg.Progress(started.JobID)
		return err == nil && p.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report/"+started.JobID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var report model.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, model.StatusCompleted, report.Status)
	assert.Equal(t, 1, report.TotalDependencies)
	assert.Zero(t, report.VulnerableCount)
}

func TestScanRejectsBadRequests(t *testing.T) {
	router, _ := testRouter(t)

	w := postScan(t, router, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postScan(t, router, `{"manifest_files": {}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Over the per-request file limit.
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files["requirements"+string(rune('a'+i))+".txt"] = ""
	}
	body, _ := json.Marshal(map[string]interface{}{"manifest_files": files})
	w = postScan(t, router, string(body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportNotReady(t *testing.T) {
	router, reg := testRouter(t)
	jobID, err := reg.Create(func() {})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report/"+jobID, nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["error"])
}

func TestUnknownJob(t *testing.T) {
	router, _ := testRouter(t)

	for _, path := range []string{"/status/nope", "/report/nope"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/scan/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelEndpoint(t *testing.T) {
	router, reg := testRouter(t)
	cancelled := false
	jobID, err := reg.Create(func() { cancelled = true })
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/scan/"+jobID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, cancelled)
}

func TestJobsListing(t *testing.T) {
	router, reg := testRouter(t)
	_, err := reg.Create(func() {})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestBusyResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	srv := emptyOSV(t)
	reg := registry.New(1, log)
	client := osv.NewClient(srv.URL, nil)
	orch := scanner.New(resolver.NewResolver(log), client, generator.NewRegistry(), reg, log)

	router := gin.New()
	cfg := &RouteConfig{
		Router:       router,
		ScanHandler:  NewScanHandler(orch, reg, DefaultLimits(), log),
		CacheHandler: NewCacheHandler(nil, log),
		Limits:       DefaultLimits(),
	}
	cfg.Setup()

	// Occupy the single slot directly through the registry.
	_, err := reg.Create(func() {})
	require.NoError(t, err)

	w := postScan(t, router, `{"manifest_files": {"package.json": "{}"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"busy"`)
}
