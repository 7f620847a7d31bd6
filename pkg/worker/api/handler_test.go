// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/database"
	"github.com/gweizero/engine/pkg/database/model"
	"github.com/gweizero/engine/pkg/worker/store"
)

type memFacade struct {
	mu   sync.Mutex
	rows map[string]model.AnalysisJob
}

func newMemFacade() *memFacade {
	return &memFacade{rows: make(map[string]model.AnalysisJob)}
}

func (f *memFacade) EnsureSchema(ctx context.Context) error { return nil }

func (f *memFacade) Upsert(ctx context.Context, job *model.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[job.ID] = *job
	return nil
}

func (f *memFacade) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *memFacade) LoadAll(ctx context.Context) ([]*model.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AnalysisJob
	for id := range f.rows {
		row := f.rows[id]
		out = append(out, &row)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (f *memFacade) WithDB(db *gorm.DB) database.AnalysisJobFacadeInterface { return f }

type stubEstimator struct {
	err error
}

func (s *stubEstimator) Run(ctx context.Context, jobID, source string) (*common.GasReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &common.GasReport{
		GasProfile: common.GasProfile{
			DeploymentGas: 400000,
			Functions:     map[string]common.FunctionGasEntry{},
		},
		ABI:          []byte(`[]`),
		ContractName: "Demo",
	}, nil
}

func setup(t *testing.T, est store.GasEstimator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	jobs := store.New(newMemFacade(), est)
	require.NoError(t, jobs.Start(ctx))

	router := gin.New()
	NewHandler(jobs).RegisterRoutes(router)
	return router
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func waitForJob(t *testing.T, router *gin.Engine, id string, want common.WorkerStatus) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.Eventually(t, func() bool {
		w := do(router, http.MethodGet, "/jobs/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		body = decode(t, w)
		return body["status"] == string(want)
	}, 2*time.Second, 10*time.Millisecond)
	return body
}

func TestHealth(t *testing.T) {
	router := setup(t, &stubEstimator{})
	w := do(router, http.MethodGet, "/jobs/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true}`, w.Body.String())
}

func TestAnalyzeLifecycle(t *testing.T) {
	router := setup(t, &stubEstimator{})

	w := do(router, http.MethodPost, "/jobs/analyze", gin.H{"code": "contract Demo {}"})
	require.Equal(t, http.StatusAccepted, w.Code)
	accepted := decode(t, w)
	id := accepted["jobId"].(string)
	assert.Equal(t, string(common.WorkerStatusQueued), accepted["status"])

	body := waitForJob(t, router, id, common.WorkerStatusCompleted)
	result := body["result"].(map[string]interface{})
	assert.EqualValues(t, 400000, result["deploymentGas"])
	// The source never leaks through the public view.
	assert.NotContains(t, body, "source_code")
	assert.NotContains(t, body, "sourceCode")
}

func TestAnalyzeRejectsEmptyCode(t *testing.T) {
	router := setup(t, &stubEstimator{})
	w := do(router, http.MethodPost, "/jobs/analyze", gin.H{"code": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnknownJob(t *testing.T) {
	router := setup(t, &stubEstimator{})
	w := do(router, http.MethodGet, "/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryFlow(t *testing.T) {
	router := setup(t, &stubEstimator{err: assert.AnError})

	w := do(router, http.MethodPost, "/jobs/analyze", gin.H{"code": "contract Flaky {}"})
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode(t, w)["jobId"].(string)
	waitForJob(t, router, id, common.WorkerStatusFailed)

	w = do(router, http.MethodPost, "/jobs/"+id+"/retry", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	retried := decode(t, w)
	assert.NotEqual(t, id, retried["jobId"])
	assert.Equal(t, id, retried["retryOf"])

	// Retrying the new, queued-or-failed-but-different job against the
	// original again is fine; retrying a non-terminal job is a conflict.
	newID := retried["jobId"].(string)
	waitForJob(t, router, newID, common.WorkerStatusFailed)
}

func TestRetryConflictOnCompleted(t *testing.T) {
	router := setup(t, &stubEstimator{})

	w := do(router, http.MethodPost, "/jobs/analyze", gin.H{"code": "contract Fine {}"})
	id := decode(t, w)["jobId"].(string)
	waitForJob(t, router, id, common.WorkerStatusCompleted)

	w = do(router, http.MethodPost, "/jobs/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListEndpoint(t *testing.T) {
	router := setup(t, &stubEstimator{})

	w := do(router, http.MethodPost, "/jobs/analyze", gin.H{"code": "contract Listed {}"})
	id := decode(t, w)["jobId"].(string)
	waitForJob(t, router, id, common.WorkerStatusCompleted)

	w = do(router, http.MethodGet, "/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["jobs"], 1)

	w = do(router, http.MethodGet, "/jobs?status=failed", nil)
	body = decode(t, w)
	assert.Empty(t, body["jobs"])

	w = do(router, http.MethodPost, "/jobs/analyze", gin.H{"code": "contract Other {}"})
	id = decode(t, w)["jobId"].(string)
	waitForJob(t, router, id, common.WorkerStatusCompleted)

	w = do(router, http.MethodGet, "/jobs?limit=1", nil)
	body = decode(t, w)
	assert.Len(t, body["jobs"], 1)
}
