package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Port:        "0",
		JWTSecret:   testSecret,
		CORSOrigins: []string{"http://localhost:3000"},
		Workers:     1,
		Ingestion:   config.DefaultIngestion(),
		Tiers:       models.DefaultTierLimits(),
	}
	a, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func authorized(t *testing.T, method, path, body, org string) *http.Request {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, org, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestIngestionRoutesRequireToken(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/quota", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitTextThroughServer(t *testing.T) {
	a := newTestApp(t)
	org := uuid.NewString()
	h := a.Server.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authorized(t, http.MethodPost, "/api/ingestion/text",
		`{"knowledgeBaseId":"kb-1","content":"Plain text that is long enough to ingest."}`, org))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var job models.IngestionJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusQueued, job.Status)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authorized(t, http.MethodGet, "/api/ingestion/quota", "", org))
	require.Equal(t, http.StatusOK, rec.Code)

	var quota models.QuotaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quota))
	assert.Equal(t, models.TierTrial, quota.Tier)
	assert.EqualValues(t, 1, quota.MonthlyJobsUsed)
	assert.Equal(t, 1, quota.ActiveJobs)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authorized(t, http.MethodGet, "/api/ingestion/jobs/"+job.ID, "", uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, rec.Code, "other tenants cannot see the job")
}

func TestCORSPreflight(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/ingestion/jobs/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
