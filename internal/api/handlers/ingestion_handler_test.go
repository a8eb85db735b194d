package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core/memstore"
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/core/quota"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

const (
	tenantA = "3a0e5f7c-0001-4a5b-8c9d-1e2f3a4b5c6d"
	tenantB = "3a0e5f7c-0002-4a5b-8c9d-1e2f3a4b5c6d"
)

type api struct {
	store  *memstore.Store
	quota  *quota.Service
	router http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memstore.New()
	quotas := quota.NewService(store, store, nil, nil, nil)
	ingest := services.NewIngestService(store, store, store, store.Objects(), quotas, nil, config.DefaultIngestion(), nil)
	jobs := services.NewJobService(store, store, store, quotas, nil, nil)
	h := NewIngestionHandler(ingest, jobs, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if org := req.Header.Get("X-Test-Org"); org != "" {
				req = req.WithContext(middleware.WithOrganizationID(req.Context(), org))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/ingestion", h.Routes)
	return &api{store: store, quota: quotas, router: r}
}

func (a *api) do(t *testing.T, method, path, org string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if org != "" {
		req.Header.Set("X-Test-Org", org)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func errorKey(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestSubmitTextAndFetch(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodPost, "/api/ingestion/text", tenantA, models.TextInputRequest{Content: "A sufficiently long text body."})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job models.IngestionJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusQueued, job.Status)

	rec = a.do(t, http.MethodGet, "/api/ingestion/jobs/"+job.ID, tenantA, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/ingestion/jobs/"+job.ID, tenantB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/ingestion/jobs/"+job.ID+"/retry", tenantA, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, messages.CannotRetry, errorKey(t, rec))

	rec = a.do(t, http.MethodDelete, "/api/ingestion/jobs/"+job.ID, tenantA, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var cancelled models.CancelJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.True(t, cancelled.Success)
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodPost, "/api/ingestion/text", tenantA, models.TextInputRequest{Content: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, messages.ContentTooShort, errorKey(t, rec))

	rec = a.do(t, http.MethodPost, "/api/ingestion/text", tenantA, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/ingestion/upload/presigned", tenantA, models.PresignedUploadRequest{
		FileName: "huge.pdf", ContentType: "application/pdf", FileSize: 1 << 30,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, messages.FileSizeExceeded, errorKey(t, rec))

	rec = a.do(t, http.MethodPost, "/api/ingestion/upload/presigned", tenantA, models.PresignedUploadRequest{
		FileName: "negative.pdf", ContentType: "application/pdf", FileSize: -5 << 30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, messages.FileSizeInvalid, errorKey(t, rec))

	// TRIAL tenants get one job in flight.
	rec = a.do(t, http.MethodPost, "/api/ingestion/rss", tenantA, models.RssFeedRequest{FeedURL: "https://example.com/feed"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = a.do(t, http.MethodPost, "/api/ingestion/scrape", tenantA, models.WebScrapeRequest{URL: "https://example.com"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, messages.ConcurrentJobsExceeded, errorKey(t, rec))

	rec = a.do(t, http.MethodGet, "/api/ingestion/quota", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadFlows(t *testing.T) {
	a := newAPI(t)
	_, err := a.quota.UpdateTier(context.Background(), tenantA, models.TierStarter)
	require.NoError(t, err)

	rec := a.do(t, http.MethodPost, "/api/ingestion/upload/presigned", tenantA, models.PresignedUploadRequest{
		FileName: "guide.pdf", ContentType: "application/pdf", FileSize: 1024,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up models.PresignedUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.True(t, strings.HasPrefix(up.UploadURL, "memory://"))

	rec = a.do(t, http.MethodPost, "/api/ingestion/upload/confirm", tenantA, models.ConfirmUploadRequest{JobID: up.JobID})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/ingestion/upload/batch", tenantA, models.BatchUploadRequest{Files: []models.BatchFileInfo{
		{FileName: "a.txt", ContentType: "text/plain", FileSize: 10},
		{FileName: "b.csv", ContentType: "text/csv", FileSize: 20},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch models.BatchUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.TotalFiles)

	rec = a.do(t, http.MethodPost, "/api/ingestion/upload/batch/confirm", tenantA, models.ConfirmUploadRequest{JobID: batch.BatchJobID})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/ingestion/upload/folder", tenantA, models.FolderUploadRequest{FileName: "site.tgz", FileSize: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, messages.FolderNotZip, errorKey(t, rec))
}

func TestListJobsQuery(t *testing.T) {
	a := newAPI(t)
	_, err := a.quota.UpdateTier(context.Background(), tenantA, models.TierProfessional)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := a.do(t, http.MethodPost, "/api/ingestion/qa-pairs", tenantA, models.QAPairsRequest{
			Pairs: []models.QAPair{{Question: "Why?", Answer: "Because."}},
		})
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}

	rec := a.do(t, http.MethodGet, "/api/ingestion/jobs?status=queued&size=2", tenantA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.JobPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Jobs, 2)

	rec = a.do(t, http.MethodGet, "/api/ingestion/jobs?status=DONE", tenantA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/ingestion/jobs?page=x", tenantA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/ingestion/queue/depth", tenantA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var depth models.QueueDepth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &depth))
	assert.Equal(t, 3, depth.Total)
}
