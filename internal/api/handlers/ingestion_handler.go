package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

type IngestionHandler struct {
	ingest *services.IngestService
	jobs   *services.JobService
	logger *slog.Logger
}

func NewIngestionHandler(ingest *services.IngestService, jobs *services.JobService, logger *slog.Logger) *IngestionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionHandler{ingest: ingest, jobs: jobs, logger: logger.With("component", "http")}
}

// Routes mounts the ingestion API. Callers must run JWTMiddleware first.
func (h *IngestionHandler) Routes(r chi.Router) {
	r.Post("/upload/presigned", h.PresignedUpload)
	r.Post("/upload/confirm", h.ConfirmUpload)
	r.Post("/upload/batch", h.BatchUpload)
	r.Post("/upload/batch/confirm", h.ConfirmBatchUpload)
	r.Post("/upload/folder", h.FolderUpload)
	r.Post("/scrape", h.Scrape)
	r.Post("/text", h.Text)
	r.Post("/qa-pairs", h.QAPairs)
	r.Post("/rss", h.RssFeed)

	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobId}", h.GetJob)
	r.Delete("/jobs/{jobId}", h.CancelJob)
	r.Post("/jobs/{jobId}/retry", h.RetryJob)
	r.Get("/quota", h.Quota)
	r.Get("/queue/depth", h.QueueDepth)
}

func (h *IngestionHandler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := middleware.OrganizationID(r.Context())
	if !ok {
		http.Error(w, "organization not found in context", http.StatusUnauthorized)
	}
	return orgID, ok
}

func (h *IngestionHandler) PresignedUpload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.PresignedUploadRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.CreatePresignedUpload(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IngestionHandler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.ConfirmUploadRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.ConfirmUpload(r.Context(), orgID, req.JobID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) BatchUpload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.BatchUploadRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.CreateBatchUpload(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IngestionHandler) ConfirmBatchUpload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.ConfirmUploadRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.ConfirmBatchUpload(r.Context(), orgID, req.JobID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) FolderUpload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.FolderUploadRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.CreateFolderUpload(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IngestionHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.WebScrapeRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.SubmitScrape(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) Text(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.TextInputRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.SubmitText(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) QAPairs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.QAPairsRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.SubmitQAPairs(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) RssFeed(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req models.RssFeedRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.ingest.SubmitRssFeed(r.Context(), orgID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var filter models.JobFilter
	if s := strings.ToUpper(q.Get("status")); s != "" {
		status := models.JobStatus(s)
		if !knownStatus(status) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_status", Message: "unknown job status " + s})
			return
		}
		filter.Status = &status
	}
	if kb := q.Get("knowledgeBaseId"); kb != "" {
		filter.KnowledgeBaseID = &kb
	}
	var err error
	if filter.Page, err = intParam(q.Get("page"), 0); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_page", Message: err.Error()})
		return
	}
	if filter.Size, err = intParam(q.Get("size"), 20); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_size", Message: err.Error()})
		return
	}

	page, err := h.jobs.ListJobs(r.Context(), orgID, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *IngestionHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	resp, err := h.jobs.GetJob(r.Context(), orgID, chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IngestionHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobId")
	if _, err := h.jobs.CancelJob(r.Context(), orgID, jobID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CancelJobResponse{Success: true, Message: "Job " + jobID + " cancelled"})
}

func (h *IngestionHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	resp, err := h.jobs.RetryJob(r.Context(), orgID, chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestionHandler) Quota(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	resp, err := h.jobs.GetQuota(r.Context(), orgID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IngestionHandler) QueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.jobs.QueueDepth(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, depth)
}

func knownStatus(s models.JobStatus) bool {
	switch s {
	case models.JobStatusPending, models.JobStatusUploading, models.JobStatusQueued, models.JobStatusProcessing,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		return true
	}
	return false
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
