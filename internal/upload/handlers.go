package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/identity"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/objectstore"
)

// Handler serves the three upload endpoints (§4.10.1-3, §6.1) and dispatches
// claimed jobs to a Worker.
type Handler struct {
	store    *Store
	objects  *objectstore.Store
	resolver *identity.Resolver
	worker   *Worker
}

// NewHandler builds a Handler.
func NewHandler(store *Store, objects *objectstore.Store, resolver *identity.Resolver, worker *Worker) *Handler {
	return &Handler{store: store, objects: objects, resolver: resolver, worker: worker}
}

type initRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type initResponse struct {
	UploadURL string    `json:"upload_url"`
	FileKey   string    `json:"file_key"`
	JobID     uuid.UUID `json:"job_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Init implements POST /upload/init (§4.10.1).
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolver.Resolve(r)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	var req initRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	jobID := uuid.New()
	fileKey, err := FileKey(rc.TenantID, jobID, req.Filename)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	job := Job{
		ID:            jobID,
		TenantID:      rc.TenantID,
		UserID:        rc.UserID,
		PgUserID:      rc.PgUserID,
		UserName:      rc.UserName,
		JobType:       JobTypeAudioTranscription,
		Status:        StatusQueued,
		FileKey:       fileKey,
		FileName:      req.Filename,
		MimeType:      req.MimeType,
		FileSize:      req.FileSize,
		InteractionID: uuid.New(),
		TraceID:       rc.TraceID,
		AccountID:     rc.AccountID,
	}
	if err := h.store.Create(r.Context(), job); err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	contentType := req.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uploadURL, expiresAt, err := h.objects.PresignPut(r.Context(), fileKey, contentType)
	if err != nil {
		apierr.WriteHTTP(w, apierr.Wrap(apierr.CodeStorageUnavailable, "object store unavailable", err))
		return
	}

	writeJSON(w, http.StatusOK, initResponse{
		UploadURL: uploadURL,
		FileKey:   fileKey,
		JobID:     jobID,
		ExpiresAt: expiresAt,
	})
}

type completeRequest struct {
	FileKey  string `json:"file_key"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type completeResponse struct {
	JobID         uuid.UUID `json:"job_id"`
	InteractionID uuid.UUID `json:"interaction_id"`
	Status        Status    `json:"status"`
}

// Complete implements POST /upload/complete (§4.10.2). On success it enqueues
// background processing via Worker.Process, run detached from the request's
// context so the job is not abandoned if the client disconnects.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolver.Resolve(r)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileKey == "" {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationMissingField, "file_key is required"))
		return
	}

	job, err := h.store.GetByFileKey(r.Context(), rc.TenantID, req.FileKey)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeNotFound, "upload job not found"))
		return
	}
	if job.Status != StatusQueued {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeConflict, "upload job is not in queued state"))
		return
	}

	if req.FileName != "" {
		job.FileName = req.FileName
	}
	if req.MimeType != "" {
		job.MimeType = req.MimeType
	}
	if req.FileSize != 0 {
		job.FileSize = req.FileSize
	}

	bg := context.WithoutCancel(r.Context())
	go h.worker.Process(bg, job)

	writeJSON(w, http.StatusOK, completeResponse{
		JobID:         job.ID,
		InteractionID: job.InteractionID,
		Status:        StatusQueued,
	})
}

type statusResponse struct {
	JobID         uuid.UUID  `json:"job_id"`
	InteractionID uuid.UUID  `json:"interaction_id"`
	Status        Status     `json:"status"`
	ResultSummary string     `json:"result_summary,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Status implements GET /upload/status/{job_id} (§4.10.3).
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolver.Resolve(r)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	jobIDRaw := r.PathValue("job_id")
	jobID, err := uuid.Parse(jobIDRaw)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeNotFound, "upload job not found"))
		return
	}

	job, err := h.store.GetByID(r.Context(), rc.TenantID, jobID)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeNotFound, "upload job not found"))
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		JobID:         job.ID,
		InteractionID: job.InteractionID,
		Status:        job.Status,
		ResultSummary: job.ResultSummary,
		ErrorCode:     job.ErrorCode,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Register attaches the three upload job routes to mux (§6.1).
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload/init", h.Init)
	mux.HandleFunc("POST /upload/complete", h.Complete)
	mux.HandleFunc("GET /upload/status/{job_id}", h.Status)
}
