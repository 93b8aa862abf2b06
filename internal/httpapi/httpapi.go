// Package httpapi implements the Synchronous Ingestion Endpoints (§4.8):
// a text-clean endpoint and a multipart batch-upload endpoint, both driving
// the cleaner and orchestrator directly without the upload job state
// machine. The live session and upload job routes are registered by their
// own packages.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/clean"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/envelope"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/identity"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/orchestrate"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription"
)

// MaxBatchUploadSize is the §4.8 size ceiling for the batch-upload endpoint.
const MaxBatchUploadSize = 100 << 20 // ~100 MB

// Handler serves the synchronous text-clean and batch-upload endpoints.
type Handler struct {
	resolver     *identity.Resolver
	cleaner      *clean.Cleaner
	orchestrator *orchestrate.Orchestrator
	transcriber  transcription.Provider
}

// NewHandler builds a Handler.
func NewHandler(resolver *identity.Resolver, cleaner *clean.Cleaner, orchestrator *orchestrate.Orchestrator, transcriber transcription.Provider) *Handler {
	return &Handler{resolver: resolver, cleaner: cleaner, orchestrator: orchestrator, transcriber: transcriber}
}

type textCleanRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Source   string         `json:"source"`
}

type textCleanResponse struct {
	RawText       string    `json:"raw_text"`
	CleanedText   string    `json:"cleaned_text"`
	InteractionID uuid.UUID `json:"interaction_id"`
}

// TextClean implements POST /text/clean (§4.8).
func (h *Handler) TextClean(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolver.Resolve(r)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	var req textCleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationEmptyText, "request body must be valid JSON"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationEmptyText, "text must not be empty or whitespace"))
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	cleanedText := h.cleaner.Clean(r.Context(), req.Text)

	h.orchestrator.Run(context.WithoutCancel(r.Context()), orchestrate.Params{
		TenantID:        rc.TenantID,
		UserID:          rc.UserID,
		UserName:        rc.UserName,
		InteractionID:   rc.InteractionID,
		TraceID:         rc.TraceID,
		InteractionType: envelope.InteractionNote,
		Content:         envelope.Content{Text: cleanedText, Format: envelope.FormatPlain},
		Source:          envelope.Source(source),
		Extras:          req.Metadata,
		AccountID:       rc.AccountID,
	})

	writeJSON(w, http.StatusOK, textCleanResponse{
		RawText:       req.Text,
		CleanedText:   cleanedText,
		InteractionID: rc.InteractionID,
	})
}

type batchProcessResponse struct {
	RawTranscript     string    `json:"raw_transcript"`
	CleanedTranscript string    `json:"cleaned_transcript"`
	InteractionID     uuid.UUID `json:"interaction_id"`
}

// BatchProcess implements POST /batch/process (§4.8), a multipart upload
// whose single file field is transcribed, cleaned, and orchestrated
// synchronously.
func (h *Handler) BatchProcess(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolver.Resolve(r)
	if err != nil {
		apierr.WriteHTTP(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBatchUploadSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationTooLarge, "request body too large"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationMissingField, "file field is required"))
		return
	}
	defer file.Close()

	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	mimeType, err := transcription.MimeTypeForExtension(ext)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationUnsupportedFormat, "unsupported audio format: "+ext))
		return
	}
	if header.Size > MaxBatchUploadSize {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationTooLarge, "file exceeds maximum upload size"))
		return
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationTooLarge, "file exceeds maximum upload size"))
		return
	}
	if len(audio) > MaxBatchUploadSize {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationTooLarge, "file exceeds maximum upload size"))
		return
	}

	detected := mimetype.Detect(audio)
	if !detected.Is(mimeType) {
		apierr.WriteHTTP(w, apierr.New(apierr.CodeValidationUnsupportedFormat,
			fmt.Sprintf("file content (%s) does not match its %q extension", detected.String(), ext)))
		return
	}

	result, err := h.transcriber.TranscribeBytes(r.Context(), audio, mimeType)
	if err != nil {
		apierr.WriteHTTP(w, apierr.Wrap(apierr.CodeTranscriptionFailed, "transcription failed", err))
		return
	}

	cleanedTranscript := h.cleaner.Clean(r.Context(), result.RawTranscript)

	h.orchestrator.Run(context.WithoutCancel(r.Context()), orchestrate.Params{
		TenantID:        rc.TenantID,
		UserID:          rc.UserID,
		UserName:        rc.UserName,
		InteractionID:   rc.InteractionID,
		TraceID:         rc.TraceID,
		InteractionType: envelope.InteractionBatchUpload,
		Content:         envelope.Content{Text: cleanedTranscript, Format: envelope.FormatDiarized},
		Source:          envelope.SourceUpload,
		AccountID:       rc.AccountID,
	})

	writeJSON(w, http.StatusOK, batchProcessResponse{
		RawTranscript:     result.RawTranscript,
		CleanedTranscript: cleanedTranscript,
		InteractionID:     rc.InteractionID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Register attaches the synchronous ingestion routes to mux (§6.1).
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /text/clean", h.TextClean)
	mux.HandleFunc("POST /batch/process", h.BatchProcess)
}
