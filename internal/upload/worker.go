package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/clean"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/envelope"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/objectstore"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/orchestrate"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription"
)

// Worker runs the D→E→G pipeline (transcription, cleaning, orchestration)
// for jobs that have reached "queued", per §4.10.5.
type Worker struct {
	store        *Store
	objects      *objectstore.Store
	transcriber  transcription.Provider
	cleaner      *clean.Cleaner
	orchestrator *orchestrate.Orchestrator
}

// NewWorker builds a Worker from its collaborators.
func NewWorker(store *Store, objects *objectstore.Store, transcriber transcription.Provider, cleaner *clean.Cleaner, orchestrator *orchestrate.Orchestrator) *Worker {
	return &Worker{store: store, objects: objects, transcriber: transcriber, cleaner: cleaner, orchestrator: orchestrator}
}

// Process runs the full worker pipeline for jobID, per §4.10.5's seven
// steps. It never panics the caller; any unrecoverable failure is recorded
// on the job row as a terminal "failed" transition.
func (w *Worker) Process(ctx context.Context, job Job) {
	// Step 1: claim via CAS. If another worker already claimed it, drop.
	if err := w.store.CompareAndTransition(ctx, job.ID, StatusQueued, StatusProcessing); err != nil {
		if errors.Is(err, ErrWrongState) {
			slog.Info("upload worker: job already claimed, dropping", "job_id", job.ID)
			return
		}
		slog.Error("upload worker: claim transition failed", "job_id", job.ID, "error", err)
		return
	}

	result, err := w.run(ctx, job)
	if err != nil {
		apiErr, ok := apierr.As(err)
		code, msg := string(apierr.CodeInternal), err.Error()
		if ok {
			code, msg = string(apiErr.Code), apiErr.Detail
		}
		if termErr := w.store.CompleteTerminal(ctx, job.ID, StatusFailed, "", code, msg); termErr != nil {
			slog.Error("upload worker: failed-terminal transition failed", "job_id", job.ID, "error", termErr)
		}
		return
	}

	if termErr := w.store.CompleteTerminal(ctx, job.ID, StatusSucceeded, result, "", ""); termErr != nil {
		slog.Error("upload worker: succeeded-terminal transition failed", "job_id", job.ID, "error", termErr)
	}
}

// run executes steps 2-6 and returns a brief result_summary for step 7.
// Step 6 (the orchestrator) never fails this job: its own lane isolation
// absorbs per-lane failures, per §4.10.5.
func (w *Worker) run(ctx context.Context, job Job) (string, error) {
	readURL, err := w.objects.PresignGet(ctx, job.FileKey)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeStorageUnavailable, "presign read url failed", err)
	}

	mimeType := job.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	txResult, err := w.transcriber.TranscribeFromURL(ctx, readURL, mimeType)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeTranscriptionFailed, "transcription failed", err)
	}

	cleanedTranscript := w.cleaner.Clean(ctx, txResult.RawTranscript)

	env := envelope.New(job.TenantID, job.UserID, envelope.InteractionTranscript,
		envelope.Content{Text: cleanedTranscript, Format: envelope.FormatDiarized},
		envelope.SourceUpload, job.InteractionID, job.TraceID)

	orchestrateCtx := context.WithoutCancel(ctx)
	w.orchestrator.Run(orchestrateCtx, orchestrate.Params{
		TenantID:        job.TenantID,
		UserID:          job.UserID,
		UserName:        job.UserName,
		InteractionID:   job.InteractionID,
		TraceID:         job.TraceID,
		InteractionType: env.InteractionType,
		Content:         env.Content,
		Source:          env.Source,
		AccountID:       job.AccountID,
	})

	return fmt.Sprintf("transcribed %d chars, cleaned %d chars", len(txResult.RawTranscript), len(cleanedTranscript)), nil
}
