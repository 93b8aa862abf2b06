// Package upload implements the Upload Job Subsystem (§4.10): a
// three-endpoint state machine backed by the upload_jobs table, a
// presigned-URL contract with the object store, and a background worker
// that runs the transcription→cleaning→orchestration pipeline from a
// stored object key.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
)

// DB is the database interface used by Store. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobType enumerates the kinds of work an upload job performs.
type JobType string

const (
	JobTypeAudioTranscription JobType = "audio_transcription"
	JobTypeTextProcessing     JobType = "text_processing"
)

// Status enumerates the state-machine states, per §4.10.4.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned when no job matches the (tenant, key) requested,
// including cross-tenant lookups — callers must map it to 404, never 403,
// per §4.10.2.
var ErrNotFound = errors.New("upload: job not found")

// ErrWrongState is returned when a transition's CAS precondition does not
// hold, e.g. completing a job that's already queued->processing elsewhere.
var ErrWrongState = errors.New("upload: job not in expected state")

// Job is the durable record of one async upload, per §3.1's UploadJob entity.
type Job struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	UserID       string
	PgUserID     string
	UserName     string
	JobType      JobType
	Status       Status
	FileKey      string
	FileName     string
	MimeType     string
	FileSize     int64
	InteractionID uuid.UUID
	TraceID      string
	AccountID    string
	ErrorMessage string
	ErrorCode    string
	ResultSummary string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// safeFilenamePattern rejects any filename containing a path separator, per
// §4.10.1 step 2.
func safeFilename(name string) (string, error) {
	if name == "" {
		return "upload.bin", nil
	}
	if strings.ContainsAny(name, "/\\") || path.Base(name) != name {
		return "", apierr.New(apierr.CodeValidationMissingField, "filename must not contain path separators")
	}
	return name, nil
}

// FileKey computes the tenant-scoped object-store key for a job, per
// §4.10.1 step 2.
func FileKey(tenantID, jobID uuid.UUID, filename string) (string, error) {
	safe, err := safeFilename(filename)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tenant/%s/uploads/%s/%s", tenantID, jobID, safe), nil
}

// Store is the persistence-backed repository for upload jobs.
type Store struct {
	db DB
}

// NewStore builds a Store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job row in the queued state.
func (s *Store) Create(ctx context.Context, job Job) error {
	const query = `
		INSERT INTO upload_jobs (
			id, tenant_id, user_id, pg_user_id, user_name, job_type, status,
			file_key, file_name, mime_type, file_size, interaction_id, trace_id, account_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := s.db.Exec(ctx, query,
		job.ID, job.TenantID, job.UserID, nullable(job.PgUserID), nullable(job.UserName),
		job.JobType, job.Status, job.FileKey, nullable(job.FileName), nullable(job.MimeType),
		nullableInt(job.FileSize), job.InteractionID, nullable(job.TraceID), nullable(job.AccountID))
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, "insert upload job failed", err)
	}
	return nil
}

// GetByFileKey looks up a job by (tenant_id, file_key). Returns ErrNotFound
// for both unknown keys and cross-tenant access — callers must not
// distinguish the two in any caller-visible way.
func (s *Store) GetByFileKey(ctx context.Context, tenantID uuid.UUID, fileKey string) (Job, error) {
	const query = `
		SELECT id, tenant_id, user_id, COALESCE(pg_user_id,''), COALESCE(user_name,''),
			job_type, status, file_key, COALESCE(file_name,''), COALESCE(mime_type,''),
			COALESCE(file_size,0), interaction_id, COALESCE(trace_id,''), COALESCE(account_id,''),
			COALESCE(error_message,''), COALESCE(error_code,''), COALESCE(result_summary,''),
			created_at, updated_at, started_at, completed_at
		FROM upload_jobs WHERE tenant_id = $1 AND file_key = $2`
	return s.scanOne(s.db.QueryRow(ctx, query, tenantID, fileKey))
}

// GetByID looks up a job by (tenant_id, id), same cross-tenant semantics as
// GetByFileKey.
func (s *Store) GetByID(ctx context.Context, tenantID, jobID uuid.UUID) (Job, error) {
	const query = `
		SELECT id, tenant_id, user_id, COALESCE(pg_user_id,''), COALESCE(user_name,''),
			job_type, status, file_key, COALESCE(file_name,''), COALESCE(mime_type,''),
			COALESCE(file_size,0), interaction_id, COALESCE(trace_id,''), COALESCE(account_id,''),
			COALESCE(error_message,''), COALESCE(error_code,''), COALESCE(result_summary,''),
			created_at, updated_at, started_at, completed_at
		FROM upload_jobs WHERE tenant_id = $1 AND id = $2`
	return s.scanOne(s.db.QueryRow(ctx, query, tenantID, jobID))
}

func (s *Store) scanOne(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.TenantID, &j.UserID, &j.PgUserID, &j.UserName,
		&j.JobType, &j.Status, &j.FileKey, &j.FileName, &j.MimeType,
		&j.FileSize, &j.InteractionID, &j.TraceID, &j.AccountID,
		&j.ErrorMessage, &j.ErrorCode, &j.ResultSummary,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, apierr.Wrap(apierr.CodeStorageUnavailable, "query upload job failed", err)
	}
	return j, nil
}

// CompareAndTransition atomically moves a job from expected to next, per
// §4.10.4/§4.10.6's CAS guarantee. Returns ErrWrongState (zero rows
// affected) when another worker or caller already moved the job elsewhere.
func (s *Store) CompareAndTransition(ctx context.Context, jobID uuid.UUID, expected, next Status) error {
	var query string
	switch next {
	case StatusProcessing:
		query = `UPDATE upload_jobs SET status = $1, started_at = now(), updated_at = now() WHERE id = $2 AND status = $3`
	default:
		query = `UPDATE upload_jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`
	}

	tag, err := s.db.Exec(ctx, query, next, jobID, expected)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, "transition upload job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongState
	}
	return nil
}

// CompleteTerminal transitions a job from processing to a terminal state
// (succeeded/failed), recording the terminal outcome fields. Conditional on
// the prior state being exactly "processing" (ErrWrongState otherwise) — the
// worker is the only writer of terminal states.
func (s *Store) CompleteTerminal(ctx context.Context, jobID uuid.UUID, next Status, resultSummary, errorCode, errorMessage string) error {
	const query = `
		UPDATE upload_jobs
		SET status = $1, completed_at = now(), updated_at = now(),
			result_summary = $2, error_code = $3, error_message = $4
		WHERE id = $5 AND status = $6`

	tag, err := s.db.Exec(ctx, query, next, nullable(resultSummary), nullable(errorCode), nullable(errorMessage),
		jobID, StatusProcessing)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, "terminal transition failed", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongState
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}
