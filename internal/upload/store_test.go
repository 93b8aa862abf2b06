package upload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing.
type mockDB struct {
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func TestStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var capturedSQL string
		var capturedArgs []any
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				capturedSQL = sql
				capturedArgs = args
				return pgconn.CommandTag{}, nil
			},
		}
		store := NewStore(db)
		job := Job{ID: uuid.New(), TenantID: uuid.New(), UserID: "u1", JobType: JobTypeAudioTranscription, Status: StatusQueued, FileKey: "k1"}
		if err := store.Create(context.Background(), job); err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		if !strings.Contains(capturedSQL, "INSERT INTO upload_jobs") {
			t.Errorf("SQL should contain INSERT, got: %s", capturedSQL)
		}
		if len(capturedArgs) != 14 {
			t.Errorf("expected 14 args, got %d", len(capturedArgs))
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("connection refused")
			},
		}
		store := NewStore(db)
		err := store.Create(context.Background(), Job{ID: uuid.New()})
		if err == nil {
			t.Fatal("Create() expected error, got nil")
		}
	})
}

func TestStore_GetByFileKey(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	jobID := uuid.New()
	tenantID := uuid.New()
	interactionID := uuid.New()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				if args[0] != tenantID {
					t.Errorf("tenant arg = %v, want %v", args[0], tenantID)
				}
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*uuid.UUID)) = jobID
					*(dest[1].(*uuid.UUID)) = tenantID
					*(dest[2].(*string)) = "u1"
					*(dest[3].(*string)) = "pg-1"
					*(dest[4].(*string)) = "Alice"
					*(dest[5].(*JobType)) = JobTypeAudioTranscription
					*(dest[6].(*Status)) = StatusQueued
					*(dest[7].(*string)) = "tenant/x/uploads/y/call.mp3"
					*(dest[8].(*string)) = "call.mp3"
					*(dest[9].(*string)) = "audio/mpeg"
					*(dest[10].(*int64)) = 1024
					*(dest[11].(*uuid.UUID)) = interactionID
					*(dest[12].(*string)) = "trace-1"
					*(dest[13].(*string)) = "acct-1"
					*(dest[14].(*string)) = ""
					*(dest[15].(*string)) = ""
					*(dest[16].(*string)) = ""
					*(dest[17].(*time.Time)) = fixedTime
					*(dest[18].(*time.Time)) = fixedTime
					*(dest[19].(**time.Time)) = nil
					*(dest[20].(**time.Time)) = nil
					return nil
				}}
			},
		}
		store := NewStore(db)
		job, err := store.GetByFileKey(context.Background(), tenantID, "tenant/x/uploads/y/call.mp3")
		if err != nil {
			t.Fatalf("GetByFileKey() unexpected error: %v", err)
		}
		if job.ID != jobID {
			t.Errorf("ID = %v, want %v", job.ID, jobID)
		}
		if job.Status != StatusQueued {
			t.Errorf("Status = %v, want %v", job.Status, StatusQueued)
		}
	})

	t.Run("not found maps to ErrNotFound", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error { return pgx.ErrNoRows }}
			},
		}
		store := NewStore(db)
		_, err := store.GetByFileKey(context.Background(), tenantID, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error { return errors.New("timeout") }}
			},
		}
		store := NewStore(db)
		_, err := store.GetByFileKey(context.Background(), tenantID, "k")
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want wrapped storage error", err)
		}
	})
}

func TestStore_CompareAndTransition(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var capturedSQL string
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				capturedSQL = sql
				return pgconn.NewCommandTag("UPDATE 1"), nil
			},
		}
		store := NewStore(db)
		if err := store.CompareAndTransition(context.Background(), jobID, StatusQueued, StatusProcessing); err != nil {
			t.Fatalf("CompareAndTransition() unexpected error: %v", err)
		}
		if !strings.Contains(capturedSQL, "started_at = now()") {
			t.Errorf("transition to processing should set started_at, got: %s", capturedSQL)
		}
	})

	t.Run("zero rows affected returns ErrWrongState", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("UPDATE 0"), nil
			},
		}
		store := NewStore(db)
		err := store.CompareAndTransition(context.Background(), jobID, StatusQueued, StatusProcessing)
		if !errors.Is(err, ErrWrongState) {
			t.Errorf("err = %v, want ErrWrongState", err)
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("deadlock")
			},
		}
		store := NewStore(db)
		err := store.CompareAndTransition(context.Background(), jobID, StatusQueued, StatusProcessing)
		if err == nil || errors.Is(err, ErrWrongState) {
			t.Errorf("err = %v, want wrapped storage error", err)
		}
	})
}

func TestStore_CompleteTerminal(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var capturedArgs []any
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
				capturedArgs = args
				return pgconn.NewCommandTag("UPDATE 1"), nil
			},
		}
		store := NewStore(db)
		err := store.CompleteTerminal(context.Background(), jobID, StatusSucceeded, "summary", "", "")
		if err != nil {
			t.Fatalf("CompleteTerminal() unexpected error: %v", err)
		}
		if capturedArgs[0] != StatusSucceeded {
			t.Errorf("next status arg = %v, want %v", capturedArgs[0], StatusSucceeded)
		}
	})

	t.Run("zero rows affected returns ErrWrongState", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("UPDATE 0"), nil
			},
		}
		store := NewStore(db)
		err := store.CompleteTerminal(context.Background(), jobID, StatusFailed, "", "E1", "boom")
		if !errors.Is(err, ErrWrongState) {
			t.Errorf("err = %v, want ErrWrongState", err)
		}
	})
}
