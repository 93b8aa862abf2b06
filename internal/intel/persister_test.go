package intel

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

// mockTx implements the pgx.Tx interface used by Persister. Only QueryRow,
// Exec, Commit, and Rollback carry test-meaningful behavior; the rest exist
// solely to satisfy the interface and are never called by Persist.
type mockTx struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitFunc   func(ctx context.Context) error
	rollbackFunc func(ctx context.Context) error
	committed    bool
	rolledBack   bool
}

func (tx *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return tx, nil }

func (tx *mockTx) Commit(ctx context.Context) error {
	tx.committed = true
	if tx.commitFunc != nil {
		return tx.commitFunc(ctx)
	}
	return nil
}

func (tx *mockTx) Rollback(ctx context.Context) error {
	tx.rolledBack = true
	if tx.rollbackFunc != nil {
		return tx.rollbackFunc(ctx)
	}
	return nil
}

func (tx *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx.queryRowFunc != nil {
		return tx.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (tx *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.execFunc != nil {
		return tx.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (tx *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("mockTx: Query not implemented")
}

func (tx *mockTx) QueryFunc(ctx context.Context, sql string, args []any, scans []any, f func(pgx.QueryFuncRow) error) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("mockTx: QueryFunc not implemented")
}

func (tx *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("mockTx: CopyFrom not implemented")
}

func (tx *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (tx *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (tx *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("mockTx: Prepare not implemented")
}

func (tx *mockTx) Conn() *pgx.Conn { return nil }

// mockDB implements the DB interface for testing.
type mockDB struct {
	beginFunc func(ctx context.Context) (pgx.Tx, error)
	tx        *mockTx
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFunc != nil {
		return m.beginFunc(ctx)
	}
	return m.tx, nil
}

func personaRow(id string) func(ctx context.Context, sql string, args ...any) pgx.Row {
	return func(_ context.Context, sql string, _ ...any) pgx.Row {
		if strings.Contains(sql, "FROM personas") {
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*string)) = id
				return nil
			}}
		}
		return &mockRow{scanFunc: func(_ ...any) error { return nil }}
	}
}

func basicAnalysis() *Analysis {
	return &Analysis{
		Summaries:   Summaries{Title: "t", Headline: "h", Brief: "b", Detailed: "d", Spotlight: "s"},
		KeyTakeaways: []string{"ship faster"},
	}
}

func TestPersister_Persist_Success(t *testing.T) {
	t.Parallel()

	var execCount int
	tx := &mockTx{
		queryRowFunc: personaRow("persona-1"),
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			execCount++
			return pgconn.CommandTag{}, nil
		},
	}
	db := &mockDB{tx: tx}

	p := NewPersister(db)
	err := p.Persist(context.Background(), basicAnalysis(), PersistParams{
		InteractionID:        uuid.New(),
		TenantID:             uuid.New(),
		InteractionTimestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Persist() unexpected error: %v", err)
	}
	if !tx.committed {
		t.Error("expected transaction to be committed")
	}
	if tx.rolledBack {
		t.Error("committed transaction should not also be marked rolled back")
	}
	// 5 summary rows + 1 key_takeaway insight row.
	if execCount != 6 {
		t.Errorf("exec count = %d, want 6 (5 summaries + 1 insight)", execCount)
	}
}

func TestPersister_Persist_DefaultsPersonaCode(t *testing.T) {
	t.Parallel()

	var capturedCode string
	tx := &mockTx{
		queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
			capturedCode = args[0].(string)
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*string)) = "persona-1"
				return nil
			}}
		},
	}
	db := &mockDB{tx: tx}

	p := NewPersister(db)
	err := p.Persist(context.Background(), basicAnalysis(), PersistParams{InteractionID: uuid.New(), TenantID: uuid.New()})
	if err != nil {
		t.Fatalf("Persist() unexpected error: %v", err)
	}
	if capturedCode != DefaultPersonaCode {
		t.Errorf("persona code = %q, want %q", capturedCode, DefaultPersonaCode)
	}
}

func TestPersister_Persist_UnknownPersonaRollsBack(t *testing.T) {
	t.Parallel()

	tx := &mockTx{
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &mockRow{scanFunc: func(_ ...any) error { return pgx.ErrNoRows }}
		},
	}
	db := &mockDB{tx: tx}

	p := NewPersister(db)
	err := p.Persist(context.Background(), basicAnalysis(), PersistParams{PersonaCode: "nonexistent"})
	if err == nil {
		t.Fatal("Persist() expected error for unknown persona, got nil")
	}
	if !tx.rolledBack {
		t.Error("expected transaction to be rolled back")
	}
	if tx.committed {
		t.Error("failed transaction should not be committed")
	}
}

func TestPersister_Persist_InsertFailureRollsBackWithoutCommit(t *testing.T) {
	t.Parallel()

	tx := &mockTx{
		queryRowFunc: personaRow("persona-1"),
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("constraint violation")
		},
	}
	db := &mockDB{tx: tx}

	p := NewPersister(db)
	err := p.Persist(context.Background(), basicAnalysis(), PersistParams{})
	if err == nil {
		t.Fatal("Persist() expected error, got nil")
	}
	if tx.committed {
		t.Error("failed insert should not commit")
	}
	if !tx.rolledBack {
		t.Error("expected rollback after insert failure")
	}
}

func TestPersister_Persist_BeginFailure(t *testing.T) {
	t.Parallel()

	db := &mockDB{beginFunc: func(_ context.Context) (pgx.Tx, error) {
		return nil, errors.New("connection refused")
	}}

	p := NewPersister(db)
	err := p.Persist(context.Background(), basicAnalysis(), PersistParams{})
	if err == nil {
		t.Fatal("Persist() expected error when Begin fails, got nil")
	}
}

func TestPersister_Persist_CommitFailure(t *testing.T) {
	t.Parallel()

	tx := &mockTx{
		queryRowFunc: personaRow("persona-1"),
		commitFunc:   func(_ context.Context) error { return errors.New("commit failed") },
	}
	db := &mockDB{tx: tx}

	p := NewPersister(db)
	err := p.Persist(context.Background(), basicAnalysis(), PersistParams{})
	if err == nil {
		t.Fatal("Persist() expected error when Commit fails, got nil")
	}
}

func TestPersister_Persist_WritesAllInsightCategories(t *testing.T) {
	t.Parallel()

	var execCount int
	tx := &mockTx{
		queryRowFunc: personaRow("persona-1"),
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			execCount++
			return pgconn.CommandTag{}, nil
		},
	}
	db := &mockDB{tx: tx}

	analysis := &Analysis{
		Summaries:          Summaries{Title: "t", Headline: "h", Brief: "b", Detailed: "d", Spotlight: "s"},
		ActionItems:        []ActionItem{{Description: "ship it"}},
		Decisions:          []Decision{{Decision: "use postgres"}},
		Risks:              []Risk{{Risk: "latency", Severity: SeverityHigh}},
		KeyTakeaways:       []string{"fast iteration"},
		ProductFeedback:    []TextItem{{Text: "want dark mode"}},
		MarketIntelligence: []TextItem{{Text: "competitor shipped X"}},
	}

	p := NewPersister(db)
	if err := p.Persist(context.Background(), analysis, PersistParams{}); err != nil {
		t.Fatalf("Persist() unexpected error: %v", err)
	}
	// 5 summaries + 6 insights (one per category).
	if execCount != 11 {
		t.Errorf("exec count = %d, want 11", execCount)
	}
}
