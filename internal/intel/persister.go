package intel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
)

// DB is the database interface used by Persister. *pgxpool.Pool satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SummaryLevel enumerates the five fixed summary levels, always emitted
// together per §4.6.3.
type SummaryLevel string

const (
	LevelTitle     SummaryLevel = "title"
	LevelHeadline  SummaryLevel = "headline"
	LevelBrief     SummaryLevel = "brief"
	LevelDetailed  SummaryLevel = "detailed"
	LevelSpotlight SummaryLevel = "spotlight"
)

// InsightType enumerates the polymorphic interaction_insights discriminator
// values, per §4.6.3's category-to-row mapping.
type InsightType string

const (
	InsightActionItem         InsightType = "action_item"
	InsightDecisionMade       InsightType = "decision_made"
	InsightRisk               InsightType = "risk"
	InsightKeyTakeaway        InsightType = "key_takeaway"
	InsightProductFeedback    InsightType = "product_feedback"
	InsightMarketIntelligence InsightType = "market_intelligence"
)

// DefaultPersonaCode is used when the caller does not specify one.
const DefaultPersonaCode = "gtm"

// Persister writes an Analysis's decomposed rows in a single transaction.
type Persister struct {
	db DB
}

// NewPersister builds a Persister backed by db.
func NewPersister(db DB) *Persister {
	return &Persister{db: db}
}

// PersistParams carries the interaction metadata needed to populate the
// shared columns of every row written for one extraction.
type PersistParams struct {
	InteractionID        uuid.UUID
	TenantID              uuid.UUID
	TraceID               string
	InteractionType       string
	AccountID             string
	InteractionTimestamp  time.Time
	PersonaCode           string
	Source                string // "<provider>:<model>"
}

// Persist writes analysis's summaries and insights in a single transaction.
// Either everything commits, or the transaction is rolled back and an error
// is returned; the caller never needs to retry row-by-row, per §4.6.2.
func (p *Persister) Persist(ctx context.Context, analysis *Analysis, params PersistParams) error {
	personaCode := params.PersonaCode
	if personaCode == "" {
		personaCode = DefaultPersonaCode
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, "begin transaction failed", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var personaID string
	err = tx.QueryRow(ctx, `SELECT id FROM personas WHERE code = $1`, personaCode).Scan(&personaID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apierr.New(apierr.CodePersonaUnknown, fmt.Sprintf("no persona with code %q", personaCode))
		}
		return apierr.Wrap(apierr.CodeStorageUnavailable, "persona lookup failed", err)
	}

	for _, row := range summaryRows(analysis, params.Source) {
		if err := insertSummary(ctx, tx, params, personaID, row); err != nil {
			return apierr.Wrap(apierr.CodeStorageUnavailable, "insert summary row failed", err)
		}
	}

	for _, row := range insightRows(analysis) {
		if err := insertInsight(ctx, tx, params, personaID, row); err != nil {
			return apierr.Wrap(apierr.CodeStorageUnavailable, "insert insight row failed", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apierr.Wrap(apierr.CodeStorageUnavailable, "commit transaction failed", err)
	}
	return nil
}

type summaryRow struct {
	level SummaryLevel
	text  string
}

func summaryRows(a *Analysis, source string) []summaryRow {
	return []summaryRow{
		{LevelTitle, a.Summaries.Title},
		{LevelHeadline, a.Summaries.Headline},
		{LevelBrief, a.Summaries.Brief},
		{LevelDetailed, a.Summaries.Detailed},
		{LevelSpotlight, a.Summaries.Spotlight},
	}
}

func insertSummary(ctx context.Context, tx pgx.Tx, params PersistParams, personaID string, row summaryRow) error {
	const query = `
		INSERT INTO interaction_summary_entries (
			interaction_id, tenant_id, trace_id, interaction_type, account_id,
			interaction_timestamp, persona_id, level, profile_type, text, source, word_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'rich',$9,$10,$11)`

	_, err := tx.Exec(ctx, query,
		params.InteractionID, params.TenantID, params.TraceID, params.InteractionType, nullableString(params.AccountID),
		params.InteractionTimestamp, personaID, row.level, row.text, params.Source, wordCount(row.text))
	return err
}

type insightRow struct {
	insightType InsightType
	description string
	owner       string
	dueDate     *time.Time
	decision    string
	rationale   string
	risk        string
	severity    string
	mitigation  string
	text        string
}

func insightRows(a *Analysis) []insightRow {
	var rows []insightRow
	for _, it := range a.ActionItems {
		row := insightRow{insightType: InsightActionItem, description: it.Description, owner: it.Owner}
		if it.DueDate != "" {
			if t, err := time.Parse("2006-01-02", it.DueDate); err == nil {
				row.dueDate = &t
			}
		}
		rows = append(rows, row)
	}
	for _, d := range a.Decisions {
		rows = append(rows, insightRow{insightType: InsightDecisionMade, decision: d.Decision, rationale: d.Rationale})
	}
	for _, r := range a.Risks {
		rows = append(rows, insightRow{insightType: InsightRisk, risk: r.Risk, severity: string(r.Severity), mitigation: r.Mitigation})
	}
	for _, k := range a.KeyTakeaways {
		rows = append(rows, insightRow{insightType: InsightKeyTakeaway, text: k})
	}
	for _, pf := range a.ProductFeedback {
		rows = append(rows, insightRow{insightType: InsightProductFeedback, text: pf.Text})
	}
	for _, mi := range a.MarketIntelligence {
		rows = append(rows, insightRow{insightType: InsightMarketIntelligence, text: mi.Text})
	}
	return rows
}

func insertInsight(ctx context.Context, tx pgx.Tx, params PersistParams, personaID string, row insightRow) error {
	const query = `
		INSERT INTO interaction_insights (
			interaction_id, tenant_id, trace_id, interaction_type, account_id,
			interaction_timestamp, persona_id, type, description, owner, due_date,
			decision, rationale, risk, severity, mitigation, text, content_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err := tx.Exec(ctx, query,
		params.InteractionID, params.TenantID, params.TraceID, params.InteractionType, nullableString(params.AccountID),
		params.InteractionTimestamp, personaID, row.insightType,
		nullableString(row.description), nullableString(row.owner), row.dueDate,
		nullableString(row.decision), nullableString(row.rationale),
		nullableString(row.risk), nullableString(row.severity), nullableString(row.mitigation),
		nullableString(row.text), ContentHash(row.insightType, insightContent(row)))
	return err
}

// insightContent returns the primary text field content_hash is computed
// over for a given row, matching whichever column carries its "content".
func insightContent(row insightRow) string {
	switch row.insightType {
	case InsightActionItem:
		return row.description
	case InsightDecisionMade:
		return row.decision
	case InsightRisk:
		return row.risk
	default:
		return row.text
	}
}

// ContentHash implements content_hash(type, content) = SHA-256_hex(type +
// ":" + content), per §4.6.3.
func ContentHash(insightType InsightType, content string) string {
	sum := sha256.Sum256([]byte(string(insightType) + ":" + content))
	return hex.EncodeToString(sum[:])
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
