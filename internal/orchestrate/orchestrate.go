// Package orchestrate implements the Async-Fork Orchestrator (§4.7): after
// the cleaner returns, it fans out to two independent lanes — publish and
// intelligence extraction/persist — and awaits both with "return exceptions
// as values" semantics so neither lane's failure ever surfaces as an HTTP
// error to the caller.
package orchestrate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/envelope"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/intel"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/publish"
)

// Params carries everything both lanes need to build their envelope / run
// extraction, independent of how the caller obtained the cleaned transcript.
type Params struct {
	TenantID             uuid.UUID
	UserID               string
	UserName             string
	InteractionID        uuid.UUID
	TraceID              string
	InteractionType      envelope.InteractionType
	Content              envelope.Content
	Source               envelope.Source
	Extras               map[string]any
	AccountID            string
	InteractionTimestamp time.Time
	PersonaCode          string
}

// Result collects both lanes' outcomes for callers that want to log or
// inspect them; the HTTP response is built from the cleaner output alone and
// must not depend on either field here being present.
type Result struct {
	Publish publish.Result

	Analysis *intel.Analysis
	IntelErr error
}

// Orchestrator wires the publish and intelligence lanes together.
type Orchestrator struct {
	publisher    *publish.Publisher
	extractor    *intel.Extractor
	persister    *intel.Persister
	providerName string
}

// New builds an Orchestrator. extractor/persister may be nil, in which case
// the intelligence lane is skipped entirely (e.g. no LLM configured).
func New(publisher *publish.Publisher, extractor *intel.Extractor, persister *intel.Persister, providerName string) *Orchestrator {
	return &Orchestrator{publisher: publisher, extractor: extractor, persister: persister, providerName: providerName}
}

// Run launches lane P (publish) and lane I (intelligence) concurrently and
// waits for both. ctx is only used to bound the work each lane performs;
// cancellation of the original request context must not reach here — callers
// should pass a context detached from the inbound request's cancellation
// (e.g. context.WithoutCancel), per §4.7's concurrency invariant.
func (o *Orchestrator) Run(ctx context.Context, p Params) Result {
	var (
		wg     sync.WaitGroup
		result Result
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("orchestrate: publish lane panicked", "interaction_id", p.InteractionID, "panic", r)
			}
		}()
		env := envelope.New(p.TenantID, p.UserID, p.InteractionType, p.Content, p.Source, p.InteractionID, p.TraceID)
		env.Extras = mergeExtras(p.Extras, p.UserName)
		if p.AccountID != "" {
			env.AccountID = &p.AccountID
		}
		result.Publish = o.publisher.Publish(ctx, env)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("orchestrate: intelligence lane panicked", "interaction_id", p.InteractionID, "panic", r)
			}
		}()
		analysis, err := o.runIntelligence(ctx, p)
		result.Analysis = analysis
		result.IntelErr = err
	}()

	wg.Wait()

	if result.IntelErr != nil {
		slog.Error("orchestrate: intelligence lane failed", "interaction_id", p.InteractionID, "error", result.IntelErr)
	}

	return result
}

func (o *Orchestrator) runIntelligence(ctx context.Context, p Params) (*intel.Analysis, error) {
	if o.extractor == nil {
		return nil, nil
	}
	analysis := o.extractor.Extract(ctx, p.Content.Text)
	if analysis == nil {
		return nil, nil
	}
	if o.persister == nil {
		return analysis, nil
	}

	ts := p.InteractionTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := o.persister.Persist(ctx, analysis, intel.PersistParams{
		InteractionID:        p.InteractionID,
		TenantID:             p.TenantID,
		TraceID:              p.TraceID,
		InteractionType:      string(p.InteractionType),
		AccountID:            p.AccountID,
		InteractionTimestamp: ts,
		PersonaCode:          p.PersonaCode,
		Source:               o.extractor.Source(o.providerName),
	})
	return analysis, err
}

// mergeExtras copies base (never mutating the caller's map) and adds
// user_name only when non-empty, per §4.8's "absent key when null — never an
// empty value" rule.
func mergeExtras(base map[string]any, userName string) map[string]any {
	merged := make(map[string]any, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	if userName != "" {
		merged["user_name"] = userName
	}
	return merged
}
