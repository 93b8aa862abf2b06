package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/llm"
)

// MaxRetries bounds the number of re-prompts issued after a schema
// validation failure, per §4.6.1 ("up to 2 retries on validation failure").
const MaxRetries = 2

const extractionPrompt = `You analyze meeting and interaction transcripts. Given the
transcript below, produce a JSON object that matches this exact schema (no
additional keys, no markdown fences, just the raw JSON object):

%s

Transcript:
%s`

// Extractor runs the structured-output-constrained extraction of §4.6.1.
type Extractor struct {
	provider llm.Provider
	model    string
	schema   *gojsonschema.Schema
}

// NewExtractor builds an Extractor backed by provider. model is recorded for
// the "<provider>:<model>" source tag written on summary rows.
func NewExtractor(provider llm.Provider, model string) (*Extractor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(Schema))
	if err != nil {
		return nil, fmt.Errorf("intel: compile schema: %w", err)
	}
	return &Extractor{provider: provider, model: model, schema: schema}, nil
}

// Extract runs the extraction contract: returns nil on timeout,
// provider error, or schema-validation exhaustion — extraction never throws,
// per §4.6.1.
func (e *Extractor) Extract(ctx context.Context, cleanedTranscript string) *Analysis {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		analysis, err := e.attempt(ctx, cleanedTranscript, lastErr)
		if err == nil {
			return analysis
		}
		lastErr = err
		slog.Warn("intel: extraction attempt failed", "attempt", attempt, "error", err)
	}
	slog.Warn("intel: extraction exhausted retries, returning nil analysis")
	return nil
}

func (e *Extractor) attempt(ctx context.Context, transcript string, priorErr error) (*Analysis, error) {
	prompt := fmt.Sprintf(extractionPrompt, Schema, transcript)
	if priorErr != nil {
		prompt = fmt.Sprintf("%s\n\nThe previous response failed schema validation: %s. Correct it.", prompt, priorErr)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("intel: llm call: %w", err)
	}

	result, err := e.schema.Validate(gojsonschema.NewStringLoader(resp.Content))
	if err != nil {
		return nil, fmt.Errorf("intel: schema validate: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("intel: response does not match schema: %v", result.Errors())
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(resp.Content), &analysis); err != nil {
		return nil, fmt.Errorf("intel: unmarshal analysis: %w", err)
	}
	return &analysis, nil
}

// Source returns the "<provider>:<model>" tag recorded on summary rows.
func (e *Extractor) Source(providerName string) string {
	return fmt.Sprintf("%s:%s", providerName, e.model)
}
