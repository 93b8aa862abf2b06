// Package deepgramrest implements transcription.Provider using Deepgram's
// prerecorded (batch) REST API, as a counterpart to the streaming
// pkg/provider/stt/deepgram client used for live sessions.
package deepgramrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultTimeout  = 120 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model used for prerecorded requests.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithEndpoint overrides the prerecorded API base URL (for testing).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// Provider implements transcription.Provider backed by Deepgram's
// prerecorded REST endpoint, with smart-formatting and diarization enabled.
type Provider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

var _ transcription.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgramrest: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (transcription.Result, error) {
	return p.transcribe(ctx, bytes.NewReader(audio), mimeType, nil)
}

func (p *Provider) TranscribeFromURL(ctx context.Context, audioURL string, mimeType string) (transcription.Result, error) {
	return p.transcribe(ctx, nil, mimeType, &audioURL)
}

func (p *Provider) transcribe(ctx context.Context, body io.Reader, mimeType string, audioURL *string) (transcription.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	u, err := url.Parse(p.endpoint)
	if err != nil {
		return transcription.Result{}, fmt.Errorf("deepgramrest: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("smart_format", "true")
	q.Set("diarize", "true")
	u.RawQuery = q.Encode()

	var req *http.Request
	if audioURL != nil {
		payload, marshalErr := json.Marshal(map[string]string{"url": *audioURL})
		if marshalErr != nil {
			return transcription.Result{}, fmt.Errorf("deepgramrest: marshal url payload: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
		if err == nil {
			req.Header.Set("Content-Type", mimeType)
		}
	}
	if err != nil {
		return transcription.Result{}, fmt.Errorf("deepgramrest: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return transcription.Result{}, fmt.Errorf("%w: %v", transcription.ErrTimeout, err)
		}
		return transcription.Result{}, fmt.Errorf("deepgramrest: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcription.Result{}, fmt.Errorf("deepgramrest: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return transcription.Result{}, fmt.Errorf("deepgramrest: status %d: %s", resp.StatusCode, string(data))
	}

	return parsePrerecordedResponse(data)
}

// prerecordedResponse is the subset of Deepgram's prerecorded response shape
// this adapter cares about.
type prerecordedResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
		Channels int     `json:"channels"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Words []struct {
					Word    string  `json:"word"`
					Start   float64 `json:"start"`
					End     float64 `json:"end"`
					Speaker *int    `json:"speaker"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func parsePrerecordedResponse(data []byte) (transcription.Result, error) {
	var resp prerecordedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return transcription.Result{}, fmt.Errorf("deepgramrest: parse response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return transcription.Result{RawTranscript: "", Metadata: map[string]any{"duration_secs": resp.Metadata.Duration}}, nil
	}

	alt := resp.Results.Channels[0].Alternatives[0]
	words := make([]transcription.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, transcription.Word{
			Text:      w.Word,
			Speaker:   w.Speaker,
			StartSecs: w.Start,
			EndSecs:   w.End,
		})
	}

	return transcription.Result{
		RawTranscript: transcription.FormatDiarized(words),
		Metadata: map[string]any{
			"duration_secs": resp.Metadata.Duration,
			"channels":      resp.Metadata.Channels,
			"word_count":    len(words),
		},
	}, nil
}
