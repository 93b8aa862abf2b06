// Package mock provides a scriptable transcription.Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription"
)

// Provider is a test double for transcription.Provider. Zero value returns
// an empty Result for every call; set Result/Err to script a response.
type Provider struct {
	mu sync.Mutex

	Result transcription.Result
	Err    error

	BytesCalls []BytesCall
	URLCalls   []URLCall
}

var _ transcription.Provider = (*Provider)(nil)

// BytesCall records a TranscribeBytes invocation for assertions.
type BytesCall struct {
	Audio    []byte
	MimeType string
}

// URLCall records a TranscribeFromURL invocation for assertions.
type URLCall struct {
	URL      string
	MimeType string
}

// ErrMockFailure is a sentinel returned when Provider.Err is unset but the
// caller wants a non-nil default by calling WithFailure.
var ErrMockFailure = errors.New("mock transcription provider: simulated failure")

// New creates a Provider that returns result for every call.
func New(result transcription.Result) *Provider {
	return &Provider{Result: result}
}

// WithFailure returns a Provider that always fails with ErrMockFailure.
func WithFailure() *Provider {
	return &Provider{Err: ErrMockFailure}
}

func (p *Provider) TranscribeBytes(_ context.Context, audio []byte, mimeType string) (transcription.Result, error) {
	p.mu.Lock()
	p.BytesCalls = append(p.BytesCalls, BytesCall{Audio: audio, MimeType: mimeType})
	p.mu.Unlock()
	if p.Err != nil {
		return transcription.Result{}, p.Err
	}
	return p.Result, nil
}

func (p *Provider) TranscribeFromURL(_ context.Context, url string, mimeType string) (transcription.Result, error) {
	p.mu.Lock()
	p.URLCalls = append(p.URLCalls, URLCall{URL: url, MimeType: mimeType})
	p.mu.Unlock()
	if p.Err != nil {
		return transcription.Result{}, p.Err
	}
	return p.Result, nil
}
