// Package whispercpp implements transcription.Provider using the
// whisper.cpp Go bindings directly (no HTTP hop), for local/offline batch
// transcription. It does not report speaker diarization, so every word is
// emitted under SPEAKER_UNKNOWN.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements transcription.Provider backed by a shared whisper.cpp
// model loaded once at startup.
type Provider struct {
	model    whisperlib.Model
	language string
}

var _ transcription.Provider = (*Provider)(nil)

// New loads the whisper.cpp model at modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "en"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// TranscribeBytes decodes raw 16-bit little-endian PCM audio and runs
// inference. Any container format must be decoded to PCM before calling this
// method; whisper.cpp itself only accepts raw samples.
func (p *Provider) TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (transcription.Result, error) {
	if _, err := transcription.MimeTypeForExtension(extensionForMime(mimeType)); err != nil {
		return transcription.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return transcription.Result{}, fmt.Errorf("whispercpp: context already cancelled: %w", err)
	}

	samples := pcmToFloat32Mono(audio)

	wctx, err := p.model.NewContext()
	if err != nil {
		return transcription.Result{}, fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		return transcription.Result{}, fmt.Errorf("whispercpp: set language: %w", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return transcription.Result{}, fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transcription.Result{}, fmt.Errorf("whispercpp: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	raw := "SPEAKER_UNKNOWN: " + strings.Join(parts, " ")
	return transcription.Result{
		RawTranscript: raw,
		Metadata:      map[string]any{"segments": len(parts)},
	}, nil
}

// TranscribeFromURL is not supported: whisper.cpp requires local samples and
// this package has no HTTP fetch dependency of its own.
func (p *Provider) TranscribeFromURL(_ context.Context, _ string, _ string) (transcription.Result, error) {
	return transcription.Result{}, errors.New("whispercpp: transcribe-from-url is not supported; fetch the bytes and call TranscribeBytes")
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return "wav"
	case "audio/mpeg":
		return "mp3"
	case "audio/flac":
		return "flac"
	case "audio/mp4":
		return "m4a"
	case "audio/webm":
		return "webm"
	default:
		return mimeType
	}
}

// pcmToFloat32Mono converts 16-bit signed little-endian mono PCM to float32
// samples normalised to [-1.0, 1.0].
func pcmToFloat32Mono(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
