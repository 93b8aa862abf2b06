// Package transcription defines the batch Transcription Adapter contract
// (§4.4): converting audio bytes or a fetchable URL into a speaker-labeled
// raw transcript plus provider metadata. This is distinct from
// pkg/provider/stt, which models live, streaming recognition sessions.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned (wrapped) when an input's file extension
// is not in the exhaustive MIME mapping.
var ErrUnsupportedFormat = errors.New("transcription: unsupported audio format")

// ErrTimeout is returned (wrapped) when transcription exceeds its time
// budget (~120s per §4.4).
var ErrTimeout = errors.New("transcription: timed out")

// mimeByExtension is the exhaustive extension-to-MIME mapping from §4.4.
var mimeByExtension = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"webm": "audio/webm",
	"mp4":  "audio/mp4",
}

// MimeTypeForExtension returns the MIME type for a lowercase file extension
// (no leading dot), or ErrUnsupportedFormat if ext is not recognised.
func MimeTypeForExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	mime, ok := mimeByExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return mime, nil
}

// Word is one recognised word with optional speaker attribution, as returned
// by a provider's per-word output.
type Word struct {
	Text      string
	Speaker   *int // nil when the provider does not report diarization
	StartSecs float64
	EndSecs   float64
}

// Result is the return value of both transcription entry points.
type Result struct {
	// RawTranscript is the diarized text, formatted per FormatDiarized.
	RawTranscript string

	// Metadata carries provider-specific extras (for example duration_secs and
	// word_count from deepgramrest, segments from whispercpp).
	Metadata map[string]any
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// TranscribeBytes transcribes raw audio bytes of the given MIME type.
	TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (Result, error)

	// TranscribeFromURL transcribes audio fetched by the provider from a URL
	// (typically a presigned GET against the object store).
	TranscribeFromURL(ctx context.Context, audioURL string, mimeType string) (Result, error)
}

// FormatDiarized applies the §4.4 formatting rule to an ordered list of
// words: a new line begins every time the speaker changes, each line is
// prefixed SPEAKER_<n>: (or SPEAKER_UNKNOWN: when Speaker is nil), and
// consecutive same-speaker words are joined with single spaces.
func FormatDiarized(words []Word) string {
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	var currentSpeaker *int
	first := true

	label := func(speaker *int) string {
		if speaker == nil {
			return "SPEAKER_UNKNOWN:"
		}
		return fmt.Sprintf("SPEAKER_%d:", *speaker)
	}

	sameSpeaker := func(a, b *int) bool {
		if a == nil && b == nil {
			return true
		}
		if a == nil || b == nil {
			return false
		}
		return *a == *b
	}

	for _, w := range words {
		if first || !sameSpeaker(currentSpeaker, w.Speaker) {
			if !first {
				b.WriteByte('\n')
			}
			b.WriteString(label(w.Speaker))
			first = false
		}
		b.WriteByte(' ')
		b.WriteString(w.Text)
		currentSpeaker = w.Speaker
	}

	return b.String()
}
