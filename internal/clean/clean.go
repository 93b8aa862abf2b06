// Package clean implements the Cleaner (§4.5): it reduces a raw,
// speaker-labeled transcript into a diarized, de-filler'd form by chunking on
// speaker turns and sentence boundaries and running each chunk through an
// LLM editor prompt, falling back to the original chunk on any per-chunk
// failure.
package clean

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/llm"
)

// WordThreshold is the maximum chunk size (in whitespace-separated words)
// before a turn is subdivided at sentence boundaries.
const WordThreshold = 500

// PerChunkTimeout bounds each per-chunk LLM call (~60s per §5).
const PerChunkTimeout = 60 * time.Second

const editorPrompt = `You are a transcript editor. Clean the following speaker turn:
- Remove filler words (um, uh, and "like" used as filler).
- Remove immediate word duplications (e.g. "the the" becomes "the").
- Add sentence-ending punctuation and fix capitalization.
- Fix basic grammar while preserving the speaker's voice and meaning.
- Do not introduce any word that is not present in the input.
- Preserve the exact "SPEAKER_<n>:" or "SPEAKER_UNKNOWN:" prefix unchanged at the start.
- Do not merge this turn with any other speaker's turn.

Return only the cleaned turn, nothing else.`

// Cleaner wraps an LLM provider to implement the per-chunk cleaning
// transformation described in §4.5.
type Cleaner struct {
	provider llm.Provider
}

// New builds a Cleaner backed by provider.
func New(provider llm.Provider) *Cleaner {
	return &Cleaner{provider: provider}
}

// Clean reduces rawTranscript into a cleaned form. It never returns an error:
// a failure on any individual chunk substitutes the original chunk text and
// continues, per §7's propagation policy ("total cleaner failure returns raw
// transcript with a warning").
func (c *Cleaner) Clean(ctx context.Context, rawTranscript string) string {
	chunks := Chunk(rawTranscript)
	cleaned := make([]string, len(chunks))

	for i, chunk := range chunks {
		cleaned[i] = c.cleanChunk(ctx, chunk)
	}

	return strings.Join(cleaned, "\n")
}

func (c *Cleaner) cleanChunk(ctx context.Context, chunk string) string {
	if strings.TrimSpace(chunk) == "" {
		return chunk
	}

	chunkCtx, cancel := context.WithTimeout(ctx, PerChunkTimeout)
	defer cancel()

	resp, err := c.provider.Complete(chunkCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: editorPrompt},
			{Role: "user", Content: chunk},
		},
	})
	if err != nil {
		slog.Warn("clean: per-chunk llm call failed, falling back to original chunk", "error", err)
		return chunk
	}

	cleanedChunk := strings.TrimSpace(resp.Content)
	if cleanedChunk == "" || !hasSpeakerPrefix(cleanedChunk) {
		slog.Warn("clean: llm response missing required speaker prefix, falling back to original chunk")
		return chunk
	}
	return cleanedChunk
}

func hasSpeakerPrefix(s string) bool {
	return strings.HasPrefix(s, "SPEAKER_")
}

// Chunk splits rawTranscript by speaker turn (one turn per input line) and
// subdivides any turn whose word count exceeds WordThreshold at sentence
// boundaries, per §4.5's chunking rule.
func Chunk(rawTranscript string) []string {
	lines := strings.Split(rawTranscript, "\n")
	var chunks []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		chunks = append(chunks, subdivide(line)...)
	}
	return chunks
}

// subdivide splits a single speaker turn into sub-chunks that each begin
// with the original SPEAKER_<n>: label, never exceed WordThreshold words,
// and never split mid-sentence unless a single sentence alone exceeds the
// threshold.
func subdivide(turn string) []string {
	prefix, body := splitPrefix(turn)
	words := strings.Fields(body)
	if len(words) <= WordThreshold {
		return []string{turn}
	}

	sentences := splitSentences(body)
	var out []string
	var current strings.Builder
	currentWords := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		out = append(out, prefix+strings.TrimSpace(current.String()))
		current.Reset()
		currentWords = 0
	}

	for _, sentence := range sentences {
		sentenceWords := len(strings.Fields(sentence))
		if sentenceWords > WordThreshold {
			flush()
			out = append(out, splitOversizedSentence(prefix, sentence)...)
			continue
		}
		if currentWords+sentenceWords > WordThreshold {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentWords += sentenceWords
	}
	flush()

	return out
}

// splitPrefix separates a turn's "SPEAKER_<n>: " label from its body. If no
// recognised label is present, the whole turn is treated as SPEAKER_UNKNOWN.
func splitPrefix(turn string) (prefix, body string) {
	idx := strings.Index(turn, ":")
	if idx < 0 || !strings.HasPrefix(turn, "SPEAKER_") {
		return "SPEAKER_UNKNOWN: ", turn
	}
	return turn[:idx+1] + " ", strings.TrimSpace(turn[idx+1:])
}

// splitSentences splits on '.', '?', '!' boundaries, keeping the terminator
// attached to its sentence.
func splitSentences(body string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range body {
		current.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// splitOversizedSentence splits a single sentence that alone exceeds
// WordThreshold, cutting at the nearest whitespace past the threshold so no
// word is broken.
func splitOversizedSentence(prefix, sentence string) []string {
	words := strings.Fields(sentence)
	var out []string
	for len(words) > 0 {
		end := min(WordThreshold, len(words))
		out = append(out, prefix+strings.Join(words[:end], " "))
		words = words[end:]
	}
	return out
}
