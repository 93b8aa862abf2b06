package deepgramrest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleResponse = `{
  "metadata": {"duration": 12.5, "channels": 1},
  "results": {
    "channels": [
      {
        "alternatives": [
          {
            "words": [
              {"word": "hello", "start": 0.0, "end": 0.3, "speaker": 0},
              {"word": "world", "start": 0.3, "end": 0.6, "speaker": 0},
              {"word": "hi", "start": 0.7, "end": 0.9, "speaker": 1}
            ]
          }
        ]
      }
    ]
  }
}`

func TestTranscribeBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			t.Errorf("missing/incorrect Authorization header: %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p, err := New("test-key", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.TranscribeBytes(context.Background(), []byte("fake-audio"), "audio/wav")
	if err != nil {
		t.Fatalf("TranscribeBytes: %v", err)
	}

	want := "SPEAKER_0: hello world\nSPEAKER_1: hi"
	if result.RawTranscript != want {
		t.Fatalf("got %q, want %q", result.RawTranscript, want)
	}
	if result.Metadata["word_count"] != 3 {
		t.Errorf("expected word_count 3, got %v", result.Metadata["word_count"])
	}
}

func TestNewRejectsEmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
