package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestAppendRangeOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	key := "session:abc:transcript"
	for _, chunk := range []string{"first", "second", "third"} {
		if err := s.Append(ctx, key, chunk); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Range(ctx, key)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRangeOnMissingKeyIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.Range(ctx, "session:missing:transcript")
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}

func TestDeleteAfterReconstruction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := "session:xyz:transcript"

	if err := s.Append(ctx, key, "chunk"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := s.Range(ctx, key)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice after delete, got %v", got)
	}
}
