package objectstore

import (
	"context"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePresign struct {
	putCalls []*s3.PutObjectInput
	getCalls []*s3.GetObjectInput
}

func (f *fakePresign) PresignPutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.putCalls = append(f.putCalls, params)
	return &v4.PresignedHTTPRequest{URL: "https://objects.example/" + *params.Key, Method: "PUT"}, nil
}

func (f *fakePresign) PresignGetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.getCalls = append(f.getCalls, params)
	return &v4.PresignedHTTPRequest{URL: "https://objects.example/" + *params.Key, Method: "GET"}, nil
}

func TestPresignPutReturnsURLAndTTLExpiry(t *testing.T) {
	fake := &fakePresign{}
	store := New(fake, "bucket")

	before := time.Now().UTC()
	url, expiresAt, err := store.PresignPut(context.Background(), "tenant/x/uploads/y/call.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}
	if url != "https://objects.example/tenant/x/uploads/y/call.mp3" {
		t.Errorf("url = %q", url)
	}
	if expiresAt.Before(before.Add(PutURLTTL - time.Second)) {
		t.Errorf("expiresAt = %v, want roughly %v after now", expiresAt, PutURLTTL)
	}
	if len(fake.putCalls) != 1 || *fake.putCalls[0].ContentType != "audio/mpeg" {
		t.Fatalf("unexpected put calls: %+v", fake.putCalls)
	}
}

func TestPresignGetReturnsURL(t *testing.T) {
	fake := &fakePresign{}
	store := New(fake, "bucket")

	url, err := store.PresignGet(context.Background(), "tenant/x/uploads/y/call.mp3")
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if url != "https://objects.example/tenant/x/uploads/y/call.mp3" {
		t.Errorf("url = %q", url)
	}
	if len(fake.getCalls) != 1 {
		t.Fatalf("expected 1 get call, got %d", len(fake.getCalls))
	}
}
