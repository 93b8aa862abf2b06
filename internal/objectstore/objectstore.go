// Package objectstore wraps an S3-shaped object store behind the narrow
// presign contract the Upload Job Subsystem needs (§4.10, §6.2): a
// time-limited PUT URL for the client to upload to, and a time-limited GET
// URL for the worker to read back from.
package objectstore

import (
	"context"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutURLTTL is the lifetime of a presigned upload URL, per §6.2.
const PutURLTTL = 5 * time.Minute

// GetURLTTL is the lifetime of a presigned read URL handed to the
// transcription adapter, per §4.10.5 step 2.
const GetURLTTL = 15 * time.Minute

// presignClient is the subset of *s3.PresignClient used here, narrowed for
// testability.
type presignClient interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store issues presigned URLs against a single bucket.
type Store struct {
	presign presignClient
	bucket  string
}

// New builds a Store targeting bucket via presign.
func New(presign presignClient, bucket string) *Store {
	return &Store{presign: presign, bucket: bucket}
}

// PresignPut returns a time-limited PUT URL for key, constrained to
// contentType.
func (s *Store) PresignPut(ctx context.Context, key, contentType string) (string, time.Time, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(PutURLTTL))
	if err != nil {
		return "", time.Time{}, err
	}
	return req.URL, time.Now().UTC().Add(PutURLTTL), nil
}

// PresignGet returns a time-limited GET URL for key, for the upload worker
// to hand to the transcription adapter's URL-based entry point.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(GetURLTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
