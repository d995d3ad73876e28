package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for writes.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner is the subset of the S3 presign client used for read URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores artifacts in a single bucket and signs GET URLs for any bucket.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
}

// NewS3Store creates a store writing to bucket
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}
}

// URI returns the artifact URI for key in the store's bucket.
func (s *S3Store) URI(key string) ArtifactURI {
	return ArtifactURI{Bucket: s.bucket, Key: key}
}

// Put uploads data under key and returns its URI.
func (s *S3Store) Put(ctx context.Context, key string, contentType string, data []byte) (ArtifactURI, error) {
	cleanKey, err := CleanKey(key)
	if err != nil {
		return ArtifactURI{}, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(cleanKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return ArtifactURI{}, fmt.Errorf("failed to put object %s: %w", cleanKey, err)
	}

	return s.URI(cleanKey), nil
}

// Presign issues a GET URL for uri valid for validity.
func (s *S3Store) Presign(ctx context.Context, uri ArtifactURI, validity time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
	}, s3.WithPresignExpires(validity))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", uri, err)
	}
	return req.URL, nil
}

var _ ArtifactStore = (*S3Store)(nil)
