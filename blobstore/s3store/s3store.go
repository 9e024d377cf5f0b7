// Package s3store implements blobstore.BlobStore on top of Amazon S3.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/blobstore"
)

// Store implements blobstore.BlobStore using an S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
	region string
}

// New creates a Store targeting bucket in region, loading AWS credentials
// from the default provider chain.
func New(ctx context.Context, bucket, region string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3store: failed to load AWS config: %w", err)
	}
	return &Store{client: s3.NewFromConfig(cfg), bucket: bucket, region: region}, nil
}

// Put uploads data under key and returns an "s3://bucket/key" URI.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", apperrors.Validation("s3store.Put", "key must not be empty")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperrors.Internal("s3store.Put", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Get downloads the bytes stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.Internal("s3store.Get", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Internal("s3store.Get", err)
	}
	return data, nil
}

var _ blobstore.BlobStore = (*Store)(nil)
