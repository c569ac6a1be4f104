package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ChunkStore keeps encrypted chunks in an S3 bucket, one object per chunk.
type S3ChunkStore struct {
	client *s3.Client
	bucket string
}

// NewS3ChunkStore creates an S3-backed chunk store.
func NewS3ChunkStore(region, bucket string) (*S3ChunkStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3ChunkStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// CheckBucketAccess verifies the bucket is reachable at startup.
func (s *S3ChunkStore) CheckBucketAccess(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

func chunkKey(trackID string, index int) string {
	return fmt.Sprintf("chunks/%s/%05d.bin", trackID, index)
}

// Get fetches one encrypted chunk.
func (s *S3ChunkStore) Get(ctx context.Context, trackID string, index int) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(chunkKey(trackID, index)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to fetch chunk: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk body: %w", err)
	}
	return data, nil
}

// Put stores one encrypted chunk.
func (s *S3ChunkStore) Put(ctx context.Context, trackID string, index int, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(chunkKey(trackID, index)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		// Ciphertext only; never cache at intermediaries
		CacheControl: aws.String("no-store"),
	})
	if err != nil {
		return fmt.Errorf("failed to store chunk: %w", err)
	}
	return nil
}
