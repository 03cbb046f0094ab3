// Package results persists the per-job FinalResults document to S3-compatible
// object storage. The stored object is the system of record: delivery to a
// live session is best-effort, but this write is not.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jackzampolin/shelfscan/internal/types"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// Store reads and writes job artifacts in one bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore creates an object store client.
func NewStore(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist. Safe to call on
// every start.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ResultKey returns the stable object path for a job's FinalResults.
func ResultKey(jobID string) string {
	return fmt.Sprintf("results/%s.json", jobID)
}

// ImageKey returns the object path for a job's uploaded image.
func ImageKey(jobID string) string {
	return fmt.Sprintf("uploads/%s.jpg", jobID)
}

// Location renders an s3:// location string for completion events.
func (s *Store) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Put writes a job's FinalResults, overwriting any prior document for the
// same job (last-writer-wins under erroneous reprocessing). Returns the
// object key.
func (s *Store) Put(ctx context.Context, res *types.FinalResults) (string, error) {
	if res.JobID == "" {
		return "", fmt.Errorf("final results missing jobId")
	}
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to serialize final results: %w", err)
	}

	key := ResultKey(res.JobID)
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("failed to write final results for %s: %w", res.JobID, err)
	}
	return key, nil
}

// Get fetches a job's FinalResults.
func (s *Store) Get(ctx context.Context, jobID string) (*types.FinalResults, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ResultKey(jobID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results for %s: %w", jobID, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read results for %s: %w", jobID, err)
	}

	var res types.FinalResults
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse results for %s: %w", jobID, err)
	}
	return &res, nil
}

// Exists reports whether a FinalResults document is already stored for the
// job. Used by the validation worker to skip redelivered work.
func (s *Store) Exists(ctx context.Context, jobID string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, ResultKey(jobID), minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat results for %s: %w", jobID, err)
	}
	return true, nil
}

// PutImage stores an uploaded shelf photo and returns its object key.
func (s *Store) PutImage(ctx context.Context, jobID string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := ImageKey(jobID)
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("failed to store image for %s: %w", jobID, err)
	}
	return key, nil
}
