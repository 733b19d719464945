package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage archives generated exports in an S3-compatible bucket so large
// pulls can be re-downloaded without regenerating them.
type Storage struct {
	client *minio.Client
	bucket string
}

// NewStorage connects to the object store and ensures the bucket exists.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Storage{client: client, bucket: bucket}, nil
}

// Archive stores a generated CSV under <org>/<timestamp>_<filename> and
// returns the object key.
func (s *Storage) Archive(ctx context.Context, organizationID, filename, content string) (string, error) {
	key := fmt.Sprintf("%s/%d_%s", organizationID, time.Now().UnixMilli(), filename)
	reader := strings.NewReader(content)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/csv; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("archive export: %w", err)
	}
	return key, nil
}
