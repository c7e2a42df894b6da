// Package archive stores exported transcripts in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Service writes exported transcripts to a bucket. Archival is best-effort:
// failures are logged and never surfaced to the export caller.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Store archives one export asynchronously. The object key embeds the session
// ID and a timestamp so repeated exports never overwrite each other.
func (s *Service) Store(sessionID, filename, mimeType string, data []byte) {
	if s == nil {
		return
	}
	key := fmt.Sprintf("%s/%s-%s", sessionID, time.Now().UTC().Format("20060102T150405Z"), filename)
	payload := make([]byte, len(data))
	copy(payload, data)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
			ContentType: mimeType,
		})
		if err != nil {
			log.Printf("archive: store %s: %v", key, err)
		}
	}()
}
