package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client      *miniogo.Client
	mediaBucket string
	baseURL     string
	useSSL      bool
	endpoint    string
}

type StorageConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	MediaBucket string
	// BaseURL overrides the public URL prefix (CDN in front of the bucket).
	// Empty falls back to the endpoint itself.
	BaseURL string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:      client,
		mediaBucket: cfg.MediaBucket,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		useSSL:      cfg.UseSSL,
		endpoint:    cfg.Endpoint,
	}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.mediaBucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.mediaBucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.mediaBucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.mediaBucket, err)
		}
	}
	return nil
}

// UploadStream writes the reader straight to the bucket; size -1 switches
// the client to chunked streaming upload.
func (s *Storage) UploadStream(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.mediaBucket, objectPath, reader, size, miniogo.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	})
	if err != nil {
		return fmt.Errorf("upload object %s: %w", objectPath, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, objectPath string) error {
	if err := s.client.RemoveObject(ctx, s.mediaBucket, objectPath, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", objectPath, err)
	}
	return nil
}

func (s *Storage) PublicURL(objectPath string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + objectPath
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.mediaBucket, objectPath)
}
