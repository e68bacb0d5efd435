package imagestore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioStore implements Store against any S3-compatible object host
type minioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *logger.Logger
}

// NewMinioStore creates an image store with validation and defaults
func NewMinioStore(ctx context.Context, cfg *config.ImageStoreConfig, log *logger.Logger) (Store, error) {
	// Set defaults for nil or empty config values
	endpoint := "localhost:9000"
	if cfg != nil && cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
	}

	bucket := "script-media"
	if cfg != nil && cfg.Bucket != "" {
		bucket = cfg.Bucket
	}

	useSSL := cfg != nil && cfg.UseSSL == "true"

	var accessKey, secretKey string
	if cfg != nil {
		accessKey = cfg.AccessKey
		secretKey = cfg.SecretKey
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image store client: %w", err)
	}

	baseURL := ""
	if cfg != nil {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if baseURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + endpoint
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check image bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create image bucket: %w", err)
		}
	}

	return &minioStore{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
		logger:  log.WithComponent("image-store"),
	}, nil
}

func (s *minioStore) Upload(ctx context.Context, up Upload) (Image, error) {
	key := uuid.New().String() + strings.ToLower(path.Ext(up.Name))

	s.logger.Info("Uploading image " + up.Name + " as " + key)

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, up.Reader, up.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("Failed to upload image " + up.Name + ": " + err.Error())
		return Image{}, fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.Info("Image uploaded successfully: " + key)

	return Image{
		URL:      s.baseURL + "/" + s.bucket + "/" + key,
		PublicID: key,
	}, nil
}

func (s *minioStore) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}

	s.logger.Info("Deleting image: " + publicID)

	if err := s.client.RemoveObject(ctx, s.bucket, publicID, minio.RemoveObjectOptions{}); err != nil {
		s.logger.Error("Failed to delete image " + publicID + ": " + err.Error())
		return fmt.Errorf("failed to delete image: %w", err)
	}

	return nil
}
