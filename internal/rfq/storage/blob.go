package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured is returned when no object storage endpoint is set.
var ErrNotConfigured = errors.New("未配置对象存储")

// BlobStore 询价附件存储（MinIO）
type BlobStore struct {
	client *minio.Client
	bucket string
}

// NewBlobStore connects to MinIO. An empty endpoint gives a store whose
// operations all fail with ErrNotConfigured.
func NewBlobStore(cfg config.MinIOConfig) (*BlobStore, error) {
	if cfg.Endpoint == "" {
		return &BlobStore{bucket: cfg.Bucket}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *BlobStore) EnsureBucket(ctx context.Context, region string) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	return nil
}

// CreateSignedURL returns a presigned GET url valid for ttl.
func (s *BlobStore) CreateSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("生成 %s 下载链接失败: %w", path, err)
	}
	return u.String(), nil
}

// Upload 上传对象，返回对象路径
func (s *BlobStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传 %s 失败: %w", path, err)
	}
	return path, nil
}

// Remove deletes every path and reports all failures.
func (s *BlobStore) Remove(ctx context.Context, paths []string) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	var errs []error
	for _, p := range paths {
		if err := s.client.RemoveObject(ctx, s.bucket, p, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("删除 %s 失败: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
