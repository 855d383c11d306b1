// Package docstore manages uploaded documents in S3-compatible object
// storage. Files move between browsers and the bucket through presigned
// URLs; document bytes never pass through the API process.
package docstore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"easysign/api/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	UploadTTL time.Duration
	ViewTTL   time.Duration
}

type Service struct {
	client    presignClient
	bucket    string
	uploadTTL time.Duration
	viewTTL   time.Duration
}

// presignClient is the slice of the minio client the service uses.
type presignClient interface {
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

func New(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Service{
		client:    client,
		bucket:    cfg.Bucket,
		uploadTTL: cfg.UploadTTL,
		viewTTL:   cfg.ViewTTL,
	}, nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// ObjectKey builds a collision-free storage key for an uploaded file,
// namespaced by owner.
func (s *Service) ObjectKey(ownerID, fileName string) string {
	base := path.Base(fileName)
	base = strings.ReplaceAll(base, " ", "_")
	return fmt.Sprintf("documents/%s/%s-%s", ownerID, util.NewID("doc"), base)
}

// UploadURL returns a presigned PUT URL the browser uploads the file to.
func (s *Service) UploadURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, s.uploadTTL)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return u.String(), nil
}

// ViewURL returns a presigned GET URL that renders the file inline under
// its original name.
func (s *Service) ViewURL(ctx context.Context, objectKey, fileName string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", fileName))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.viewTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign view: %w", err)
	}
	return u.String(), nil
}

// Remove deletes a stored object. Used when its document row is deleted.
func (s *Service) Remove(ctx context.Context, objectKey string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
