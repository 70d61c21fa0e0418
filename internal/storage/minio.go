package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hpungsan/nounimaging/internal/config"
)

// MaxPresignExpiry is the longest lifetime S3 accepts for a presigned URL.
const MaxPresignExpiry = 7 * 24 * time.Hour

// Minio is an ObjectStore backed by an S3-compatible bucket.
type Minio struct {
	api           *minio.Client
	bucket        string
	publicBaseURL string
	expiry        time.Duration
}

var _ ObjectStore = (*Minio)(nil)

// NewMinio creates a client for cfg. expiry bounds presigned URLs and is
// ignored when cfg.PublicBaseURL is set.
func NewMinio(cfg config.S3Config, expiry time.Duration) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if expiry <= 0 || expiry > MaxPresignExpiry {
		expiry = MaxPresignExpiry
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &Minio{
		api:           api,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		expiry:        expiry,
	}, nil
}

// List returns all objects under prefix. The folder key itself is skipped.
func (m *Minio) List(ctx context.Context, prefix string) ([]Object, error) {
	prefix = folderPrefix(prefix)

	opts := minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	}

	var objects []Object
	for obj := range m.api.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == prefix {
			continue
		}
		objects = append(objects, Object{
			Path:        obj.Key,
			SizeBytes:   obj.Size,
			ContentType: obj.ContentType,
		})
	}
	return objects, nil
}

// Delete removes one object.
func (m *Minio) Delete(ctx context.Context, path string) error {
	return m.api.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{})
}

// Copy performs a server-side copy within the bucket.
func (m *Minio) Copy(ctx context.Context, src, dst string) error {
	_, err := m.api.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: m.bucket, Object: src},
	)
	return err
}

// URL returns a download URL for path. With a public base URL configured the
// result has the form <base>/o/<escaped path>?alt=media; otherwise it is a
// presigned GET URL.
func (m *Minio) URL(ctx context.Context, path string) (string, error) {
	if m.publicBaseURL != "" {
		return PublicURL(m.publicBaseURL, path), nil
	}
	u, err := m.api.PresignedGetObject(ctx, m.bucket, path, m.expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PublicURL builds a download URL that embeds path as one escaped segment.
func PublicURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/o/" + url.PathEscape(path) + "?alt=media"
}
