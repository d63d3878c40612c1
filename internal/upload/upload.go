// Package upload pushes sealed archives to S3-compatible object storage.
package upload

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/config"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/logging"
)

// ContentType is the MIME type stored with uploaded archives.
const ContentType = "application/gzip"

// ObjectStore is the subset of *minio.Client used by the uploader.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Location identifies an uploaded archive.
type Location struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// Uploader copies archives into one bucket.
type Uploader struct {
	store  ObjectStore
	bucket string
	prefix string
	region string
	logger *logging.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// New builds an uploader backed by a minio client for cfg.
func New(cfg config.UploadConfig, opts ...Option) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "upload endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "creating object storage client").WithCause(err)
	}
	return NewWithStore(client, cfg, opts...), nil
}

// NewWithStore builds an uploader on an existing store.
func NewWithStore(store ObjectStore, cfg config.UploadConfig, opts ...Option) *Uploader {
	u := &Uploader{
		store:  store,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Key returns the object key an archive is stored under.
func (u *Uploader) Key(archivePath string) string {
	name := filepath.Base(archivePath)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload creates the bucket when missing and stores the archive file.
func (u *Uploader) Upload(ctx context.Context, archivePath, runID string) (*Location, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", u.bucket, err)
	}

	key := u.Key(archivePath)
	opts := minio.PutObjectOptions{ContentType: ContentType}
	if runID != "" {
		opts.UserMetadata = map[string]string{"run-id": runID}
	}
	info, err := u.store.FPutObject(ctx, u.bucket, key, archivePath, opts)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	loc := &Location{Bucket: u.bucket, Key: key, Size: info.Size, ETag: info.ETag}
	u.logger.Info("archive uploaded", "location", loc.String(), "size", loc.Size)
	return loc, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.store.BucketExists(ctx, u.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return u.store.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
