package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ArchiveConfig locates an S3-compatible bucket.
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// objectStore is the subset of *minio.Client the archiver uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver uploads snapshot directories to object storage.
type Archiver struct {
	store  objectStore
	bucket string
	region string
	prefix string
	logger *zap.Logger

	initOnce sync.Once
	initErr  error
}

// NewArchiver creates an archiver backed by a minio client.
func NewArchiver(cfg ArchiveConfig, logger *zap.Logger) (*Archiver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}

	return newArchiver(client, cfg.Bucket, region, cfg.Prefix, logger), nil
}

func newArchiver(store objectStore, bucket, region, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		bucket: strings.TrimSpace(bucket),
		region: region,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		logger: logger,
	}
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.initOnce.Do(func() {
		exists, err := a.store.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

// Upload puts every file of the snapshot dir under <prefix>/<dirname>/ and
// returns the object keys written, in walk order.
func (a *Archiver) Upload(ctx context.Context, dir string) ([]string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	base := path.Join(a.prefix, filepath.Base(filepath.Clean(dir)))
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(base, filepath.ToSlash(rel))
		if _, err := a.store.FPutObject(ctx, a.bucket, key, p, minio.PutObjectOptions{
			ContentType: contentType(p),
		}); err != nil {
			return fmt.Errorf("failed to upload %s: %w", rel, err)
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}

	a.logger.Info("archived snapshot",
		zap.String("bucket", a.bucket),
		zap.String("prefix", base),
		zap.Int("objects", len(keys)))
	return keys, nil
}

func contentType(p string) string {
	switch filepath.Ext(p) {
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
