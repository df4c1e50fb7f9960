package archive

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/caseflow/internal/casefile"
)

// MinIOConfig locates the archive bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

func (c MinIOConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("minio endpoint required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("minio bucket required")
	}
	return nil
}

// MinIOSink writes each archived batch as its own object.
type MinIOSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOSink connects to MinIO and creates the bucket if it is missing.
func NewMinIOSink(ctx context.Context, cfg MinIOConfig) (*MinIOSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("archive bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}
	return &MinIOSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *MinIOSink) Append(ctx context.Context, caseID string, entries []casefile.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := encodeBatch(entries)
	if err != nil {
		return err
	}
	key := batchKey(s.prefix, caseID, entries)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/gzip"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *MinIOSink) Load(ctx context.Context, caseID string) ([]casefile.AuditEntry, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    casePrefix(s.prefix, caseID),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list archive: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	out := []casefile.AuditEntry{}
	for _, key := range keys {
		obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		entries, err := decodeBatch(obj)
		obj.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, entries...)
	}
	sortBySeq(out)
	return out, nil
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
