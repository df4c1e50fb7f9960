package archive

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/roach88/caseflow/internal/casefile"
)

// S3Config locates the archive bucket. Credentials fall back to the default
// AWS chain when AccessKeyID is empty.
type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; S3-compatible endpoint
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Sink writes each archived batch as its own object.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink builds an S3 client from cfg.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3SinkFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *S3Sink) Append(ctx context.Context, caseID string, entries []casefile.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := encodeBatch(entries)
	if err != nil {
		return err
	}
	key := batchKey(s.prefix, caseID, entries)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3Sink) Load(ctx context.Context, caseID string) ([]casefile.AuditEntry, error) {
	prefix := casePrefix(s.prefix, caseID)
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list archive: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)

	result := []casefile.AuditEntry{}
	for _, key := range keys {
		obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		entries, err := decodeBatch(obj.Body)
		obj.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		result = append(result, entries...)
	}
	sortBySeq(result)
	return result, nil
}

func newS3SinkFromClient(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}
