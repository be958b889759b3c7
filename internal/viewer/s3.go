package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 client used by S3Archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket. Endpoint and the static keys are for
// S3-compatible stores such as MinIO; leave them empty to use the default
// AWS credential chain.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Archive uploads every handed-off record to an object store using the
// same file layout as Exporter.
type S3Archive struct {
	Store  RecordFetcher
	Client ObjectPutter
	Bucket string
	Prefix string
}

var loadAWSConfig = config.LoadDefaultConfig

// NewS3Archive builds an S3Archive with a client configured from cfg.
func NewS3Archive(ctx context.Context, store RecordFetcher, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 archive: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 archive: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		Store:  store,
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	}, nil
}

func (a *S3Archive) Show(ctx context.Context, h Handoff) error {
	rec, err := a.Store.FetchByID(ctx, h.RecordID)
	if err != nil {
		return fmt.Errorf("archive record %d: %w", h.RecordID, err)
	}

	for _, f := range recordFiles(rec) {
		if len(f.data) == 0 {
			continue
		}
		key := path.Join(a.Prefix, f.name)
		_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(f.data),
			ContentType: aws.String(f.contentType),
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
	}
	return nil
}
