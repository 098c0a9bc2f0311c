// Package s3store keeps uploaded media in S3 compatible object storage
package s3store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/blobstore"
)

type Config struct {
	// Endpoint of S3 compatible service, e.g. http://127.0.0.1:9000 for minio
	// Empty means AWS itself
	Endpoint string
	Region   string
	Bucket   string

	AccessKey string
	SecretKey string

	// Key prefix inside the bucket
	Prefix string

	// URL objects are served from (CDN or public bucket)
	// If not set than <endpoint>/<bucket> is used
	PublicURL string

	// Max attempts for one upload including retries; sdk default if zero
	MaxAttempts int

	// Clock. If not set than time.Now is used
	Now func() time.Time
}

type Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	publicURL string
	now       func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket must not be empty")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("can't load aws config. Err: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// Minio and friends do not support flexible checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		publicURL = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       cfg.Now,
	}, nil
}

func (s *Store) Upload(ctx context.Context, localPath string) (string, error) {
	contentType, ext, err := blobstore.Detect(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrBlobStoreUnavailable, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrBlobStoreUnavailable, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrBlobStoreUnavailable, err)
	}

	key := blobstore.NewKey(s.prefix, s.now(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object. Err: %w", apperrors.ErrBlobStoreUnavailable, err)
	}

	return s.publicURL + "/" + key, nil
}
