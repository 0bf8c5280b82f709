package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client defines the S3 operations used by S3Store
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps artifacts in an S3 or S3-compatible bucket
type S3Store struct {
	client  S3Client
	bucket  string
	prefix  string
	baseURL string
}

// S3Option configures S3Store
type S3Option func(*S3Store)

// WithS3Client sets a pre-configured client. Useful for testing with mocks.
func WithS3Client(client S3Client) S3Option {
	return func(s *S3Store) {
		s.client = client
	}
}

// NewS3Store creates an S3-backed artifact store
func NewS3Store(ctx context.Context, cfg config.S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3 bucket and region are required")
	}

	s := &S3Store{
		bucket: cfg.Bucket,
		prefix: strings.TrimPrefix(cfg.Prefix, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsOptions := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}

		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	s.baseURL = baseURL

	return s, nil
}

// Store uploads data with If-None-Match so an existing object is never overwritten
func (s *S3Store) Store(ctx context.Context, fileName string, data []byte) (*domain.Artifact, error) {
	key := domain.SanitizeFileName(fileName)
	objectKey := s.prefix + key

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(key)),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		return nil, classifyS3Error(err, "upload artifact")
	}

	return &domain.Artifact{
		FileName:   key,
		ContentRef: fmt.Sprintf("s3://%s/%s", s.bucket, objectKey),
		PublicURL:  s.URL(key),
	}, nil
}

// Open streams an artifact from the bucket
func (s *S3Store) Open(ctx context.Context, fileName string) (io.ReadCloser, *domain.ArtifactInfo, error) {
	if domain.SanitizeFileName(fileName) != fileName {
		return nil, nil, fmt.Errorf("artifact %s: %w", fileName, domain.ErrNotFound)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + fileName),
	})
	if err != nil {
		return nil, nil, classifyS3Error(err, "download artifact")
	}

	info := &domain.ArtifactInfo{
		Key:         fileName,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ModTime:     aws.ToTime(out.LastModified),
	}
	if info.ContentType == "" {
		info.ContentType = contentType(fileName)
	}

	return out.Body, info, nil
}

// URL returns the public URL for a key
func (s *S3Store) URL(key string) string {
	return s.baseURL + s.prefix + url.PathEscape(key)
}

// classifyS3Error converts S3 errors to domain errors
func classifyS3Error(err error, operation string) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%s: %w", operation, domain.ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%s: %w", operation, domain.ErrConflict)
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", operation, domain.ErrNotFound)
		default:
			return fmt.Errorf("%w: %s operation failed (code: %s): %v", domain.ErrStorage, operation, apiErr.ErrorCode(), err)
		}
	}

	return fmt.Errorf("%w: %s operation failed: %v", domain.ErrStorage, operation, err)
}
