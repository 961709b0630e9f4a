package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/google/uuid"
)

// S3Client wraps the AWS S3 client for S3/R2/MinIO compatible storage
type S3Client struct {
	client   *s3.Client
	bucket   string
	endpoint string
	cdnURL   string // optional CDN base URL
	basePath string // prefix for all objects (e.g. "chat/")
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://xxx.r2.cloudflarestorage.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	CDNURL          string
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// NewS3Client creates a new S3-compatible storage client
func NewS3Client(cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	client := s3.New(s3.Options{}, opts)

	pkglogger.GetLogger().Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 storage client initialized")

	return &S3Client{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		cdnURL:   strings.TrimRight(cfg.CDNURL, "/"),
		basePath: cfg.BasePath,
	}, nil
}

// Store uploads body under a generated key below prefix and returns its durable URL
func (c *S3Client) Store(ctx context.Context, prefix, filename, contentType string, body io.Reader, size int64) (string, error) {
	key := c.basePath + GenerateKey(prefix, filename)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return c.PublicURL(key), nil
}

// Remove deletes an object previously returned by Store
func (c *S3Client) Remove(ctx context.Context, url string) error {
	key := c.keyFromURL(url)
	if key == "" {
		return nil
	}
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// PublicURL returns the CDN URL for a key, falling back to the endpoint or S3 URL
func (c *S3Client) PublicURL(key string) string {
	switch {
	case c.cdnURL != "":
		return c.cdnURL + "/" + key
	case c.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", c.bucket, key)
	}
}

func (c *S3Client) keyFromURL(url string) string {
	for _, base := range []string{
		c.cdnURL + "/",
		c.endpoint + "/" + c.bucket + "/",
		fmt.Sprintf("https://%s.s3.amazonaws.com/", c.bucket),
	} {
		if base != "/" && strings.HasPrefix(url, base) {
			return strings.TrimPrefix(url, base)
		}
	}
	return ""
}

// GenerateKey creates a unique storage key with a date prefix
func GenerateKey(prefix, filename string) string {
	now := time.Now().UTC()
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s",
		prefix, now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}
