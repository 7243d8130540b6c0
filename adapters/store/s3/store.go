package stores3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goliatone/go-pagepdf/export"
)

const (
	metaFilename = "filename"
	metaPages    = "pages"
)

// ObjectAPI is the subset of the S3 client used by Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PresignAPI signs GET requests.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config describes an S3 or S3-compatible bucket.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// Store keeps exported documents in an S3 bucket.
type Store struct {
	Client  ObjectAPI
	Presign PresignAPI
	Bucket  string
	Prefix  string
	Now     func() time.Time
}

var _ export.ArtifactStore = (*Store)(nil)

// New builds a Store backed by the AWS SDK. Static credentials are used when
// given, otherwise the default credential chain applies.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, export.NewError(export.KindValidation, "s3 bucket is required", nil)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, export.NewError(export.KindValidation, "s3 access key and secret key must be set together", nil)
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Store{
		Client:  client,
		Presign: s3.NewPresignClient(client),
		Bucket:  cfg.Bucket,
		Prefix:  cfg.Prefix,
		Now:     time.Now,
	}, nil
}

// Put uploads a document.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta export.ArtifactMeta) (export.ArtifactRef, error) {
	if err := s.check(key); err != nil {
		return export.ArtifactRef{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return export.ArtifactRef{}, err
	}

	meta.Size = int64(len(data))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = export.ContentTypePDF
	}
	if meta.Filename == "" {
		meta.Filename = path.Base(key)
	}

	input := &s3.PutObjectInput{
		Bucket:             aws.String(s.Bucket),
		Key:                aws.String(s.objectKey(key)),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(meta.Size),
		ContentType:        aws.String(meta.ContentType),
		ContentDisposition: aws.String(contentDisposition(meta.Filename)),
		Metadata: map[string]string{
			metaFilename: meta.Filename,
			metaPages:    strconv.Itoa(meta.Pages),
		},
	}
	if !meta.ExpiresAt.IsZero() {
		input.Expires = aws.Time(meta.ExpiresAt)
	}
	if _, err := s.Client.PutObject(ctx, input); err != nil {
		return export.ArtifactRef{}, fmt.Errorf("upload object: %w", err)
	}
	return export.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open downloads a document.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, export.ArtifactMeta, error) {
	if err := s.check(key); err != nil {
		return nil, export.ArtifactMeta{}, err
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, export.ArtifactMeta{}, export.NewError(export.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, export.ArtifactMeta{}, fmt.Errorf("get object: %w", err)
	}

	meta := export.ArtifactMeta{
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		CreatedAt:   aws.ToTime(out.LastModified),
		Filename:    out.Metadata[metaFilename],
	}
	if pages, err := strconv.Atoi(out.Metadata[metaPages]); err == nil {
		meta.Pages = pages
	}
	if meta.Filename == "" {
		meta.Filename = path.Base(key)
	}
	return out.Body, meta, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if _, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// SignedURL returns a presigned GET URL.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := s.check(key); err != nil {
		return "", err
	}
	if s.Presign == nil {
		return "", export.NewError(export.KindNotImpl, "presigning not configured", nil)
	}
	if ttl <= 0 {
		return "", export.NewError(export.KindValidation, "signed URL TTL is required", nil)
	}
	req, err := s.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}

func (s *Store) check(key string) error {
	if s == nil || s.Client == nil {
		return export.NewError(export.KindInternal, "s3 store is not configured", nil)
	}
	if s.Bucket == "" {
		return export.NewError(export.KindValidation, "s3 bucket is required", nil)
	}
	if strings.Trim(key, "/") == "" {
		return export.NewError(export.KindValidation, "artifact key is required", nil)
	}
	return nil
}

func (s *Store) objectKey(key string) string {
	return export.ArtifactKey(s.Prefix, "", strings.TrimLeft(key, "/"))
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", export.NewError(export.KindValidation, "invalid s3 endpoint", err)
	}
	return endpoint, nil
}

func contentDisposition(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}
