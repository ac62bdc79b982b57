// Package s3 implements storage.Storage on Amazon S3 and S3-compatible
// services.
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderS3, func(cfg storage.Config, log *logger.Logger) (storage.Storage, error) {
		log.Debug("connecting to s3", map[string]interface{}{"bucket": cfg.Bucket, "region": cfg.Region})
		return NewStorage(context.Background(), cfg)
	})
}

// API is the subset of the S3 client the backend uses.
type API interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Storage implements storage.Storage using Amazon S3 (or S3-compatible services).
type Storage struct {
	client API
	bucket string
	cfg    storage.Config
}

// NewStorage creates a new S3 storage client from the given config.
func NewStorage(ctx context.Context, cfg storage.Config) (*Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewWithClient(awss3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, cfg storage.Config) *Storage {
	return &Storage{client: client, bucket: cfg.Bucket, cfg: cfg}
}

// Read returns the contents of the object at path.
func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.cfg.Key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NotFound(path)
		}
		return nil, errors.Storage("read", path, err)
	}
	defer out.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Storage("read", path, err)
	}
	return data, nil
}

// Write uploads data to path.
func (s *Storage) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.cfg.Key(path)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return errors.Storage("write", path, err)
	}
	return nil
}

// Delete removes an S3 object. Returns nil if the object does not exist.
func (s *Storage) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.cfg.Key(path)),
	})
	if err != nil && !isNotFound(err) {
		return errors.Storage("delete", path, err)
	}
	return nil
}

// Exists checks whether an S3 object exists.
func (s *Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.cfg.Key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Storage("stat", path, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return stderrors.As(err, &noKey) || stderrors.As(err, &notFound)
}

// compile-time check
var _ storage.Storage = (*Storage)(nil)
