package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const calendarContentType = "text/calendar; charset=utf-8"

// ObjectAPI is the subset of the S3 client the store uses
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps documents as objects under a bucket prefix.
// A single PutObject replaces an object atomically.
type S3Store struct {
	client ObjectAPI
	bucket string
	prefix string
}

// NewS3Store creates a store from an existing client
func NewS3Store(client ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromEnv loads AWS credentials from the default chain
func NewS3StoreFromEnv(ctx context.Context, bucket, prefix, region string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Location returns the s3:// URL of the document
func (s *S3Store) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

// Read fetches the object body
func (s *S3Store) Read(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("get object %s: %w", s.key(name), ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", s.key(name), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", s.key(name), err)
	}
	return data, nil
}

// Write uploads the document
func (s *S3Store) Write(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(calendarContentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", s.key(name), err)
	}
	return nil
}

// Lock is a no-op; concurrent runs against one bucket are last-writer-wins
func (s *S3Store) Lock(_ context.Context, _ string) (func() error, error) {
	return func() error { return nil }, nil
}
