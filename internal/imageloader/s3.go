package imageloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the part of the S3 client the resolver needs
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Resolver resolves "s3://bucket/key" references
type S3Resolver struct {
	client  S3API
	maxSize int64
}

// NewS3Resolver creates a resolver using the default AWS credential chain
func NewS3Resolver(ctx context.Context, region string, maxSize int64) (*S3Resolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ResolverWithClient(s3.NewFromConfig(cfg), maxSize), nil
}

// NewS3ResolverWithClient creates a resolver around an existing client
func NewS3ResolverWithClient(client S3API, maxSize int64) *S3Resolver {
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	return &S3Resolver{client: client, maxSize: maxSize}
}

// Resolve downloads the referenced object
func (r *S3Resolver) Resolve(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, ok := parseS3URI(uri)
	if !ok {
		return nil, ErrNoContent
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if stderrors.As(err, &noKey) || stderrors.As(err, &noBucket) {
			return nil, ErrNoContent
		}
		return nil, fmt.Errorf("failed to get s3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object: %w", err)
	}
	if int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("s3 object exceeds maximum of %d bytes", r.maxSize)
	}
	return data, nil
}

func parseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
