package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"rawsql/internal/domain"
)

// S3 is the protocol name of S3-compatible object storage.
const S3 = "s3"

var _ domain.ProtocolClient = (*S3Client)(nil)

// S3Config holds static credentials for an S3-compatible endpoint.
type S3Config struct {
	KeyID    string
	Secret   string
	Endpoint string // host[:port], without scheme; empty means AWS
	Region   string
}

// headObjectAPI is the subset of *s3.Client used by S3Client.
type headObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Client resolves "bucket/key" paths to "bucket/key/<version>", where the
// version is the object's VersionId, or its ETag on unversioned buckets.
type S3Client struct {
	api headObjectAPI
}

// NewS3Client creates an S3Client with static credentials. Custom endpoints
// use path-style addressing.
func NewS3Client(cfg S3Config) *S3Client {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.KeyID, cfg.Secret, "",
		),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.Endpoint))
		opts.UsePathStyle = true
	}
	return &S3Client{api: s3.New(opts)}
}

// S3Factory returns a Factory sharing one S3Client across owners; credentials
// are configured per deployment, not per owner.
func S3Factory(cfg S3Config) Factory {
	return func(context.Context, string) (domain.ProtocolClient, error) {
		if cfg.KeyID == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("s3 credentials are not configured")
		}
		return NewS3Client(cfg), nil
	}
}

// FullPath returns path suffixed with the object's version marker.
func (c *S3Client) FullPath(ctx context.Context, path string) (string, error) {
	bucket, key, err := splitObjectPath(path)
	if err != nil {
		return "", domain.ErrProtocol(S3, err)
	}

	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return "", domain.ErrResourceNotFound(S3, path)
		}
		return "", domain.ErrProtocol(S3, err)
	}

	version := aws.ToString(out.VersionId)
	if version == "" {
		version = strings.Trim(aws.ToString(out.ETag), `"`)
	}
	if version == "" {
		return "", domain.ErrProtocol(S3, fmt.Errorf("object %q has neither version id nor etag", path))
	}
	return path + "/" + version, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// splitObjectPath splits "bucket/key/with/slashes" into bucket and key.
func splitObjectPath(path string) (bucket, key string, err error) {
	bucket, key, _ = strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected bucket/key, got %q", path)
	}
	return bucket, key, nil
}
