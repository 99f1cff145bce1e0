package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"rawsql/internal/domain"
)

// GCS is the protocol name of Google Cloud Storage.
const GCS = "gs"

var _ domain.ProtocolClient = (*GCSClient)(nil)

// objectGeneration returns the generation of bucket/object.
type objectGeneration func(ctx context.Context, bucket, object string) (int64, error)

// GCSClient resolves "bucket/object" paths to "bucket/object/<generation>".
type GCSClient struct {
	generation objectGeneration
}

// NewGCSClient creates a GCSClient authenticated with a service-account key file.
func NewGCSClient(ctx context.Context, keyFile string) (*GCSClient, error) {
	client, err := storage.NewClient(ctx, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSClient{
		generation: func(ctx context.Context, bucket, object string) (int64, error) {
			attrs, err := client.Bucket(bucket).Object(object).Attrs(ctx)
			if err != nil {
				return 0, err
			}
			return attrs.Generation, nil
		},
	}, nil
}

// GCSFactory returns a Factory building clients from keyFile.
func GCSFactory(keyFile string) Factory {
	return func(ctx context.Context, _ string) (domain.ProtocolClient, error) {
		if keyFile == "" {
			return nil, fmt.Errorf("gcs key file is not configured")
		}
		return NewGCSClient(ctx, keyFile)
	}
}

// FullPath returns path suffixed with the object's generation.
func (c *GCSClient) FullPath(ctx context.Context, path string) (string, error) {
	bucket, object, err := splitObjectPath(path)
	if err != nil {
		return "", domain.ErrProtocol(GCS, err)
	}

	gen, err := c.generation(ctx, bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return "", domain.ErrResourceNotFound(GCS, path)
		}
		return "", domain.ErrProtocol(GCS, err)
	}
	return path + "/" + strconv.FormatInt(gen, 10), nil
}
