package protocol

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"rawsql/internal/domain"
)

// Azure is the protocol name of Azure Blob Storage.
const Azure = "az"

var _ domain.ProtocolClient = (*AzureClient)(nil)

// blobVersion returns the version id and etag of container/blob.
type blobVersion func(ctx context.Context, container, blob string) (versionID, etag string, err error)

// AzureClient resolves "container/blob" paths to "container/blob/<version>",
// where the version is the blob's VersionID or, without versioning, its ETag.
type AzureClient struct {
	version blobVersion
}

// NewAzureClient creates an AzureClient using shared-key authentication.
func NewAzureClient(accountName, accountKey string) (*AzureClient, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return &AzureClient{
		version: func(ctx context.Context, container, blob string) (string, string, error) {
			props, err := client.ServiceClient().NewContainerClient(container).NewBlobClient(blob).GetProperties(ctx, nil)
			if err != nil {
				return "", "", err
			}
			var versionID, etag string
			if props.VersionID != nil {
				versionID = *props.VersionID
			}
			if props.ETag != nil {
				etag = string(*props.ETag)
			}
			return versionID, etag, nil
		},
	}, nil
}

// AzureFactory returns a Factory building clients for one storage account.
func AzureFactory(accountName, accountKey string) Factory {
	return func(context.Context, string) (domain.ProtocolClient, error) {
		if accountName == "" || accountKey == "" {
			return nil, fmt.Errorf("azure account is not configured")
		}
		return NewAzureClient(accountName, accountKey)
	}
}

// FullPath returns path suffixed with the blob's version marker.
func (c *AzureClient) FullPath(ctx context.Context, path string) (string, error) {
	container, blob, err := splitObjectPath(path)
	if err != nil {
		return "", domain.ErrProtocol(Azure, err)
	}

	versionID, etag, err := c.version(ctx, container, blob)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
			return "", domain.ErrResourceNotFound(Azure, path)
		}
		return "", domain.ErrProtocol(Azure, err)
	}

	version := versionID
	if version == "" {
		version = etag
	}
	if version == "" {
		return "", domain.ErrProtocol(Azure, fmt.Errorf("blob %q has neither version id nor etag", path))
	}
	return path + "/" + version, nil
}
