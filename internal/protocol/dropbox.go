package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rawsql/internal/domain"
)

// Dropbox is the protocol name of the default store.
const Dropbox = "dropbox"

// DefaultDropboxAPIURL is the public Dropbox API base.
const DefaultDropboxAPIURL = "https://api.dropboxapi.com"

var _ domain.ProtocolClient = (*DropboxClient)(nil)

// DropboxClient resolves paths to "path/rev" using the latest revision that
// Dropbox reports for the file.
type DropboxClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDropboxClient creates a client authenticated with an access token.
func NewDropboxClient(baseURL, token string, httpClient *http.Client) *DropboxClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DropboxClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// DropboxFactory returns a Factory that exchanges the owner's stored credential
// for an access token before building the client.
func DropboxFactory(baseURL string, tokens domain.TokenSource, httpClient *http.Client) Factory {
	return func(ctx context.Context, ownerID string) (domain.ProtocolClient, error) {
		token, err := tokens.Token(ctx, ownerID, Dropbox)
		if err != nil {
			return nil, fmt.Errorf("exchange token: %w", err)
		}
		return NewDropboxClient(baseURL, token, httpClient), nil
	}
}

type listRevisionsRequest struct {
	Path  string `json:"path"`
	Mode  string `json:"mode"`
	Limit int    `json:"limit"`
}

type listRevisionsResponse struct {
	IsDeleted bool `json:"is_deleted"`
	Entries   []struct {
		Rev string `json:"rev"`
	} `json:"entries"`
}

type dropboxError struct {
	ErrorSummary string `json:"error_summary"`
}

// FullPath returns path suffixed with its latest revision.
func (c *DropboxClient) FullPath(ctx context.Context, path string) (string, error) {
	body, err := json.Marshal(listRevisionsRequest{
		Path:  "/" + strings.TrimPrefix(path, "/"),
		Mode:  "path",
		Limit: 1,
	})
	if err != nil {
		return "", domain.ErrProtocol(Dropbox, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/files/list_revisions", bytes.NewReader(body))
	if err != nil {
		return "", domain.ErrProtocol(Dropbox, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.ErrProtocol(Dropbox, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.ErrProtocol(Dropbox, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", domain.ErrResourceNotFound(Dropbox, path)
	case resp.StatusCode == http.StatusConflict:
		var apiErr dropboxError
		_ = json.Unmarshal(raw, &apiErr)
		if strings.Contains(apiErr.ErrorSummary, "not_found") {
			return "", domain.ErrResourceNotFound(Dropbox, path)
		}
		return "", domain.ErrProtocol(Dropbox, fmt.Errorf("%s", apiErr.ErrorSummary))
	default:
		return "", domain.ErrProtocol(Dropbox, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out listRevisionsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", domain.ErrProtocol(Dropbox, fmt.Errorf("decode response: %w", err))
	}
	if out.IsDeleted || len(out.Entries) == 0 || out.Entries[0].Rev == "" {
		return "", domain.ErrResourceNotFound(Dropbox, path)
	}
	return path + "/" + out.Entries[0].Rev, nil
}
