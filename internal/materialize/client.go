package materialize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"rawsql/internal/domain"
)

var (
	_ domain.MaterializationService = (*Client)(nil)
	_ domain.TokenSource            = (*Client)(nil)
)

// Client talks JSON over HTTP to the materialization service. It also serves
// as the token source for protocols whose credentials the service stores.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Client for the service at baseURL. When secret is set,
// every request carries signed headers.
func NewClient(baseURL, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// LoadURLs asks the service to make urls ready and reports their state.
func (c *Client) LoadURLs(ctx context.Context, ownerID string, urls []string) (*domain.LoadReply, error) {
	requestID := uuid.New().String()
	var reply domain.LoadReply
	if err := c.post(ctx, PathLoadURLs, requestID, LoadURLsRequest{OwnerID: ownerID, URLs: urls, RequestID: requestID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// CreateTables binds one table per URL.
func (c *Client) CreateTables(ctx context.Context, ownerID string, payload map[string]domain.TableRequest) (*domain.TablesReply, error) {
	requestID := uuid.New().String()
	var reply domain.TablesReply
	if err := c.post(ctx, PathTables, requestID, CreateTablesRequest{OwnerID: ownerID, Tables: payload, RequestID: requestID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Token exchanges the owner's stored credential for an access token.
func (c *Client) Token(ctx context.Context, ownerID, protocol string) (string, error) {
	requestID := uuid.New().String()
	var reply TokenResponse
	if err := c.post(ctx, PathTokens, requestID, TokenRequest{OwnerID: ownerID, Protocol: protocol, RequestID: requestID}, &reply); err != nil {
		return "", err
	}
	if reply.Token == "" {
		return "", fmt.Errorf("materializer returned an empty %s token", protocol)
	}
	return reply.Token, nil
}

func (c *Client) post(ctx context.Context, path, requestID string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if c.secret != "" {
		AttachSignedHeaders(req, c.secret, body, c.now())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
