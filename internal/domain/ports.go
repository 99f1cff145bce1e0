package domain

import "context"

// ProtocolClient turns a raw path under one storage protocol into a canonical,
// version-stamped path. Implementations return ResourceNotFound or Protocol
// RewriteErrors.
type ProtocolClient interface {
	FullPath(ctx context.Context, path string) (string, error)
}

// TokenSource exchanges an owner's stored credential for an access token for
// the given protocol.
type TokenSource interface {
	Token(ctx context.Context, ownerID, protocol string) (string, error)
}

// MaterializationService is the external system that turns resolved URLs into
// queryable tables.
type MaterializationService interface {
	// LoadURLs asks the service to make urls ready. It is the poll target.
	LoadURLs(ctx context.Context, ownerID string, urls []string) (*LoadReply, error)
	// CreateTables binds a table for every url in payload. Only valid once
	// LoadURLs reports nothing pending.
	CreateTables(ctx context.Context, ownerID string, payload map[string]TableRequest) (*TablesReply, error)
}

// LoadReply reports per-URL failures and the URLs that are not ready yet.
type LoadReply struct {
	Errors  map[string]string `json:"errors"`
	Pending []string          `json:"pending"`
}

// TableRequest is the per-URL bind payload.
type TableRequest struct {
	Args       map[string]interface{} `json:"args"`
	FormatArgs map[string]interface{} `json:"format_args,omitempty"`
	Columns    []string               `json:"columns"`
}

// TablesReply maps every bound URL to its table name.
type TablesReply struct {
	Database DatabaseDescriptor `json:"database"`
	Tables   map[string]string  `json:"tables"`
}
