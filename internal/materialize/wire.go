package materialize

import "rawsql/internal/domain"

// Materialization service endpoints.
const (
	PathLoadURLs = "/v1/urls/load"
	PathTables   = "/v1/tables"
	PathTokens   = "/v1/tokens"
)

// HeaderRequestID carries the per-call request id.
const HeaderRequestID = "X-Request-ID"

// LoadURLsRequest is the JSON body sent to POST /v1/urls/load. The reply is a
// domain.LoadReply.
type LoadURLsRequest struct {
	OwnerID   string   `json:"owner_id"`
	URLs      []string `json:"urls"`
	RequestID string   `json:"request_id,omitempty"`
}

// CreateTablesRequest is the JSON body sent to POST /v1/tables. The reply is a
// domain.TablesReply.
type CreateTablesRequest struct {
	OwnerID   string                         `json:"owner_id"`
	Tables    map[string]domain.TableRequest `json:"tables"`
	RequestID string                         `json:"request_id,omitempty"`
}

// TokenRequest is the JSON body sent to POST /v1/tokens.
type TokenRequest struct {
	OwnerID   string `json:"owner_id"`
	Protocol  string `json:"protocol"`
	RequestID string `json:"request_id,omitempty"`
}

// TokenResponse carries a protocol access token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the JSON error body returned by the service on failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
