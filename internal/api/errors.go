package api

import (
	"errors"
	"net/http"

	"rawsql/internal/app"
	"rawsql/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// httpStatusFromError maps rewrite failures to HTTP status codes.
func httpStatusFromError(err error) int {
	var execErr *app.ExecutionError
	if errors.As(err, &execErr) {
		return http.StatusUnprocessableEntity
	}

	switch domain.KindOf(err) {
	case domain.KindMultiStatement, domain.KindScan, domain.KindArgumentSyntax, domain.KindUnsupportedProtocol:
		return http.StatusBadRequest
	case domain.KindResourceNotFound:
		return http.StatusNotFound
	case domain.KindProtocol, domain.KindMaterialization:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var execErr *app.ExecutionError
	if errors.As(err, &execErr) {
		return "EXECUTION_ERROR"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "INTERNAL"
}

func errorResponse(err error, requestID string) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Code: errorCode(err), RequestID: requestID}
	var rerr *domain.RewriteError
	if errors.As(err, &rerr) && len(rerr.URLs) > 0 {
		resp.Details = rerr.URLs
	}
	return resp
}
