package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"rawsql/internal/app"
	"rawsql/internal/domain"
	"rawsql/internal/history"
	"rawsql/internal/middleware"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Service is what the handlers need from the application.
type Service interface {
	Rewrite(ctx context.Context, ownerID, sql string, bindings map[string]interface{}) (*domain.RewriteResult, error)
	Query(ctx context.Context, ownerID, sql string, bindings map[string]interface{}) (*app.QueryResult, error)
	History(ctx context.Context, ownerID string, limit int) ([]history.Entry, error)
	Status() app.Status
}

var _ Service = (*app.App)(nil)

// StatementRequest is the body of POST /v1/rewrite and POST /v1/query.
type StatementRequest struct {
	SQL      string                 `json:"sql"`
	Bindings map[string]interface{} `json:"bindings,omitempty"`
}

// RewriteResponse is the body of a successful POST /v1/rewrite.
type RewriteResponse struct {
	Database  domain.DatabaseDescriptor `json:"database"`
	SQL       string                    `json:"sql"`
	Tables    map[string]string         `json:"tables"`
	RequestID string                    `json:"request_id"`
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	SQL       string          `json:"sql"`
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
	RequestID string          `json:"request_id"`
}

// HistoryResponse is the body of GET /v1/history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// Handler implements the HTTP endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
	started time.Time
}

// Health reports liveness plus the registered protocols.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := h.service.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"protocols":      status.Protocols,
		"cached_clients": status.CachedClients,
	})
}

// Rewrite handles POST /v1/rewrite.
func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	owner, req, ok := h.statement(w, r)
	if !ok {
		return
	}
	res, err := h.service.Rewrite(r.Context(), owner, req.SQL, req.Bindings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RewriteResponse{
		Database:  res.Database,
		SQL:       res.SQL,
		Tables:    res.Tables,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

// Query handles POST /v1/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	owner, req, ok := h.statement(w, r)
	if !ok {
		return
	}
	res, err := h.service.Query(r.Context(), owner, req.SQL, req.Bindings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	h.logger.Info("query completed", "request_id", requestID, "row_count", len(res.Result.Rows))
	writeJSON(w, http.StatusOK, QueryResponse{
		SQL:       res.Rewrite.SQL,
		Columns:   res.Result.Columns,
		Rows:      res.Result.Rows,
		RowCount:  len(res.Result.Rows),
		Truncated: res.Result.Truncated,
		RequestID: requestID,
	})
}

// History handles GET /v1/history?limit=N.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerIDFromContext(r.Context())

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			h.writeBadRequest(w, r, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	entries, err := h.service.History(r.Context(), owner, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// statement decodes a StatementRequest. It writes the error response itself
// and returns false when the request is unusable.
func (h *Handler) statement(w http.ResponseWriter, r *http.Request) (string, StatementRequest, bool) {
	owner, _ := middleware.OwnerIDFromContext(r.Context())

	var req StatementRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.writeBadRequest(w, r, "invalid request body: "+err.Error())
		return "", req, false
	}
	if req.SQL == "" {
		h.writeBadRequest(w, r, "sql is required")
		return "", req, false
	}
	bindings, err := normalizeBindings(req.Bindings)
	if err != nil {
		h.writeBadRequest(w, r, err.Error())
		return "", req, false
	}
	req.Bindings = bindings
	return owner, req, true
}

// normalizeBindings converts JSON numbers to int64 when integral and float64
// otherwise. Only scalar values are accepted.
func normalizeBindings(in map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(in))
	for name, v := range in {
		switch x := v.(type) {
		case json.Number:
			if n, err := x.Int64(); err == nil {
				out[name] = n
				continue
			}
			f, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("binding %q: %w", name, err)
			}
			out[name] = f
		case nil, string, bool:
			out[name] = x
		default:
			return nil, fmt.Errorf("binding %q must be a string, number, boolean or null", name)
		}
	}
	return out, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromError(err)
	requestID := middleware.RequestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", requestID, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse(err, requestID))
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		Code:      "BAD_REQUEST",
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
