package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rawsql/internal/app"
	"rawsql/internal/domain"
	"rawsql/internal/executor"
	"rawsql/internal/history"
	"rawsql/internal/middleware"
)

type fakeService struct {
	err error

	gotOwner    string
	gotSQL      string
	gotBindings map[string]interface{}
	gotLimit    int
}

func (f *fakeService) Rewrite(_ context.Context, ownerID, sql string, bindings map[string]interface{}) (*domain.RewriteResult, error) {
	f.gotOwner, f.gotSQL, f.gotBindings = ownerID, sql, bindings
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RewriteResult{
		Database: domain.DatabaseDescriptor{Host: "pg", Database: "raw_" + ownerID},
		SQL:      "SELECT * FROM T1",
		Tables:   map[string]string{"unknown:dropbox/a.csv/rev1": "T1"},
	}, nil
}

func (f *fakeService) Query(ctx context.Context, ownerID, sql string, bindings map[string]interface{}) (*app.QueryResult, error) {
	rw, err := f.Rewrite(ctx, ownerID, sql, bindings)
	if err != nil {
		return nil, err
	}
	return &app.QueryResult{
		Rewrite: rw,
		Result: &executor.Result{
			Columns:   []string{"id", "name"},
			Rows:      [][]interface{}{{int64(1), "Ada"}},
			Truncated: true,
		},
	}, nil
}

func (f *fakeService) History(_ context.Context, ownerID string, limit int) ([]history.Entry, error) {
	f.gotOwner, f.gotLimit = ownerID, limit
	if f.err != nil {
		return nil, f.err
	}
	return []history.Entry{{ID: 1, OwnerID: ownerID, InputSQL: "SELECT 1", ErrorKind: "SCAN"}}, nil
}

func (f *fakeService) Status() app.Status {
	return app.Status{Protocols: []string{"dropbox"}, CachedClients: 3}
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	return NewRouter(t.Context(), RouterConfig{
		Service:   svc,
		RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	})
}

func do(t *testing.T, h http.Handler, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if owner != "" {
		req.Header.Set(middleware.HeaderOwnerID, owner)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, &fakeService{}), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []interface{}{"dropbox"}, body["protocols"])
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestRewrite(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestRouter(t, svc), http.MethodPost, "/v1/rewrite", "42",
		`{"sql":"SELECT * FROM CSV('a.csv', sep=s)","bindings":{"s":";","n":3,"f":1.5,"b":true,"z":null}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[RewriteResponse](t, rec)
	assert.Equal(t, "SELECT * FROM T1", body.SQL)
	assert.Equal(t, "raw_42", body.Database.Database)
	assert.Equal(t, "T1", body.Tables["unknown:dropbox/a.csv/rev1"])
	assert.Equal(t, rec.Header().Get(middleware.HeaderRequestID), body.RequestID)

	assert.Equal(t, "42", svc.gotOwner)
	assert.Equal(t, "SELECT * FROM CSV('a.csv', sep=s)", svc.gotSQL)
	assert.Equal(t, map[string]interface{}{
		"s": ";", "n": int64(3), "f": 1.5, "b": true, "z": nil,
	}, svc.gotBindings)
}

func TestRewrite_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		body    string
		want    int
		wantMsg string
	}{
		{"missing owner", "", `{"sql":"SELECT 1"}`, http.StatusUnauthorized, "X-Owner-ID"},
		{"invalid json", "42", `{"sql":`, http.StatusBadRequest, "invalid request body"},
		{"empty sql", "42", `{"sql":""}`, http.StatusBadRequest, "sql is required"},
		{"nested binding", "42", `{"sql":"SELECT 1","bindings":{"x":[1]}}`, http.StatusBadRequest, "must be a string, number"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newTestRouter(t, &fakeService{}), http.MethodPost, "/v1/rewrite", tc.owner, tc.body)
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantMsg)
		})
	}
}

func TestRewrite_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"multi statement", domain.ErrMultiStatement(), http.StatusBadRequest, "MULTI_STATEMENT"},
		{"scan", domain.ErrScan("FROM statement missing"), http.StatusBadRequest, "SCAN"},
		{"argument syntax", domain.ErrArgumentSyntax("CSV", "CSV(x)", "name 'x' is not defined"), http.StatusBadRequest, "ARGUMENT_SYNTAX"},
		{"unsupported protocol", domain.ErrUnsupportedProtocol("ftp"), http.StatusBadRequest, "UNSUPPORTED_PROTOCOL"},
		{"not found", domain.ErrResourceNotFound("dropbox", "a.csv"), http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"protocol", domain.ErrProtocol("dropbox", errors.New("boom")), http.StatusBadGateway, "PROTOCOL"},
		{"materialization", domain.ErrMaterialization(map[string]string{"u": "bad"}), http.StatusBadGateway, "MATERIALIZATION"},
		{"timeout", domain.ErrTimeout(), http.StatusGatewayTimeout, "TIMEOUT"},
		{"other", errors.New("disk full"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newTestRouter(t, &fakeService{err: tc.err}), http.MethodPost, "/v1/rewrite", "42", `{"sql":"SELECT 1"}`)
			assert.Equal(t, tc.want, rec.Code)

			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, tc.err.Error(), body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestRewrite_MaterializationDetails(t *testing.T) {
	err := domain.ErrMaterialization(map[string]string{"csv:dropbox/a.csv/r1": "bad header"})
	rec := do(t, newTestRouter(t, &fakeService{err: err}), http.MethodPost, "/v1/rewrite", "42", `{"sql":"SELECT 1"}`)

	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, map[string]string{"csv:dropbox/a.csv/r1": "bad header"}, body.Details)
}

func TestQuery(t *testing.T) {
	rec := do(t, newTestRouter(t, &fakeService{}), http.MethodPost, "/v1/query", "42", `{"sql":"SELECT * FROM 'a.csv'"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[QueryResponse](t, rec)
	assert.Equal(t, "SELECT * FROM T1", body.SQL)
	assert.Equal(t, []string{"id", "name"}, body.Columns)
	assert.Equal(t, 1, body.RowCount)
	assert.True(t, body.Truncated)
	assert.Equal(t, "Ada", body.Rows[0][1])
}

func TestQuery_ExecutionError(t *testing.T) {
	err := &app.ExecutionError{SQL: "SELECT nope FROM T1", Err: errors.New(`column "nope" does not exist`)}
	rec := do(t, newTestRouter(t, &fakeService{err: err}), http.MethodPost, "/v1/query", "42", `{"sql":"SELECT nope FROM 'a.csv'"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "EXECUTION_ERROR", body.Code)
}

func TestHistory(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodGet, "/v1/history", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[HistoryResponse](t, rec)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "42", body.Entries[0].OwnerID)
	assert.Equal(t, defaultHistoryLimit, svc.gotLimit)

	rec = do(t, h, http.MethodGet, "/v1/history?limit=5", "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.gotLimit)

	for _, bad := range []string{"0", "-1", "many", "501"} {
		rec = do(t, h, http.MethodGet, "/v1/history?limit="+bad, "42", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestRateLimitPerOwner(t *testing.T) {
	h := NewRouter(t.Context(), RouterConfig{
		Service:   &fakeService{},
		RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
	})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/history", "42", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/v1/history", "42", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/history", "7", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "", "").Code, "health is not limited")
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(t.Context(), RouterConfig{Service: &fakeService{}, CORSAllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/rewrite", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
