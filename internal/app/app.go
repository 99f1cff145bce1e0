// Package app wires the rewriter, its collaborators, the executor and the
// history store from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rawsql/internal/config"
	"rawsql/internal/domain"
	"rawsql/internal/executor"
	"rawsql/internal/formats"
	"rawsql/internal/history"
	"rawsql/internal/materialize"
	"rawsql/internal/protocol"
	"rawsql/internal/rewrite"
)

// Deps holds the external dependencies that main() must provide. Service and
// Tokens default to an HTTP client for cfg.MaterializerURL; History may be nil
// to disable recording.
type Deps struct {
	Cfg        *config.Config
	Logger     *slog.Logger
	HTTPClient *http.Client
	Service    domain.MaterializationService
	Tokens     domain.TokenSource
	Clock      materialize.Clock
	History    *history.Store
	Opener     executor.Opener
}

// ExecutionError wraps a failure of the rewritten statement itself, as opposed
// to a failure to rewrite it.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string { return "execute rewritten query: " + e.Err.Error() }

func (e *ExecutionError) Unwrap() error { return e.Err }

// QueryResult is a rewrite plus the rows its statement produced.
type QueryResult struct {
	Rewrite *domain.RewriteResult
	Result  *executor.Result
}

// App is the fully-wired application.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *protocol.Registry
	clients  *protocol.ClientCache
	rewriter *rewrite.Rewriter
	executor *executor.Executor
	history  *history.Store
}

// New wires the application from deps.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	service, tokens := deps.Service, deps.Tokens
	if service == nil || tokens == nil {
		client := materialize.NewClient(cfg.MaterializerURL, cfg.MaterializerToken, httpClient)
		if service == nil {
			service = client
		}
		if tokens == nil {
			tokens = client
		}
	}

	registry := Protocols(cfg, tokens, httpClient)
	logger.Info("protocols registered", "protocols", registry.Protocols(), "default", cfg.DefaultProtocol)

	clients := protocol.NewClientCache(registry, logger.With("component", "protocol"))
	orchestrator := materialize.NewOrchestrator(service, materialize.Options{
		Timeout:  cfg.MaterializeTimeout,
		Interval: cfg.MaterializePollInterval,
		Clock:    deps.Clock,
		Logger:   logger.With("component", "materialize"),
	})
	rewriter := rewrite.New(formats.Default(cfg.DefaultProtocol), clients, orchestrator, logger.With("component", "rewrite"))

	var exec *executor.Executor
	if deps.Opener != nil {
		exec = executor.NewWithOpener(deps.Opener, cfg.DisplayLimit, logger.With("component", "executor"))
	} else {
		exec = executor.New(cfg.DisplayLimit, logger.With("component", "executor"))
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		clients:  clients,
		rewriter: rewriter,
		executor: exec,
		history:  deps.History,
	}, nil
}

// Protocols builds the protocol registry: the default dropbox protocol is always
// available, the object stores only when their credentials are configured.
func Protocols(cfg *config.Config, tokens domain.TokenSource, httpClient *http.Client) *protocol.Registry {
	reg := protocol.NewRegistry()
	reg.Register(protocol.Dropbox, protocol.DropboxFactory(cfg.DropboxAPIURL, tokens, httpClient))

	if cfg.HasS3Config() {
		s3cfg := protocol.S3Config{KeyID: *cfg.S3KeyID, Secret: *cfg.S3Secret}
		if cfg.S3Endpoint != nil {
			s3cfg.Endpoint = *cfg.S3Endpoint
		}
		if cfg.S3Region != nil {
			s3cfg.Region = *cfg.S3Region
		}
		reg.Register(protocol.S3, protocol.S3Factory(s3cfg))
	}
	if cfg.HasGCSConfig() {
		reg.Register(protocol.GCS, protocol.GCSFactory(cfg.GCSKeyFile))
	}
	if cfg.HasAzureConfig() {
		reg.Register(protocol.Azure, protocol.AzureFactory(cfg.AzureAccountName, cfg.AzureAccountKey))
	}
	return reg
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Status is a health snapshot.
type Status struct {
	Protocols     []string `json:"protocols"`
	CachedClients int      `json:"cached_clients"`
}

// Status reports the registered protocols and the number of live protocol clients.
func (a *App) Status() Status {
	return Status{Protocols: a.registry.Protocols(), CachedClients: a.clients.Len()}
}

// Rewrite rewrites sql for ownerID and records the attempt.
func (a *App) Rewrite(ctx context.Context, ownerID, sql string, bindings map[string]interface{}) (*domain.RewriteResult, error) {
	start := time.Now()
	res, err := a.rewriter.Rewrite(ctx, sql, ownerID, bindings)
	a.record(ctx, ownerID, sql, res, err, time.Since(start))
	return res, err
}

// Query rewrites sql and runs the result against the bound database. A failing
// statement is returned as an *ExecutionError.
func (a *App) Query(ctx context.Context, ownerID, sql string, bindings map[string]interface{}) (*QueryResult, error) {
	rw, err := a.Rewrite(ctx, ownerID, sql, bindings)
	if err != nil {
		return nil, err
	}
	res, err := a.executor.Run(ctx, rw.Database, rw.SQL)
	if err != nil {
		return nil, &ExecutionError{SQL: rw.SQL, Err: err}
	}
	return &QueryResult{Rewrite: rw, Result: res}, nil
}

// History lists ownerID's recent rewrites, newest first.
func (a *App) History(ctx context.Context, ownerID string, limit int) ([]history.Entry, error) {
	if a.history == nil {
		return []history.Entry{}, nil
	}
	return a.history.List(ctx, ownerID, limit)
}

// Close releases the history store.
func (a *App) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

func (a *App) record(ctx context.Context, ownerID, sql string, res *domain.RewriteResult, rerr error, elapsed time.Duration) {
	if a.history == nil {
		return
	}
	entry := history.Entry{
		OwnerID:    ownerID,
		InputSQL:   sql,
		DurationMs: elapsed.Milliseconds(),
	}
	if rerr != nil {
		entry.ErrorKind = string(domain.KindOf(rerr))
		entry.ErrorMessage = rerr.Error()
	} else {
		entry.RewrittenSQL = res.SQL
		entry.Resources = len(res.Tables)
	}

	// Recording outlives a canceled request.
	if _, err := a.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("record history failed", "owner_id", ownerID, "error", fmt.Errorf("history: %w", err))
	}
}
