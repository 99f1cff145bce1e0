// Package materialize drives the two-phase exchange with the materialization
// service: poll until every URL is ready, then bind one table per URL.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"rawsql/internal/domain"
)

// ServiceProtocol names the materialization service in Protocol errors.
const ServiceProtocol = "materializer"

// Defaults for Options.
const (
	DefaultTimeout  = 90 * time.Second
	DefaultInterval = 500 * time.Millisecond
)

// Clock abstracts time so tests can simulate elapsed time.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options configures an Orchestrator. Zero values take the defaults.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// Result is the outcome of a successful materialization.
type Result struct {
	Database domain.DatabaseDescriptor
	Tables   map[string]string // url -> table name
	Polls    int
	Elapsed  time.Duration
}

// Orchestrator batches URLs into one readiness query, polls it on a fixed
// interval and binds tables once nothing is pending.
type Orchestrator struct {
	service  domain.MaterializationService
	timeout  time.Duration
	interval time.Duration
	clock    Clock
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator for service.
func NewOrchestrator(service domain.MaterializationService, opts Options) *Orchestrator {
	o := &Orchestrator{
		service:  service,
		timeout:  opts.Timeout,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.interval <= 0 {
		o.interval = DefaultInterval
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Materialize waits until every URL in requests is ready and then binds a
// table for each. Any per-URL failure aborts the whole batch.
func (o *Orchestrator) Materialize(ctx context.Context, ownerID string, requests map[string]domain.TableRequest) (*Result, error) {
	urls := make([]string, 0, len(requests))
	for u := range requests {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	if len(urls) == 0 {
		return &Result{Tables: map[string]string{}}, nil
	}

	start := o.clock.Now()
	polls, err := o.awaitReady(ctx, ownerID, urls, start)
	if err != nil {
		return nil, err
	}
	elapsed := o.clock.Now().Sub(start)
	o.logger.Info("materialization ready", "owner_id", ownerID, "urls", len(urls), "polls", polls, "elapsed", elapsed)

	reply, err := o.service.CreateTables(ctx, ownerID, requests)
	if err != nil {
		return nil, serviceError(err)
	}

	missing := make(map[string]string)
	for _, u := range urls {
		if reply.Tables[u] == "" {
			missing[u] = "no table bound"
		}
	}
	if len(missing) > 0 {
		return nil, domain.ErrMaterialization(missing)
	}
	o.logger.Info("tables bound", "owner_id", ownerID, "tables", len(reply.Tables), "host", reply.Database.Host)

	return &Result{
		Database: reply.Database,
		Tables:   reply.Tables,
		Polls:    polls,
		Elapsed:  elapsed,
	}, nil
}

// awaitReady re-submits the same URL set until nothing is pending. It returns
// the number of submissions made.
func (o *Orchestrator) awaitReady(ctx context.Context, ownerID string, urls []string, start time.Time) (int, error) {
	for attempt := 1; ; attempt++ {
		reply, err := o.service.LoadURLs(ctx, ownerID, urls)
		if err != nil {
			return attempt, serviceError(err)
		}
		if len(reply.Errors) > 0 {
			return attempt, domain.ErrMaterialization(reply.Errors)
		}
		if len(reply.Pending) == 0 {
			return attempt, nil
		}
		if o.clock.Now().Sub(start) > o.timeout {
			o.logger.Warn("materialization timed out", "owner_id", ownerID, "pending", len(reply.Pending), "polls", attempt)
			return attempt, domain.ErrTimeout()
		}

		o.logger.Debug("materialization pending", "owner_id", ownerID, "attempt", attempt, "pending", len(reply.Pending))
		if err := o.clock.Sleep(ctx, o.interval); err != nil {
			return attempt, fmt.Errorf("wait for materialization: %w", err)
		}
	}
}

func serviceError(err error) error {
	var rerr *domain.RewriteError
	if errors.As(err, &rerr) {
		return err
	}
	return domain.ErrProtocol(ServiceProtocol, err)
}
