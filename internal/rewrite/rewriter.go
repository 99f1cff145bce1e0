// Package rewrite is the entry point of the SQL rewriter. It resolves every
// resource reference in a statement's FROM clause to a materialized table and
// returns plain SQL naming those tables.
package rewrite

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"rawsql/internal/domain"
	"rawsql/internal/formats"
	"rawsql/internal/materialize"
	"rawsql/internal/scanner"
	"rawsql/internal/sqltoken"
)

// resolveConcurrency bounds concurrent protocol lookups within one rewrite.
const resolveConcurrency = 8

// Resolver turns a path under a protocol into its canonical path.
type Resolver interface {
	Resolve(ctx context.Context, protocol, path, ownerID string) (string, error)
}

// Materializer makes a batch of URLs queryable.
type Materializer interface {
	Materialize(ctx context.Context, ownerID string, requests map[string]domain.TableRequest) (*materialize.Result, error)
}

// Rewriter rewrites statements for one or more owners. The Resolver it holds
// usually carries a client cache, so a Rewriter should be long-lived.
type Rewriter struct {
	formats      *formats.Registry
	scanner      *scanner.Scanner
	resolver     Resolver
	materializer Materializer
	logger       *slog.Logger
}

// New creates a Rewriter.
func New(reg *formats.Registry, resolver Resolver, materializer Materializer, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rewriter{
		formats:      reg,
		scanner:      scanner.New(reg.IsCallFormat),
		resolver:     resolver,
		materializer: materializer,
		logger:       logger,
	}
}

// Rewrite resolves and materializes every resource referenced in sql and
// returns the database holding the tables plus the rewritten statement.
// bindings supplies the values of bare identifiers in call arguments.
func (r *Rewriter) Rewrite(ctx context.Context, sql, ownerID string, bindings map[string]interface{}) (*domain.RewriteResult, error) {
	result, err := r.rewrite(ctx, sql, ownerID, bindings)
	if err != nil {
		r.logger.Warn("rewrite failed", "owner_id", ownerID, "kind", domain.KindOf(err), "error", err)
		return nil, err
	}
	return result, nil
}

func (r *Rewriter) rewrite(ctx context.Context, sql, ownerID string, bindings map[string]interface{}) (*domain.RewriteResult, error) {
	stmts := sqltoken.SplitStatements(sqltoken.Tokenize(sql))
	if len(stmts) != 1 {
		return nil, domain.ErrMultiStatement()
	}
	toks := sqltoken.Significant(stmts[0])

	refs, err := r.scanner.Scan(toks)
	if err != nil {
		return nil, err
	}

	descs, err := r.describe(toks, refs, bindings)
	if err != nil {
		return nil, err
	}

	urls, err := r.resolve(ctx, ownerID, descs)
	if err != nil {
		return nil, err
	}

	requests := make(map[string]domain.TableRequest, len(urls))
	for _, u := range urls {
		requests[u.Key] = domain.TableRequest{
			Args:       u.Descriptor.PassthroughKwargs,
			FormatArgs: u.Descriptor.FormatArgs,
			Columns:    []string{},
		}
	}

	res, err := r.materializer.Materialize(ctx, ownerID, requests)
	if err != nil {
		return nil, err
	}

	reps := make([]Replacement, len(refs))
	for i, ref := range refs {
		reps[i] = Replacement{Start: ref.Span.Start, End: ref.Span.End, Table: res.Tables[urls[i].Key]}
	}

	tables := make(map[string]string, len(requests))
	for key := range requests {
		tables[key] = res.Tables[key]
	}

	r.logger.Debug("rewrite complete", "owner_id", ownerID, "resources", len(refs), "tables", len(tables))
	return &domain.RewriteResult{
		Database: res.Database,
		SQL:      sqltoken.Join(Substitute(toks, reps)),
		Tables:   tables,
	}, nil
}

// describe parses every reference into a descriptor, in source order.
func (r *Rewriter) describe(toks []sqltoken.Token, refs []scanner.Reference, bindings map[string]interface{}) ([]domain.ResourceDescriptor, error) {
	descs := make([]domain.ResourceDescriptor, len(refs))
	for i, ref := range refs {
		if ref.Span.IsLiteral() {
			descs[i] = r.formats.Literal(toks[ref.Span.Start])
			continue
		}
		desc, err := r.formats.Call(ref.Span.Format, ref.Span.Args, bindings)
		if err != nil {
			return nil, err
		}
		descs[i] = desc
	}
	return descs, nil
}

// resolve looks up the canonical path of every descriptor concurrently.
func (r *Rewriter) resolve(ctx context.Context, ownerID string, descs []domain.ResourceDescriptor) ([]domain.ResolvedURL, error) {
	urls := make([]domain.ResolvedURL, len(descs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, desc := range descs {
		g.Go(func() error {
			canonical, err := r.resolver.Resolve(gctx, desc.Protocol, desc.Path, ownerID)
			if err != nil {
				return err
			}
			urls[i] = domain.ResolvedURL{
				Key:           EncodeURL(desc, canonical),
				CanonicalPath: canonical,
				Format:        desc.Format,
				Descriptor:    desc,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}
