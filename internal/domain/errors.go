// Package domain defines core types, interfaces, and errors for the SQL rewriter.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind tags a RewriteError with one of the failure classes a rewrite can end in.
type ErrorKind string

// Rewrite failure kinds.
const (
	KindMultiStatement      ErrorKind = "MULTI_STATEMENT"
	KindScan                ErrorKind = "SCAN"
	KindArgumentSyntax      ErrorKind = "ARGUMENT_SYNTAX"
	KindUnsupportedProtocol ErrorKind = "UNSUPPORTED_PROTOCOL"
	KindResourceNotFound    ErrorKind = "RESOURCE_NOT_FOUND"
	KindProtocol            ErrorKind = "PROTOCOL"
	KindMaterialization     ErrorKind = "MATERIALIZATION"
	KindTimeout             ErrorKind = "TIMEOUT"
)

// RewriteError is the single error type returned by a rewrite. Only the fields
// relevant to Kind are populated.
type RewriteError struct {
	Kind     ErrorKind
	Message  string
	Format   string            // ArgumentSyntax
	Text     string            // ArgumentSyntax: offending call text
	Protocol string            // UnsupportedProtocol, ResourceNotFound, Protocol
	Path     string            // ResourceNotFound
	Detail   string            // Protocol
	URLs     map[string]string // Materialization: url -> service message
	Err      error
}

func (e *RewriteError) Error() string { return e.Message }

func (e *RewriteError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first RewriteError in err's chain, or "" when
// err is not a rewrite failure.
func KindOf(err error) ErrorKind {
	var rerr *RewriteError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

// IsKind reports whether err carries a RewriteError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ErrMultiStatement reports that the input held other than exactly one statement.
func ErrMultiStatement() *RewriteError {
	return &RewriteError{Kind: KindMultiStatement, Message: "Only a single SQL statement is allowed"}
}

// ErrScan creates a Scan error with a formatted message.
func ErrScan(format string, args ...interface{}) *RewriteError {
	return &RewriteError{Kind: KindScan, Message: fmt.Sprintf(format, args...)}
}

// ErrArgumentSyntax reports a call-resource whose arguments do not match the
// registered grammar. text is the reconstructed call, e.g. "csv('a.csv', 1 +)".
func ErrArgumentSyntax(format, text, reason string) *RewriteError {
	msg := fmt.Sprintf("Invalid argument syntax %s", text)
	if reason != "" {
		msg += ": " + reason
	}
	return &RewriteError{Kind: KindArgumentSyntax, Message: msg, Format: format, Text: text}
}

// ErrUnsupportedProtocol reports a path prefix with no registered client.
func ErrUnsupportedProtocol(protocol string) *RewriteError {
	return &RewriteError{
		Kind:     KindUnsupportedProtocol,
		Message:  fmt.Sprintf("Protocol not supported: %s", protocol),
		Protocol: protocol,
	}
}

// ErrResourceNotFound reports that the protocol's remote store has no such path.
func ErrResourceNotFound(protocol, path string) *RewriteError {
	return &RewriteError{
		Kind:     KindResourceNotFound,
		Message:  fmt.Sprintf("File not found in %s: %s", protocol, path),
		Protocol: protocol,
		Path:     path,
	}
}

// ErrProtocol wraps any other failure talking to a protocol's remote store.
func ErrProtocol(protocol string, err error) *RewriteError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &RewriteError{
		Kind:     KindProtocol,
		Message:  fmt.Sprintf("Error contacting %s: %s", protocol, detail),
		Protocol: protocol,
		Detail:   detail,
		Err:      err,
	}
}

// ErrMaterialization aggregates every per-URL failure the service reported.
func ErrMaterialization(urls map[string]string) *RewriteError {
	keys := make([]string, 0, len(urls))
	for u := range urls {
		keys = append(keys, u)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, u := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", u, urls[u]))
	}
	return &RewriteError{
		Kind:    KindMaterialization,
		Message: "Failed processing file(s): " + strings.Join(parts, " "),
		URLs:    urls,
	}
}

// ErrTimeout reports that readiness polling exceeded its budget.
func ErrTimeout() *RewriteError {
	return &RewriteError{Kind: KindTimeout, Message: "Timed out while building the database"}
}
