// Package formats holds the argument grammar of every resource format that may
// appear in a FROM clause. A format declares its positional parameters and
// their defaults; call arguments are parsed against that declaration and are
// never evaluated.
package formats

import (
	"sort"
	"strings"

	"rawsql/internal/domain"
	"rawsql/internal/sqltoken"
)

// Unknown is the format of a bare string-literal resource.
const Unknown = "unknown"

// Param is one declared parameter. The first parameter of every format is the
// resource path and has no default.
type Param struct {
	Name    string
	Default interface{}
}

// Format is the declaration of one resource format.
type Format struct {
	Name   string
	Params []Param
	// LiteralOnly formats are only reachable through bare string literals and
	// cannot be called as NAME(...).
	LiteralOnly bool
}

// CSV is the csv(path, sep=',', skiprows=None, header='infer', **kwargs) format.
var CSV = Format{
	Name: "csv",
	Params: []Param{
		{Name: "path"},
		{Name: "sep", Default: ","},
		{Name: "skiprows", Default: nil},
		{Name: "header", Default: "infer"},
	},
}

// UnknownFormat is the format of bare literal resources.
var UnknownFormat = Format{
	Name:        Unknown,
	Params:      []Param{{Name: "path"}},
	LiteralOnly: true,
}

// Registry maps format names, case-insensitively, to their declarations.
type Registry struct {
	formats         map[string]Format
	defaultProtocol string
}

// NewRegistry creates a registry holding the given formats. Paths without a
// protocol prefix resolve to defaultProtocol.
func NewRegistry(defaultProtocol string, formats ...Format) *Registry {
	r := &Registry{
		formats:         make(map[string]Format, len(formats)),
		defaultProtocol: defaultProtocol,
	}
	for _, f := range formats {
		r.formats[strings.ToLower(f.Name)] = f
	}
	return r
}

// Default returns a registry with the unknown and csv formats.
func Default(defaultProtocol string) *Registry {
	return NewRegistry(defaultProtocol, UnknownFormat, CSV)
}

// Lookup returns the format registered under name.
func (r *Registry) Lookup(name string) (Format, bool) {
	f, ok := r.formats[strings.ToLower(name)]
	return f, ok
}

// IsCallFormat reports whether name may open a NAME(...) resource.
func (r *Registry) IsCallFormat(name string) bool {
	f, ok := r.Lookup(name)
	return ok && !f.LiteralOnly
}

// Names returns the registered format names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.formats))
	for name := range r.formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProtocol returns the protocol used for paths without a prefix.
func (r *Registry) DefaultProtocol() string { return r.defaultProtocol }

// Literal describes a bare string-literal resource.
func (r *Registry) Literal(tok sqltoken.Token) domain.ResourceDescriptor {
	protocol, path := SplitPath(tok.Unquote(), r.defaultProtocol)
	return domain.ResourceDescriptor{
		Format:            Unknown,
		Protocol:          protocol,
		Path:              path,
		FormatArgs:        map[string]interface{}{},
		PassthroughKwargs: map[string]interface{}{},
	}
}

// SplitPath splits "protocol:path" on the first colon. A path without a colon,
// or with an empty prefix, belongs to defaultProtocol.
func SplitPath(resource, defaultProtocol string) (protocol, path string) {
	protocol, path, found := strings.Cut(resource, ":")
	if !found {
		return defaultProtocol, resource
	}
	if protocol == "" {
		return defaultProtocol, path
	}
	return protocol, path
}
