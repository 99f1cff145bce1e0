package formats

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"rawsql/internal/domain"
	"rawsql/internal/sqltoken"
)

// Call describes a NAME(...) resource. args are the significant tokens between
// the outer parentheses. bindings supplies the values of bare identifiers.
//
// The argument list is parsed as a Starlark call expression and the resulting
// syntax tree is walked with a closed value grammar: string and integer
// literals, True/False/None (or SQL TRUE/FALSE/NULL) and names looked up in
// bindings. Nothing is executed.
func (r *Registry) Call(format string, args []sqltoken.Token, bindings map[string]interface{}) (domain.ResourceDescriptor, error) {
	text := format + "(" + sqltoken.Join(args) + ")"

	f, ok := r.Lookup(format)
	if !ok || f.LiteralOnly {
		return domain.ResourceDescriptor{}, domain.ErrArgumentSyntax(format, text, "unknown format")
	}

	expr, err := (&syntax.FileOptions{}).ParseExpr(format+"(...)", callSource(f.Name, args), 0)
	if err != nil {
		return domain.ResourceDescriptor{}, domain.ErrArgumentSyntax(format, text, "")
	}
	call, ok := expr.(*syntax.CallExpr)
	if !ok {
		return domain.ResourceDescriptor{}, domain.ErrArgumentSyntax(format, text, "")
	}

	p := &argParser{format: f, bindings: bindings}
	values, kwargs, err := p.bind(call.Args)
	if err != nil {
		return domain.ResourceDescriptor{}, domain.ErrArgumentSyntax(format, text, err.Error())
	}

	path, ok := values["path"].(string)
	if !ok {
		reason := "path must be a string"
		if _, present := values["path"]; !present {
			reason = "missing required argument 'path'"
		}
		return domain.ResourceDescriptor{}, domain.ErrArgumentSyntax(format, text, reason)
	}
	delete(values, "path")

	protocol, path := SplitPath(path, r.defaultProtocol)
	return domain.ResourceDescriptor{
		Format:            f.Name,
		Protocol:          protocol,
		Path:              path,
		FormatArgs:        values,
		PassthroughKwargs: kwargs,
	}, nil
}

// callSource rebuilds Starlark source for the call. SQL string literals use
// doubled quotes as escapes; they are rewritten to backslash escapes so
// sequences such as '\t' keep their usual meaning.
func callSource(name string, args []sqltoken.Token) string {
	parts := make([]string, len(args))
	for i, tok := range args {
		if tok.Kind == sqltoken.StringLiteral && len(tok.Text) >= 2 {
			inner := tok.Text[1 : len(tok.Text)-1]
			parts[i] = "'" + strings.ReplaceAll(inner, "''", `\'`) + "'"
			continue
		}
		parts[i] = tok.Text
	}
	return name + "(" + strings.Join(parts, " ") + ")"
}

type argParser struct {
	format   Format
	bindings map[string]interface{}
}

// bind assigns call arguments to declared parameters. Declared parameters
// missing from the call take their defaults; unknown keywords are returned as
// passthrough kwargs.
func (p *argParser) bind(args []syntax.Expr) (values, kwargs map[string]interface{}, err error) {
	values = make(map[string]interface{}, len(p.format.Params))
	kwargs = make(map[string]interface{})
	assigned := make(map[string]bool)

	positional, seenKeyword := 0, false
	for _, arg := range args {
		switch a := arg.(type) {
		case *syntax.BinaryExpr:
			if a.Op != syntax.EQ {
				break
			}
			id, ok := a.X.(*syntax.Ident)
			if !ok {
				return nil, nil, fmt.Errorf("keyword argument must have form name=value")
			}
			seenKeyword = true
			if assigned[id.Name] {
				return nil, nil, fmt.Errorf("got multiple values for argument '%s'", id.Name)
			}
			assigned[id.Name] = true

			v, err := p.value(a.Y)
			if err != nil {
				return nil, nil, err
			}
			if p.declared(id.Name) {
				values[id.Name] = v
			} else {
				kwargs[id.Name] = v
			}
			continue
		case *syntax.UnaryExpr:
			if a.Op == syntax.STAR || a.Op == syntax.STARSTAR {
				return nil, nil, fmt.Errorf("*args and **kwargs are not supported")
			}
		}

		if seenKeyword {
			return nil, nil, fmt.Errorf("positional argument follows keyword argument")
		}
		if positional >= len(p.format.Params) {
			return nil, nil, fmt.Errorf("%s takes at most %d positional arguments", p.format.Name, len(p.format.Params))
		}
		name := p.format.Params[positional].Name
		positional++

		v, err := p.value(arg)
		if err != nil {
			return nil, nil, err
		}
		assigned[name] = true
		values[name] = v
	}

	for i, param := range p.format.Params {
		if i == 0 {
			continue
		}
		if _, ok := values[param.Name]; !ok {
			values[param.Name] = param.Default
		}
	}
	return values, kwargs, nil
}

func (p *argParser) declared(name string) bool {
	for _, param := range p.format.Params {
		if param.Name == name {
			return true
		}
	}
	return false
}

// value converts one argument expression using the closed value grammar.
func (p *argParser) value(e syntax.Expr) (interface{}, error) {
	switch e := e.(type) {
	case *syntax.Literal:
		switch e.Token {
		case syntax.STRING:
			if s, ok := e.Value.(string); ok {
				return s, nil
			}
		case syntax.INT:
			if n, ok := e.Value.(int64); ok {
				return n, nil
			}
			return nil, fmt.Errorf("integer %s out of range", e.Raw)
		}
		return nil, fmt.Errorf("unsupported literal %s", e.Raw)
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			if lit, ok := e.X.(*syntax.Literal); ok && lit.Token == syntax.INT {
				v, err := p.value(lit)
				if err != nil {
					return nil, err
				}
				return -v.(int64), nil
			}
		}
	case *syntax.ParenExpr:
		return p.value(e.X)
	case *syntax.Ident:
		switch strings.ToLower(e.Name) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "none", "null":
			return nil, nil
		}
		if v, ok := p.bindings[e.Name]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("name '%s' is not defined", e.Name)
	}
	return nil, fmt.Errorf("unsupported expression")
}
