// Package scanner locates the FROM clause of a statement and extracts the
// resource references listed in it.
//
// The grammar accepted after FROM is
//
//	resource_list    := resource (',' resource)*
//	resource         := literal_resource | call_resource
//	literal_resource := STRING [ AS NAME ]
//	call_resource    := FORMAT '(' ... ')' [ AS NAME ]
//
// and is driven by an explicit state machine: every state has one step
// function for the next token and one for end of input.
package scanner

import (
	"rawsql/internal/domain"
	"rawsql/internal/sqltoken"
)

// State names a scanner state.
type State int

// Scanner states.
const (
	SeekFrom State = iota
	ExpectResource
	ExpectArgsOpen
	InArgs
	AfterResource
	ExpectAlias
	AfterAlias
	Done
)

var stateNames = map[State]string{
	SeekFrom:       "SeekFrom",
	ExpectResource: "ExpectResource",
	ExpectArgsOpen: "ExpectArgsOpen",
	InArgs:         "InArgs",
	AfterResource:  "AfterResource",
	ExpectAlias:    "ExpectAlias",
	AfterAlias:     "AfterAlias",
	Done:           "Done",
}

func (s State) String() string { return stateNames[s] }

// Span is a contiguous range of significant tokens holding one resource
// reference. Start == End for a literal path; otherwise the span covers
// FORMAT ( ... ) including both parentheses.
type Span struct {
	Start  int
	End    int
	Format string
	Args   []sqltoken.Token
}

// IsLiteral reports whether the span is a bare string-literal resource.
func (s Span) IsLiteral() bool { return s.Start == s.End }

// Reference is one scanned resource plus its optional alias. AliasIndex is -1
// when there is no alias.
type Reference struct {
	Span       Span
	Alias      string
	AliasIndex int
}

// Scanner extracts resource references. isFormat reports whether a Name token
// opens a call resource.
type Scanner struct {
	isFormat func(name string) bool
}

// New creates a Scanner recognizing the call formats accepted by isFormat.
func New(isFormat func(name string) bool) *Scanner {
	return &Scanner{isFormat: isFormat}
}

// machine is the mutable state of one Scan call.
type machine struct {
	scanner *Scanner
	toks    []sqltoken.Token
	refs    []Reference

	depth  int // parenthesis depth; outside FROM while seeking, inside args while scanning
	start  int
	format string
}

type (
	stepFunc func(m *machine, i int, tok sqltoken.Token) (State, error)
	eofFunc  func(m *machine) error
)

// transitions is the scanner's transition table.
var transitions = map[State]struct {
	step stepFunc
	eof  eofFunc
}{
	SeekFrom:       {step: (*machine).seekFrom, eof: eofError("FROM statement missing")},
	ExpectResource: {step: (*machine).expectResource, eof: eofError("FROM badly formed")},
	ExpectArgsOpen: {step: (*machine).expectArgsOpen, eof: func(m *machine) error { return domain.ErrScan("%s badly formed", m.format) }},
	InArgs:         {step: (*machine).inArgs, eof: func(m *machine) error { return domain.ErrScan("%s arguments badly formed", m.format) }},
	AfterResource:  {step: (*machine).afterResource, eof: eofAccept},
	ExpectAlias:    {step: (*machine).expectAlias, eof: eofError("AS badly formed")},
	AfterAlias:     {step: (*machine).afterAlias, eof: eofAccept},
}

func eofError(msg string) eofFunc {
	return func(*machine) error { return domain.ErrScan("%s", msg) }
}

func eofAccept(*machine) error { return nil }

// Scan runs the state machine over significant (non-whitespace) tokens and
// returns the references in source order.
func (s *Scanner) Scan(toks []sqltoken.Token) ([]Reference, error) {
	m := &machine{scanner: s, toks: toks}
	state := SeekFrom
	for i := 0; i < len(toks) && state != Done; i++ {
		next, err := transitions[state].step(m, i, toks[i])
		if err != nil {
			return nil, err
		}
		state = next
	}
	if state != Done {
		if err := transitions[state].eof(m); err != nil {
			return nil, err
		}
	}
	return m.refs, nil
}

func (m *machine) seekFrom(_ int, tok sqltoken.Token) (State, error) {
	switch {
	case tok.IsPunct("("):
		m.depth++
	case tok.IsPunct(")"):
		m.depth--
	case m.depth == 0 && tok.IsKeyword("FROM"):
		return ExpectResource, nil
	}
	return SeekFrom, nil
}

func (m *machine) expectResource(i int, tok sqltoken.Token) (State, error) {
	switch {
	case tok.Kind == sqltoken.StringLiteral:
		m.refs = append(m.refs, Reference{Span: Span{Start: i, End: i}, AliasIndex: -1})
		return AfterResource, nil
	case tok.Kind == sqltoken.Name && m.scanner.isFormat(tok.Text):
		m.start = i
		m.format = tok.Text
		return ExpectArgsOpen, nil
	}
	return 0, domain.ErrScan("Expected filename or function(...) and found '%s'", tok.Text)
}

func (m *machine) expectArgsOpen(_ int, tok sqltoken.Token) (State, error) {
	if !tok.IsPunct("(") {
		return 0, domain.ErrScan("Expected ( after %s and found '%s'", m.format, tok.Text)
	}
	m.depth = 1
	return InArgs, nil
}

func (m *machine) inArgs(i int, tok sqltoken.Token) (State, error) {
	switch {
	case tok.IsPunct("("):
		m.depth++
	case tok.IsPunct(")"):
		m.depth--
		if m.depth == 0 {
			m.refs = append(m.refs, Reference{
				Span: Span{
					Start:  m.start,
					End:    i,
					Format: m.format,
					Args:   append([]sqltoken.Token(nil), m.toks[m.start+2:i]...),
				},
				AliasIndex: -1,
			})
			return AfterResource, nil
		}
	}
	return InArgs, nil
}

func (m *machine) afterResource(_ int, tok sqltoken.Token) (State, error) {
	switch {
	case tok.IsPunct(","):
		return ExpectResource, nil
	case isTerminator(tok):
		return Done, nil
	case tok.IsKeyword("AS"):
		return ExpectAlias, nil
	case isJoin(tok):
		return 0, joinUnsupported(tok)
	}
	return 0, domain.ErrScan("Expected , or AS and found '%s'", tok.Text)
}

func (m *machine) expectAlias(i int, tok sqltoken.Token) (State, error) {
	if !isAliasName(tok) {
		return 0, domain.ErrScan("Expected name and found '%s'", tok.Text)
	}
	last := &m.refs[len(m.refs)-1]
	last.Alias = tok.Text
	last.AliasIndex = i
	return AfterAlias, nil
}

func (m *machine) afterAlias(_ int, tok sqltoken.Token) (State, error) {
	switch {
	case tok.IsPunct(","):
		return ExpectResource, nil
	case isTerminator(tok):
		return Done, nil
	case isJoin(tok):
		return 0, joinUnsupported(tok)
	}
	return 0, domain.ErrScan("Expected , or WHERE and found '%s'", tok.Text)
}

// clauseKeywords end the resource list.
var clauseKeywords = []string{
	"WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET",
	"QUALIFY", "WINDOW", "UNION", "INTERSECT", "EXCEPT",
}

var joinKeywords = []string{
	"JOIN", "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "NATURAL",
	"OUTER", "ASOF", "POSITIONAL", "ANTI", "SEMI",
}

// reservedWords cannot name an alias even though other keywords (FIRST, LAST,
// ROWS, ...) can.
var reservedWords = []string{
	"AS", "FROM", "SELECT", "ON", "USING", "WITH", "AND", "OR", "NOT", "IN", "IS",
	"LIKE", "ILIKE", "BETWEEN", "NULL", "TRUE", "FALSE", "CASE", "WHEN", "THEN",
	"ELSE", "END", "DISTINCT", "ALL", "INTO", "CAST", "TABLE", "LATERAL",
	"PIVOT", "UNPIVOT", "VALUES", "RETURNING",
}

func isAliasName(tok sqltoken.Token) bool {
	switch tok.Kind {
	case sqltoken.Name:
		return true
	case sqltoken.Keyword:
		if isTerminator(tok) || isJoin(tok) {
			return false
		}
		for _, w := range reservedWords {
			if tok.IsKeyword(w) {
				return false
			}
		}
		return true
	}
	return false
}

func isTerminator(tok sqltoken.Token) bool {
	if tok.IsPunct(";") {
		return true
	}
	for _, kw := range clauseKeywords {
		if tok.IsKeyword(kw) {
			return true
		}
	}
	return false
}

func isJoin(tok sqltoken.Token) bool {
	for _, kw := range joinKeywords {
		if tok.IsKeyword(kw) {
			return true
		}
	}
	return false
}

func joinUnsupported(tok sqltoken.Token) error {
	return domain.ErrScan("%s is not supported: list resources separated by commas and filter in WHERE", tok.Text)
}
