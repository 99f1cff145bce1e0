package sqltoken

import "strings"

// Tokenize returns every token of sql in source order, whitespace included.
func Tokenize(sql string) []Token {
	l := NewLexer(sql)
	var toks []Token
	for {
		tok, ok := l.NextToken()
		if !ok {
			return toks
		}
		toks = append(toks, tok)
	}
}

// SplitStatements splits a token sequence on ';'. Each statement keeps its
// terminating semicolon. Statements consisting only of whitespace are dropped.
func SplitStatements(toks []Token) [][]Token {
	var (
		stmts   [][]Token
		current []Token
	)
	flush := func() {
		if len(Significant(current)) > 0 {
			stmts = append(stmts, current)
		}
		current = nil
	}
	for _, tok := range toks {
		current = append(current, tok)
		if tok.IsPunct(";") {
			flush()
		}
	}
	flush()
	return stmts
}

// Significant returns a copy of toks without Whitespace tokens.
func Significant(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, tok := range toks {
		if tok.Kind != Whitespace {
			out = append(out, tok)
		}
	}
	return out
}

// Join reconstructs SQL text from tokens separated by a single space.
func Join(toks []Token) string {
	parts := make([]string, len(toks))
	for i, tok := range toks {
		parts[i] = tok.Text
	}
	return strings.Join(parts, " ")
}
