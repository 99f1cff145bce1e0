package rewrite

import "rawsql/internal/sqltoken"

// Replacement replaces the inclusive token range [Start, End] with Table.
type Replacement struct {
	Start int
	End   int
	Table string
}

// Substitute returns toks with every replacement applied. Replacements must be
// disjoint and in source order; each range collapses into one Name token.
func Substitute(toks []sqltoken.Token, reps []Replacement) []sqltoken.Token {
	out := make([]sqltoken.Token, 0, len(toks))
	next := 0
	for _, rep := range reps {
		out = append(out, toks[next:rep.Start]...)
		out = append(out, sqltoken.Token{Kind: sqltoken.Name, Text: rep.Table})
		next = rep.End + 1
	}
	return append(out, toks[next:]...)
}
