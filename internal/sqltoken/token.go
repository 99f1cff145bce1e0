// Package sqltoken splits SQL text into typed tokens that keep their original
// source text. Whitespace and comments are kept as tokens so callers can decide
// what to drop; nothing is ever re-quoted or re-cased.
package sqltoken

import (
	"fmt"
	"strings"
)

// Kind classifies a token.
type Kind int

// Token kinds.
const (
	Keyword Kind = iota
	Name
	Punctuation
	StringLiteral
	Whitespace
	Other
)

var kindNames = map[Kind]string{
	Keyword:       "Keyword",
	Name:          "Name",
	Punctuation:   "Punctuation",
	StringLiteral: "StringLiteral",
	Whitespace:    "Whitespace",
	Other:         "Other",
}

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Token is one lexical unit. Text is the exact source slice, quotes included.
type Token struct {
	Kind Kind
	Text string
}

// IsKeyword reports whether t is the given keyword, case-insensitively.
func (t Token) IsKeyword(word string) bool {
	return t.Kind == Keyword && strings.EqualFold(t.Text, word)
}

// IsPunct reports whether t is the given punctuation.
func (t Token) IsPunct(p string) bool {
	return t.Kind == Punctuation && t.Text == p
}

// Unquote returns the value of a string literal with the surrounding quotes
// removed and doubled quotes collapsed. Other kinds return Text unchanged.
func (t Token) Unquote() string {
	if t.Kind != StringLiteral || len(t.Text) < 2 {
		return t.Text
	}
	return strings.ReplaceAll(t.Text[1:len(t.Text)-1], "''", "'")
}

// keywords is the set of words lexed as Keyword. Anything else that looks like
// an identifier is a Name, so format names such as csv stay Names.
var keywords = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		all alter and anti any as asc asof attach begin between by call cascade case cast
		checkpoint commit conflict copy create cross current default delete desc describe
		detach distinct do drop else end except execute exists explain export extract false
		fetch filter first following for from full function glob grant group groups having
		if ilike import in index inner insert install intersect interval into is join lateral
		last left like limit load natural not nothing null nulls offset on only or order outer
		over partition percent pivot positional pragma preceding prepare qualify range
		recursive rename replace reset restrict returning revoke right rollback row rows
		schema select semi set show similar table temporary then ties true truncate union
		unpivot update use using vacuum values view when where window with within`) {
		keywords[kw] = struct{}{}
	}
}

// IsKeywordText reports whether word is lexed as a keyword.
func IsKeywordText(word string) bool {
	_, ok := keywords[strings.ToLower(word)]
	return ok
}
