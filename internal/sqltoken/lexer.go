package sqltoken

// Lexer tokenizes SQL input. Every byte of the input belongs to exactly one
// token, so joining all token texts reproduces the input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token. ok is false at end of input.
func (l *Lexer) NextToken() (tok Token, ok bool) {
	if l.atEOF() {
		return Token{}, false
	}
	start := l.pos
	kind := l.scan()
	return Token{Kind: kind, Text: l.input[start:l.pos]}, true
}

// scan consumes one token and returns its kind.
func (l *Lexer) scan() Kind {
	switch {
	case isSpace(l.ch):
		for isSpace(l.ch) && !l.atEOF() {
			l.readChar()
		}
		return Whitespace
	case l.ch == '-' && l.peekChar() == '-':
		for l.ch != '\n' && !l.atEOF() {
			l.readChar()
		}
		return Whitespace
	case l.ch == '/' && l.peekChar() == '*':
		l.readChar() // skip /
		l.readChar() // skip *
		for !l.atEOF() {
			if l.ch == '*' && l.peekChar() == '/' {
				l.readChar() // skip *
				l.readChar() // skip /
				break
			}
			l.readChar()
		}
		return Whitespace
	case l.ch == '\'':
		if l.readQuoted('\'') {
			return StringLiteral
		}
		return Other
	case l.ch == '"':
		if l.readQuoted('"') {
			return Name
		}
		return Other
	case isIdentStart(l.ch):
		start := l.pos
		for isIdentPart(l.ch) && !l.atEOF() {
			l.readChar()
		}
		if IsKeywordText(l.input[start:l.pos]) {
			return Keyword
		}
		return Name
	case isDigit(l.ch):
		l.readNumber()
		return Other
	}

	switch l.ch {
	case '(', ')', ',', ';', '.', '[', ']', '{', '}':
		l.readChar()
		return Punctuation
	case ':':
		l.readChar()
		if l.ch == ':' {
			l.readChar()
			return Punctuation
		}
		return Other
	case '<':
		l.readChar()
		if l.ch == '=' || l.ch == '>' || l.ch == '<' {
			l.readChar()
		}
		return Other
	case '>', '!', '=':
		first := l.ch
		l.readChar()
		if l.ch == '=' || (first == '>' && l.ch == '>') {
			l.readChar()
		}
		return Other
	case '|':
		l.readChar()
		if l.ch == '|' {
			l.readChar()
		}
		return Other
	case '-':
		l.readChar()
		if l.ch == '>' {
			l.readChar()
			if l.ch == '>' {
				l.readChar()
			}
		}
		return Other
	case '$':
		l.readChar()
		for isIdentPart(l.ch) && !l.atEOF() {
			l.readChar()
		}
		return Other
	default:
		l.readChar()
		return Other
	}
}

// readQuoted consumes a quoted run, handling doubled quotes as escapes.
// It reports whether the closing quote was found.
func (l *Lexer) readQuoted(quote byte) bool {
	l.readChar() // skip opening quote
	for !l.atEOF() {
		if l.ch == quote {
			if l.peekChar() == quote {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip closing quote
			return true
		}
		l.readChar()
	}
	return false
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip .
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

// Bytes >= 0x80 are treated as identifier characters so UTF-8 names stay whole.
func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
