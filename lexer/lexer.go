// Package lexer turns Python source text into a token stream: scan left to
// right, skip whitespace except at the start of a line (where 4-space runs
// become INDENT), and greedily match each lexeme against a fixed variant
// priority order.
package lexer

import (
	"strconv"
	"strings"

	"pdp/token"
)

const indentWidth = 4

func isLetter(ch rune) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func isIdentPart(ch rune) bool {
	return isLetter(ch) || isDigit(ch)
}

// Lexer is a one-shot scanner: construct with New, call Scan once.
type Lexer struct {
	src []rune
	n   int

	pos int // index of the character currently under the cursor
	ch  rune

	row int
	col int

	tokens []token.Token
}

// New creates a Lexer over the given source text.
func New(src string) *Lexer {
	l := &Lexer{
		src: []rune(src),
		row: 1,
		col: 1,
	}
	l.n = len(l.src)
	if l.n > 0 {
		l.ch = l.src[0]
	} else {
		l.ch = 0
	}
	return l
}

func (l *Lexer) done() bool {
	return l.pos >= l.n
}

func (l *Lexer) peekAt(offset int) rune {
	idx := l.pos + offset
	if idx >= l.n {
		return 0
	}
	return l.src[idx]
}

// advance consumes the current character and moves the cursor to the next
// one, updating row/col bookkeeping.
func (l *Lexer) advance() {
	if l.done() {
		return
	}
	if l.ch == '\n' {
		l.row++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
	if l.done() {
		l.ch = 0
	} else {
		l.ch = l.src[l.pos]
	}
}

func (l *Lexer) errorf(row, col int, reason string) *LexError {
	return &LexError{Row: row, Col: col, Reason: reason}
}

// Scan lexes the whole input and returns the token stream, terminated by
// exactly one END token. It stops at the first LexError, returning
// whatever prefix of tokens it had already produced alongside the error
// (every scan* method appends to l.tokens as it goes, so that prefix is
// always there even when a later line fails).
func (l *Lexer) Scan() ([]token.Token, error) {
	for {
		if err := l.scanLine(); err != nil {
			return l.tokens, err
		}
		if l.done() {
			break
		}
	}
	l.tokens = append(l.tokens, token.New(token.END, "", l.row, l.col))
	return l.tokens, nil
}

// scanLine handles the indentation run at the start of a line (if the line
// has any non-blank, non-comment content), then delegates to scanRest for
// everything up to and including the line's NEWLINE.
//
// Blank lines and comment-only lines never emit INDENT: indentation is
// only meaningful to the grammar when it prefixes a Unit, and a line with
// no Unit on it carries none.
func (l *Lexer) scanLine() error {
	startRow, startCol := l.row, l.col
	spaces := 0
	for l.ch == ' ' {
		spaces++
		l.advance()
	}
	if l.ch == '\t' {
		return l.errorf(l.row, l.col, "tabs are not accepted for indentation")
	}

	if l.done() || l.ch == '\n' || l.ch == '#' {
		// blank or comment-only line: no INDENT tokens.
		return l.scanRest()
	}

	if spaces%indentWidth != 0 {
		return l.errorf(startRow, startCol, "indentation must be a multiple of 4 spaces")
	}
	for i := 0; i < spaces/indentWidth; i++ {
		col := startCol + i*indentWidth
		l.tokens = append(l.tokens, token.New(token.INDENT, "", startRow, col))
	}
	return l.scanRest()
}

// scanRest scans tokens from the current position through the end of the
// current line (inclusive of the terminating NEWLINE, if any).
func (l *Lexer) scanRest() error {
	for {
		// Skip non-newline whitespace.
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.advance()
		}

		if l.done() {
			return nil
		}

		if l.ch == '#' {
			for !l.done() && l.ch != '\n' {
				l.advance()
			}
			continue
		}

		if l.ch == '\n' {
			row, col := l.row, l.col
			l.advance()
			l.tokens = append(l.tokens, token.New(token.NEWLINE, "\\n", row, col))
			return nil
		}

		if err := l.scanToken(); err != nil {
			return err
		}
	}
}

func (l *Lexer) scanToken() error {
	row, col := l.row, l.col
	ch := l.ch

	switch {
	case isLetter(ch):
		return l.scanWord(row, col)
	case isDigit(ch) || (ch == '.' && isDigit(l.peekAt(1))):
		return l.scanNumber(row, col)
	case ch == '"' || ch == '\'':
		return l.scanString(row, col, ch, "")
	case strings.ContainsRune(token.Brackets, ch):
		l.advance()
		return l.emitOK(token.New(token.BRACKET, string(ch), row, col))
	default:
		return l.scanSymbol(row, col)
	}
}

func (l *Lexer) emitOK(tok token.Token) error {
	l.tokens = append(l.tokens, tok)
	return nil
}

// scanWord scans an identifier, keyword, boolean literal, word-operator,
// or an f-string, and applies the identifier boundary check: the
// character immediately following must not be alphanumeric or '_'.
func (l *Lexer) scanWord(row, col int) error {
	start := l.pos
	isFString := (l.ch == 'f' || l.ch == 'F') && (l.peekAt(1) == '"' || l.peekAt(1) == '\'')
	if isFString {
		quote := l.peekAt(1)
		l.advance() // consume 'f'
		return l.scanString(row, col, quote, "f")
	}

	for !l.done() && isIdentPart(l.ch) {
		l.advance()
	}
	word := string(l.src[start:l.pos])

	if !l.done() && (isIdentPart(l.ch)) {
		return l.errorf(row, col, "invalid identifier boundary near '"+word+"'")
	}

	switch {
	case word == "true":
		return l.emitOK(token.NewLiteral(token.BOOL, word, true, row, col))
	case word == "false":
		return l.emitOK(token.NewLiteral(token.BOOL, word, false, row, col))
	case contains(token.OperatorWords, word):
		return l.emitOK(token.New(token.OP, word, row, col))
	case token.Keywords[word]:
		return l.emitOK(token.New(token.KEYWORD, word, row, col))
	default:
		return l.emitOK(token.NewLiteral(token.NAME, word, word, row, col))
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// scanNumber scans a decimal literal (integers and floats are collapsed:
// every numeric literal is stored as float64) and applies the numeric
// boundary check: the character immediately following must not be
// alphanumeric.
func (l *Lexer) scanNumber(row, col int) error {
	start := l.pos
	dots := 0
	for !l.done() && (isDigit(l.ch) || l.ch == '.') {
		if l.ch == '.' {
			dots++
			if dots > 1 {
				return l.errorf(row, col, "malformed number literal '"+string(l.src[start:l.pos+1])+"'")
			}
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	if strings.HasSuffix(lexeme, ".") {
		return l.errorf(row, col, "malformed number literal '"+lexeme+"'")
	}
	if !l.done() && isIdentPart(l.ch) {
		return l.errorf(row, col, "invalid number boundary near '"+lexeme+"'")
	}
	value, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		return l.errorf(row, col, "malformed number literal '"+lexeme+"'")
	}
	return l.emitOK(token.NewLiteral(token.NUMBER, lexeme, value, row, col))
}

// scanString scans a quoted string literal. prefix is "f" for f-strings
// (accepted lexically; the content is stored verbatim either way).
func (l *Lexer) scanString(row, col int, quote rune, prefix string) error {
	l.advance() // consume opening quote
	start := l.pos
	for {
		if l.done() || l.ch == '\n' {
			return l.errorf(row, col, "unterminated string literal")
		}
		if l.ch == quote {
			break
		}
		l.advance()
	}
	content := string(l.src[start:l.pos])
	l.advance() // consume closing quote
	return l.emitOK(token.NewLiteral(token.STRING, prefix+string(quote)+content+string(quote), content, row, col))
}

// scanSymbol scans operators, assignment operators, and miscellaneous
// punctuation. Punctuation has no boundary check.
func (l *Lexer) scanSymbol(row, col int) error {
	// "==" starts with the "=" assignment operator, so it is matched first.
	if l.matchLiteral("==") {
		return l.emitOK(token.New(token.OP, "==", row, col))
	}
	for _, op := range token.AssignOps {
		if l.matchLiteral(op) {
			return l.emitOK(token.New(token.ASOP, op, row, col))
		}
	}
	for _, op := range token.Operators {
		if l.matchLiteral(op) {
			return l.emitOK(token.New(token.OP, op, row, col))
		}
	}
	switch l.ch {
	case ':', ',', '.':
		sym := string(l.ch)
		l.advance()
		return l.emitOK(token.New(token.MISC, sym, row, col))
	}

	ch := l.ch
	l.advance()
	return l.errorf(row, col, "unrecognized character '"+string(ch)+"'")
}

// matchLiteral checks whether the given literal lexeme starts at the
// cursor, and if so consumes it.
func (l *Lexer) matchLiteral(lit string) bool {
	rs := []rune(lit)
	for i, r := range rs {
		if l.peekAt(i) != r {
			return false
		}
	}
	for range rs {
		l.advance()
	}
	return true
}
