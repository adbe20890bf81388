package lexer

import "fmt"

// LexError is raised when the scanner encounters an unrecognizable
// character, a malformed indentation run, or an unterminated string.
type LexError struct {
	Row    int
	Col    int
	Reason string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("💥 LexError at %d:%d - %s", e.Row, e.Col, e.Reason)
}
