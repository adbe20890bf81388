package parser

import "fmt"

// ParseError is raised when the next token doesn't satisfy any arm of the
// nonterminal under the parser's current context.
type ParseError struct {
	Row      int
	Col      int
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("💥 ParseError at %d:%d - expected %s, found %s", e.Row, e.Col, e.Expected, e.Found)
}
