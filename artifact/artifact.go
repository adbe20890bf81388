// Package artifact writes four pipeline-observability files to pdp_out/:
// token_stream.txt, parse_tree.txt, ast.txt and pdp.log. None of them feed
// back into the pipeline — they're external collaborators — but cmd/pdp
// wires them up so a run leaves a full record of every stage behind it.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pdp/ast"
	"pdp/cst"
	"pdp/token"
)

// Dir is the fixed output directory name every subcommand writes into,
// relative to the current working directory.
const Dir = "pdp_out"

// EnsureDir creates pdp_out/ if it doesn't already exist.
func EnsureDir() error {
	return os.MkdirAll(Dir, 0o755)
}

func path(name string) string {
	return filepath.Join(Dir, name)
}

// WriteTokens writes token_stream.txt: one token per line, using the
// token package's own "<kind>(<value>) @ <row>:<col>" rendering.
func WriteTokens(tokens []token.Token) error {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return os.WriteFile(path("token_stream.txt"), []byte(b.String()), 0o644)
}

// WriteParseTree writes parse_tree.txt: an indented pretty-print of the
// concrete syntax tree, one node per line.
func WriteParseTree(root *cst.Node) error {
	var b strings.Builder
	var walk func(n *cst.Node, depth int)
	walk = func(n *cst.Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Label())
		b.WriteByte('\n')
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	if root != nil {
		walk(root, 0)
	}
	return os.WriteFile(path("parse_tree.txt"), []byte(b.String()), 0o644)
}

// WriteAST writes ast.txt: an indented pretty-print of the abstract
// syntax tree, one node per line.
func WriteAST(root ast.Node) error {
	var b strings.Builder
	var walk func(n ast.Node, depth int)
	walk = func(n ast.Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(ast.Label(n))
		b.WriteByte('\n')
		for _, c := range ast.Children(n) {
			if c != nil {
				walk(c, depth+1)
			}
		}
	}
	if root != nil {
		walk(root, 0)
	}
	return os.WriteFile(path("ast.txt"), []byte(b.String()), 0o644)
}

// NewLogger opens pdp.log (creating pdp_out/ first if needed) and returns a
// slog.Logger writing to it as plain text, plus the underlying file so the
// caller can close it. Every run truncates the previous log: artifacts are
// overwritten per run, not appended to.
func NewLogger() (*slog.Logger, *os.File, error) {
	if err := EnsureDir(); err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", Dir, err)
	}
	f, err := os.Create(path("pdp.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening pdp.log: %w", err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), f, nil
}
