package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdp/ast"
	"pdp/lexer"
	"pdp/parser"
)

// chdirTemp switches the working directory to a fresh temp dir for the
// duration of the test, since Dir is resolved relative to the cwd.
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() failed: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestWriteTokens(t *testing.T) {
	chdirTemp(t)
	tokens, err := lexer.New("x = 1\n").Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	if err := WriteTokens(tokens); err != nil {
		t.Fatalf("WriteTokens() failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(Dir, "token_stream.txt"))
	if err != nil {
		t.Fatalf("reading token_stream.txt failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != len(tokens) {
		t.Errorf("expected %d lines, got %d", len(tokens), len(lines))
	}
	if !strings.Contains(lines[0], "NAME") {
		t.Errorf("expected first line to mention NAME, got %q", lines[0])
	}
}

func TestWriteParseTreeAndAST(t *testing.T) {
	chdirTemp(t)
	tokens, err := lexer.New("x = 1\n").Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	tree, prog, err := parser.New(tokens).Parse()
	if err != nil {
		t.Fatalf("parsing failed: %v", err)
	}
	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	if err := WriteParseTree(tree); err != nil {
		t.Fatalf("WriteParseTree() failed: %v", err)
	}
	if err := WriteAST(prog); err != nil {
		t.Fatalf("WriteAST() failed: %v", err)
	}

	astData, err := os.ReadFile(filepath.Join(Dir, "ast.txt"))
	if err != nil {
		t.Fatalf("reading ast.txt failed: %v", err)
	}
	if !strings.Contains(string(astData), "script") {
		t.Errorf("expected ast.txt to mention 'script', got %q", string(astData))
	}
	if !strings.Contains(string(astData), "assign_op") {
		t.Errorf("expected ast.txt to mention 'assign_op', got %q", string(astData))
	}

	treeData, err := os.ReadFile(filepath.Join(Dir, "parse_tree.txt"))
	if err != nil {
		t.Fatalf("reading parse_tree.txt failed: %v", err)
	}
	if len(treeData) == 0 {
		t.Error("expected parse_tree.txt to be non-empty")
	}
}

func TestWriteASTHandlesNilRoot(t *testing.T) {
	chdirTemp(t)
	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	var nilProg ast.Node
	if err := WriteAST(nilProg); err != nil {
		t.Fatalf("WriteAST(nil) failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(Dir, "ast.txt"))
	if err != nil {
		t.Fatalf("reading ast.txt failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected an empty ast.txt for a nil root, got %q", string(data))
	}
}

func TestWriteParseTreeAndASTSurviveAPartialParse(t *testing.T) {
	// y = 2 + trails off with a dangling operator: parsing fails partway
	// through the second statement, but the first statement's tree/AST
	// prefix must still be writable, not nil.
	chdirTemp(t)
	tokens, err := lexer.New("x = 1\ny = 2 +\n").Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	tree, prog, err := parser.New(tokens).Parse()
	if err == nil {
		t.Fatal("expected a parse error, got nil")
	}
	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	if err := WriteParseTree(tree); err != nil {
		t.Fatalf("WriteParseTree() failed on a partial tree: %v", err)
	}
	if err := WriteAST(prog); err != nil {
		t.Fatalf("WriteAST() failed on a partial AST: %v", err)
	}
	astData, err := os.ReadFile(filepath.Join(Dir, "ast.txt"))
	if err != nil {
		t.Fatalf("reading ast.txt failed: %v", err)
	}
	if !strings.Contains(string(astData), "assign_op") {
		t.Errorf("expected the partial ast.txt to still contain the first statement, got %q", string(astData))
	}
	treeData, err := os.ReadFile(filepath.Join(Dir, "parse_tree.txt"))
	if err != nil {
		t.Fatalf("reading parse_tree.txt failed: %v", err)
	}
	if len(treeData) == 0 {
		t.Error("expected a non-empty partial parse_tree.txt")
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	chdirTemp(t)
	logger, f, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	defer f.Close()
	logger.Info("compiled", "file", "x.py")

	data, err := os.ReadFile(filepath.Join(Dir, "pdp.log"))
	if err != nil {
		t.Fatalf("reading pdp.log failed: %v", err)
	}
	if !strings.Contains(string(data), "compiled") {
		t.Errorf("expected pdp.log to contain the logged message, got %q", string(data))
	}
}
