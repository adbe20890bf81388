package parser

import (
	"testing"

	"pdp/ast"
	"pdp/lexer"
)

func parseSource(t *testing.T, src string) *ast.Script {
	t.Helper()
	tokens, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexing %q failed: %v", src, err)
	}
	_, prog, err := New(tokens).Parse()
	if err != nil {
		t.Fatalf("parsing %q failed: %v", src, err)
	}
	script, ok := prog.(*ast.Script)
	if !ok {
		t.Fatalf("parsing %q did not produce a script, got %T", src, prog)
	}
	return script
}

func TestParseAssignment(t *testing.T) {
	script := parseSource(t, "x = 1\n")
	if len(script.Body.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(script.Body.Stmts))
	}
	assign, ok := script.Body.Stmts[0].(*ast.AssignOp)
	if !ok {
		t.Fatalf("expected *ast.AssignOp, got %T", script.Body.Stmts[0])
	}
	if assign.Op != "=" {
		t.Errorf("expected op '=', got %q", assign.Op)
	}
	target, ok := assign.Target.(*ast.Variable)
	if !ok || target.Name != "x" {
		t.Errorf("expected target variable 'x', got %#v", assign.Target)
	}
}

func TestParseBinaryOpChainIsFlat(t *testing.T) {
	script := parseSource(t, "x = 2 + 3 * 4\n")
	assign := script.Body.Stmts[0].(*ast.AssignOp)
	chain, ok := assign.Value.(*ast.BinaryOpChain)
	if !ok {
		t.Fatalf("expected *ast.BinaryOpChain, got %T", assign.Value)
	}
	if len(chain.Tail) != 2 {
		t.Fatalf("expected a 2-link chain (no precedence climbing), got %d links", len(chain.Tail))
	}
	if chain.Tail[0].Op != "+" || chain.Tail[1].Op != "*" {
		t.Errorf("expected ops [+, *] in source order, got [%s, %s]", chain.Tail[0].Op, chain.Tail[1].Op)
	}
}

func TestParseIfWhileFor(t *testing.T) {
	src := "if x:\n    y = 1\nwhile x:\n    y = 2\nfor v in xs:\n    y = 3\n"
	script := parseSource(t, src)
	if len(script.Body.Stmts) != 3 {
		t.Fatalf("expected 3 top-level statements, got %d", len(script.Body.Stmts))
	}
	if _, ok := script.Body.Stmts[0].(*ast.If); !ok {
		t.Errorf("expected *ast.If, got %T", script.Body.Stmts[0])
	}
	if _, ok := script.Body.Stmts[1].(*ast.While); !ok {
		t.Errorf("expected *ast.While, got %T", script.Body.Stmts[1])
	}
	forStmt, ok := script.Body.Stmts[2].(*ast.For)
	if !ok {
		t.Fatalf("expected *ast.For, got %T", script.Body.Stmts[2])
	}
	if forStmt.Var != "v" {
		t.Errorf("expected loop var 'v', got %q", forStmt.Var)
	}
}

func TestParseFunctionDefAndCall(t *testing.T) {
	src := "def add(a, b):\n    return a + b\nresult = add(1, 2)\n"
	script := parseSource(t, src)
	if len(script.Body.Stmts) != 2 {
		t.Fatalf("expected 2 top-level statements, got %d", len(script.Body.Stmts))
	}
	fn, ok := script.Body.Stmts[0].(*ast.FunctionDef)
	if !ok {
		t.Fatalf("expected *ast.FunctionDef, got %T", script.Body.Stmts[0])
	}
	if fn.Name != "add" || len(fn.Params.Names) != 2 {
		t.Errorf("expected function 'add' with 2 params, got name=%q params=%v", fn.Name, fn.Params.Names)
	}
	assign := script.Body.Stmts[1].(*ast.AssignOp)
	call, ok := assign.Value.(*ast.FunctionCall)
	if !ok {
		t.Fatalf("expected *ast.FunctionCall, got %T", assign.Value)
	}
	if len(call.Args.Values) != 2 {
		t.Errorf("expected 2 call args, got %d", len(call.Args.Values))
	}
}

func TestParseListSetDictLiterals(t *testing.T) {
	script := parseSource(t, "a = [1, 2]\nb = {1, 2}\nc = {\"k\": 1}\n")
	for i, want := range []ast.Kind{ast.KindList, ast.KindSet, ast.KindDict} {
		assign := script.Body.Stmts[i].(*ast.AssignOp)
		if assign.Value.Kind() != want {
			t.Errorf("statement %d: expected kind %v, got %v", i, want, assign.Value.Kind())
		}
	}
}

func TestParseBreakContinueInLoop(t *testing.T) {
	src := "while x:\n    break\nwhile x:\n    continue\n"
	script := parseSource(t, src)
	whileBreak := script.Body.Stmts[0].(*ast.While)
	if _, ok := whileBreak.Body.Stmts[0].(*ast.Break); !ok {
		t.Errorf("expected *ast.Break inside first while body, got %T", whileBreak.Body.Stmts[0])
	}
	whileContinue := script.Body.Stmts[1].(*ast.While)
	if _, ok := whileContinue.Body.Stmts[0].(*ast.Continue); !ok {
		t.Errorf("expected *ast.Continue inside second while body, got %T", whileContinue.Body.Stmts[0])
	}
}

func TestParseBreakOutsideLoopIsError(t *testing.T) {
	tokens, err := lexer.New("break\n").Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	_, _, err = New(tokens).Parse()
	if err == nil {
		t.Fatal("expected an error parsing 'break' outside a loop, got nil")
	}
}

func TestParsePartialResultOnMidFileError(t *testing.T) {
	// The first statement is well-formed; the second trails off mid-expression.
	// Parse must still surface the first statement in both the CST and AST
	// alongside the error, not discard everything back to nil.
	src := "x = 1\ny = 2 +\n"
	tokens, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	tree, prog, err := New(tokens).Parse()
	if err == nil {
		t.Fatal("expected a parse error for a dangling binary operator, got nil")
	}
	if tree == nil {
		t.Fatal("expected a partial parse tree, got nil")
	}
	if len(tree.Children) == 0 {
		t.Fatal("expected the partial parse tree to retain the first statement's Scoped node")
	}
	script, ok := prog.(*ast.Script)
	if !ok {
		t.Fatalf("expected a partial *ast.Script even on error, got %T", prog)
	}
	if len(script.Body.Stmts) != 1 {
		t.Fatalf("expected the partial AST to retain the 1 statement parsed before the error, got %d", len(script.Body.Stmts))
	}
	assign, ok := script.Body.Stmts[0].(*ast.AssignOp)
	if !ok || assign.Op != "=" {
		t.Fatalf("expected the retained statement to be 'x = 1', got %#v", script.Body.Stmts[0])
	}
}

func TestParsePartialFuncDefRetainsHeaderTokens(t *testing.T) {
	// def f(a, b): is well-formed; the body is missing entirely (EOF instead
	// of a newline+indented block or inline return). The partial CST should
	// still show the keyword, name, and params that were already consumed.
	src := "def f(a, b):"
	tokens, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	tree, _, err := New(tokens).Parse()
	if err == nil {
		t.Fatal("expected a parse error for a function def with no body, got nil")
	}
	if tree == nil {
		t.Fatal("expected a non-nil partial parse tree")
	}
}

func TestParseIndexChain(t *testing.T) {
	script := parseSource(t, "x = a[0][1]\n")
	assign := script.Body.Stmts[0].(*ast.AssignOp)
	chain, ok := assign.Value.(*ast.IndexChain)
	if !ok {
		t.Fatalf("expected *ast.IndexChain, got %T", assign.Value)
	}
	if len(chain.Indices) != 2 {
		t.Errorf("expected 2 chained indices, got %d", len(chain.Indices))
	}
}
