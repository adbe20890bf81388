package symtab

import (
	"testing"

	"pdp/ast"
	"pdp/lexer"
	"pdp/parser"
)

func buildScript(t *testing.T, src string) *ast.Script {
	t.Helper()
	tokens, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexing %q failed: %v", src, err)
	}
	_, prog, err := parser.New(tokens).Parse()
	if err != nil {
		t.Fatalf("parsing %q failed: %v", src, err)
	}
	return prog.(*ast.Script)
}

func TestBuildClassifiesScriptAssignmentsAndUnresolvedNamesAsGlobal(t *testing.T) {
	// Script scope has no enclosing scope to capture into — an assignment
	// there is global from the start, exactly like an unresolved reference.
	script := buildScript(t, "x = 1\nprint(y)\n")
	root, err := Build(script)
	if err != nil {
		t.Fatalf("Build() raised an error: %v", err)
	}
	if got := root.Classify("x"); got != Global {
		t.Errorf("expected 'x' classified Global at script scope, got %v", got)
	}
	if got := root.Classify("y"); got != Global {
		t.Errorf("expected unresolved 'y' classified Global at script scope, got %v", got)
	}
}

func TestBuildScriptScopeNameIsNeverPromotedToCell(t *testing.T) {
	// The flagship worked example: a name assigned at script scope and read
	// by a nested function must stay Global in both scopes, never get
	// promoted to a Cell/Free pair the way an enclosing function scope
	// would be.
	src := "x = 1\ndef inner():\n    return x\n"
	script := buildScript(t, src)
	root, err := Build(script)
	if err != nil {
		t.Fatalf("Build() raised an error: %v", err)
	}
	if got := root.Classify("x"); got != Global {
		t.Errorf("expected 'x' to stay Global at script scope, got %v", got)
	}
	inner := root.Children[0]
	if got := inner.Classify("x"); got != Global {
		t.Errorf("expected 'x' classified Global in inner, got %v", got)
	}
}

func TestBuildPromotesEnclosingLocalToCell(t *testing.T) {
	src := "def outer():\n    x = 1\n    def inner():\n        return x\n    return inner\n"
	script := buildScript(t, src)
	root, err := Build(script)
	if err != nil {
		t.Fatalf("Build() raised an error: %v", err)
	}
	outer := root.Children[0]
	if got := outer.Classify("x"); got != Cell {
		t.Errorf("expected 'x' promoted to Cell in outer scope, got %v", got)
	}
	inner := outer.Children[0]
	if got := inner.Classify("x"); got != Free {
		t.Errorf("expected 'x' classified Free in inner scope, got %v", got)
	}
}

func TestBuildParamsAreLocal(t *testing.T) {
	script := buildScript(t, "def f(a, b):\n    return a + b\n")
	root, err := Build(script)
	if err != nil {
		t.Fatalf("Build() raised an error: %v", err)
	}
	fn := root.Children[0]
	if got := fn.Classify("a"); got != Local {
		t.Errorf("expected param 'a' classified Local, got %v", got)
	}
	if got := fn.Classify("b"); got != Local {
		t.Errorf("expected param 'b' classified Local, got %v", got)
	}
}

func TestBuildDeeplyNestedFreeChain(t *testing.T) {
	src := "def a():\n    x = 1\n    def b():\n        def c():\n            return x\n        return c\n    return b\n"
	script := buildScript(t, src)
	root, err := Build(script)
	if err != nil {
		t.Fatalf("Build() raised an error: %v", err)
	}
	scopeA := root.Children[0]
	scopeB := scopeA.Children[0]
	scopeC := scopeB.Children[0]

	if got := scopeA.Classify("x"); got != Cell {
		t.Errorf("expected 'x' Cell in scope a, got %v", got)
	}
	if got := scopeB.Classify("x"); got != Free {
		t.Errorf("expected 'x' Free in intermediate scope b, got %v", got)
	}
	if got := scopeC.Classify("x"); got != Free {
		t.Errorf("expected 'x' Free in scope c, got %v", got)
	}
}
