package vm

import (
	"bytes"
	"strings"
	"testing"

	"pdp/ast"
	"pdp/compiler"
	"pdp/lexer"
	"pdp/parser"
	"pdp/symtab"
)

// compileAndRun drives source text through the whole pipeline (the same
// stages cmd/pdp's runCmd drives) and returns the machine used to run it,
// so tests can inspect Globals/Out afterward.
func compileAndRun(t *testing.T, src string) (*VM, error) {
	t.Helper()
	tokens, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	_, prog, err := parser.New(tokens).Parse()
	if err != nil {
		t.Fatalf("parsing failed: %v", err)
	}
	script := prog.(*ast.Script)
	root, err := symtab.Build(script)
	if err != nil {
		t.Fatalf("symbol resolution failed: %v", err)
	}
	code, err := compiler.CompileScript(script, root)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	machine := New()
	var out bytes.Buffer
	machine.Out = &out
	_, runErr := machine.Run(code)
	return machine, runErr
}

func TestLiteralAssignment(t *testing.T) {
	machine, err := compileAndRun(t, "x = 1\ny = x + 2\n")
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	y, ok := machine.Globals["y"]
	if !ok {
		t.Fatal("expected 'y' to be set in Globals")
	}
	if num, ok := y.(Number); !ok || num != 3 {
		t.Errorf("expected y == 3, got %#v", y)
	}
	if len(machine.Stack) != 0 {
		t.Errorf("expected empty eval stack at program end, got %d items", len(machine.Stack))
	}
}

func TestNestedClosure(t *testing.T) {
	// Capturing a variable for reading only: this subset has no `nonlocal`,
	// so an assignment inside a nested function always declares a fresh
	// local in that function's own scope rather than mutating an enclosing
	// one — a closure can only read what it captures.
	src := "def make_adder(n):\n" +
		"    def add(x):\n" +
		"        return x + n\n" +
		"    return add\n" +
		"add5 = make_adder(5)\n" +
		"a = add5(10)\n" +
		"b = add5(20)\n"
	machine, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	a, ok := machine.Globals["a"].(Number)
	if !ok || a != 15 {
		t.Errorf("expected a == 15, got %#v", machine.Globals["a"])
	}
	b, ok := machine.Globals["b"].(Number)
	if !ok || b != 25 {
		t.Errorf("expected b == 25 (same captured cell reused across calls), got %#v", machine.Globals["b"])
	}
}

func TestThreeLevelNestedClosure(t *testing.T) {
	// a owns x as a Cell; b merely passes x through as a Free (it never
	// reads or assigns x itself); c is the one that actually captures it.
	// MAKE_FUNCTION for c, compiled inside b, must source its capture from
	// b's own Frees rather than b's (nonexistent) Cells.
	src := "def a():\n" +
		"    x = 1\n" +
		"    def b():\n" +
		"        def c():\n" +
		"            return x\n" +
		"        return c\n" +
		"    return b\n" +
		"get_c = a()\n" +
		"c = get_c()\n" +
		"result = c()\n"
	machine, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	result, ok := machine.Globals["result"].(Number)
	if !ok || result != 1 {
		t.Errorf("expected result == 1, got %#v", machine.Globals["result"])
	}
}

func TestBreakAndContinue(t *testing.T) {
	src := "total = 0\n" +
		"i = 0\n" +
		"while i < 10:\n" +
		"    i = i + 1\n" +
		"    if i == 5:\n" +
		"        break\n" +
		"    total = total + i\n"
	machine, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	total, ok := machine.Globals["total"].(Number)
	if !ok || total != 10 {
		t.Errorf("expected total == 10 (1+2+3+4, stopped before 5), got %#v", machine.Globals["total"])
	}

	src = "total = 0\n" +
		"for i in range(5):\n" +
		"    if i == 2:\n" +
		"        continue\n" +
		"    total = total + i\n"
	machine, err = compileAndRun(t, src)
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	total, ok = machine.Globals["total"].(Number)
	if !ok || total != 8 {
		t.Errorf("expected total == 8 (0+1+3+4, 2 skipped), got %#v", machine.Globals["total"])
	}
}

func TestGeneratorDrivenToExhaustion(t *testing.T) {
	src := "def count_up(n):\n" +
		"    i = 0\n" +
		"    while i < n:\n" +
		"        yield i\n" +
		"        i = i + 1\n" +
		"total = 0\n" +
		"for v in count_up(3):\n" +
		"    total = total + v\n"
	machine, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	total, ok := machine.Globals["total"].(Number)
	if !ok || total != 3 {
		t.Errorf("expected total == 3 (0+1+2), got %#v", machine.Globals["total"])
	}
	if len(machine.Stack) != 0 {
		t.Errorf("expected empty eval stack after driving a generator to exhaustion, got %d items", len(machine.Stack))
	}
}

func TestGeneratorEarlyBreak(t *testing.T) {
	src := "def count_up(n):\n" +
		"    i = 0\n" +
		"    while i < n:\n" +
		"        yield i\n" +
		"        i = i + 1\n" +
		"first = -1\n" +
		"for v in count_up(5):\n" +
		"    first = v\n" +
		"    break\n"
	machine, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	first, ok := machine.Globals["first"].(Number)
	if !ok || first != 0 {
		t.Errorf("expected first == 0, got %#v", machine.Globals["first"])
	}
	if len(machine.Stack) != 0 {
		t.Errorf("expected empty eval stack after breaking out of a generator loop, got %d items", len(machine.Stack))
	}
}

func TestTypeErrorOnArithmetic(t *testing.T) {
	_, err := compileAndRun(t, "x = [1, 2] + 3\n")
	if err == nil {
		t.Fatal("expected a TypeError running list + number, got nil")
	}
	if !strings.Contains(err.Error(), "TypeError") {
		t.Errorf("expected error to mention TypeError, got %v", err)
	}
}

func TestZeroDivision(t *testing.T) {
	_, err := compileAndRun(t, "x = 1 / 0\n")
	if err == nil {
		t.Fatal("expected a ZeroDivisionError dividing by zero, got nil")
	}
	if !strings.Contains(err.Error(), "ZeroDivisionError") {
		t.Errorf("expected error to mention ZeroDivisionError, got %v", err)
	}
}

func TestPrintBuiltinWritesToOut(t *testing.T) {
	tokens, err := lexer.New("print(1 + 2)\n").Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}
	_, prog, err := parser.New(tokens).Parse()
	if err != nil {
		t.Fatalf("parsing failed: %v", err)
	}
	script := prog.(*ast.Script)
	root, err := symtab.Build(script)
	if err != nil {
		t.Fatalf("symbol resolution failed: %v", err)
	}
	code, err := compiler.CompileScript(script, root)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	machine := New()
	var out bytes.Buffer
	machine.Out = &out
	if _, err := machine.Run(code); err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "3" {
		t.Errorf("expected print to write \"3\", got %q", out.String())
	}
}

func TestListSetDictLiterals(t *testing.T) {
	machine, err := compileAndRun(t, "xs = [1, 2, 3]\nks = {1, 1, 2}\nd = {\"a\": 1}\n")
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	xs, ok := machine.Globals["xs"].(*List)
	if !ok || len(xs.Elems) != 3 {
		t.Errorf("expected xs to be a 3-element list, got %#v", machine.Globals["xs"])
	}
	ks, ok := machine.Globals["ks"].(*Set)
	if !ok || len(ks.Elems) != 2 {
		t.Errorf("expected ks to dedupe to 2 elements, got %#v", machine.Globals["ks"])
	}
	d, ok := machine.Globals["d"].(*Dict)
	if !ok {
		t.Fatalf("expected d to be a dict, got %#v", machine.Globals["d"])
	}
	if v, ok := d.Get("a"); !ok || v.(Number) != 1 {
		t.Errorf("expected d[\"a\"] == 1, got %#v", v)
	}
}

func TestIndexGetSet(t *testing.T) {
	machine, err := compileAndRun(t, "xs = [1, 2, 3]\nxs[1] = 9\ny = xs[1]\n")
	if err != nil {
		t.Fatalf("Run() raised an error: %v", err)
	}
	y, ok := machine.Globals["y"].(Number)
	if !ok || y != 9 {
		t.Errorf("expected y == 9, got %#v", machine.Globals["y"])
	}
}

func TestIndexOutOfRange(t *testing.T) {
	_, err := compileAndRun(t, "xs = [1]\ny = xs[5]\n")
	if err == nil {
		t.Fatal("expected an IndexError indexing past the end of a list, got nil")
	}
	if !strings.Contains(err.Error(), "IndexError") {
		t.Errorf("expected error to mention IndexError, got %v", err)
	}
}
