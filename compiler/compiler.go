package compiler

import (
	"encoding/binary"
	"strings"

	"pdp/ast"
	"pdp/symtab"
)

// loopCtx tracks the one piece of state continue/break need: continue
// jumps straight back to a known position, break needs patching once the
// loop's end position is known.
type loopCtx struct {
	topPos       int
	breakPatches []int
	// isFor is true for a for-loop, whose FOR_ITER leaves one
	// iterator/generator peeked on the stack for the loop's whole
	// duration. A while-loop carries no such slot.
	isFor bool
}

// compiler builds one CodeObject for one scope (the script, or one
// function body). A fresh compiler is used per nested function.
type compiler struct {
	scope    *symtab.Scope
	bytecode []byte

	constants []float64
	strings   []string
	names     []string

	children  []*CodeObject
	loops     []*loopCtx
	positions map[int]Pos
}

func (c *compiler) emitAt(p ast.Pos, op Opcode, operands ...int) int {
	pos := c.emit(op, operands...)
	if c.positions == nil {
		c.positions = map[int]Pos{}
	}
	c.positions[pos] = Pos{Row: p.Row, Col: p.Col}
	return pos
}

func newCompilerFor(scope *symtab.Scope) *compiler {
	return &compiler{scope: scope}
}

// CompileScript lowers the whole program's AST, given the symbol table
// Build already produced for it, into the script's CodeObject.
func CompileScript(script *ast.Script, root *symtab.Scope) (*CodeObject, error) {
	c := newCompilerFor(root)
	if err := c.compileBlock(script.Body); err != nil {
		return nil, err
	}
	c.emit(OpPushNone)
	c.emit(OpReturn)
	return c.finish("<script>", 0), nil
}

func (c *compiler) finish(name string, paramCount int) *CodeObject {
	return &CodeObject{
		Name:         name,
		ParamCount:   paramCount,
		LocalVarsNum: len(c.scope.Locals),
		CellVarsNum:  len(c.scope.Cells),
		FreeVarsNum:  len(c.scope.Frees),
		DerefVarsNum: len(c.scope.Cells) + len(c.scope.Frees),
		Bytecode:     c.bytecode,
		Constants:    c.constants,
		Strings:      c.strings,
		Names:        c.names,
		Children:     c.children,
		Positions:    c.positions,
	}
}

func (c *compiler) emit(op Opcode, operands ...int) int {
	pos := len(c.bytecode)
	c.bytecode = append(c.bytecode, MakeInstruction(op, operands...)...)
	return pos
}

// patchJump overwrites the 2-byte target operand of a JUMP*/FOR_ITER
// instruction emitted at pos (opcode byte at pos, operand at pos+1).
func (c *compiler) patchJump(pos, target int) {
	binary.BigEndian.PutUint16(c.bytecode[pos+1:], uint16(target))
}

func (c *compiler) addConstant(v float64) int {
	for i, existing := range c.constants {
		if existing == v {
			return i
		}
	}
	c.constants = append(c.constants, v)
	return len(c.constants) - 1
}

func (c *compiler) addString(s string) int {
	for i, existing := range c.strings {
		if existing == s {
			return i
		}
	}
	c.strings = append(c.strings, s)
	return len(c.strings) - 1
}

func (c *compiler) addName(s string) int {
	for i, existing := range c.names {
		if existing == s {
			return i
		}
	}
	c.names = append(c.names, s)
	return len(c.names) - 1
}

func (c *compiler) currentLoop() *loopCtx {
	return c.loops[len(c.loops)-1]
}

// ---- statements ----

func (c *compiler) compileBlock(b *ast.Block) error {
	for _, stmt := range b.Stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) compileStmt(n ast.Node) error {
	switch s := n.(type) {
	case *ast.AssignOp:
		return c.compileAssign(s)
	case *ast.If:
		return c.compileIf(s)
	case *ast.While:
		return c.compileWhile(s)
	case *ast.For:
		return c.compileFor(s)
	case *ast.Continue:
		if len(c.loops) == 0 {
			return &CompileError{Reason: "continue outside loop reached compiler"}
		}
		c.emit(OpJump, c.currentLoop().topPos)
		return nil
	case *ast.Break:
		if len(c.loops) == 0 {
			return &CompileError{Reason: "break outside loop reached compiler"}
		}
		pos := c.emit(OpJump, 0)
		loop := c.currentLoop()
		loop.breakPatches = append(loop.breakPatches, pos)
		return nil
	case *ast.Return:
		// A return unwinds out of every enclosing for-loop still active in
		// this scope, each of which left its iterator/generator peeked on
		// the stack (see compileFor) — drop them before pushing the return
		// value itself, or they'd linger on the shared eval stack.
		for _, lp := range c.loops {
			if lp.isFor {
				c.emit(OpPop)
			}
		}
		if s.Value == nil {
			c.emit(OpPushNone)
		} else if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(OpReturn)
		return nil
	case *ast.Yield:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(OpYield)
		return nil
	case *ast.FunctionDef:
		return c.compileFunctionDef(s)
	case *ast.FunctionCall:
		if err := c.compileExpr(s); err != nil {
			return err
		}
		c.emit(OpPop)
		return nil
	default:
		return &CompileError{Reason: "unhandled statement kind " + n.Kind().String()}
	}
}

func (c *compiler) compileIf(s *ast.If) error {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	falsePos := c.emit(OpJumpIfFalse, 0)
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	c.patchJump(falsePos, len(c.bytecode))
	return nil
}

func (c *compiler) compileWhile(s *ast.While) error {
	topPos := len(c.bytecode)
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	falsePos := c.emit(OpJumpIfFalse, 0)

	c.loops = append(c.loops, &loopCtx{topPos: topPos})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	loop := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	c.emit(OpJump, topPos)
	end := len(c.bytecode)
	c.patchJump(falsePos, end)
	for _, p := range loop.breakPatches {
		c.patchJump(p, end)
	}
	return nil
}

func (c *compiler) compileFor(s *ast.For) error {
	if err := c.compileExpr(s.Iter); err != nil {
		return err
	}
	c.emit(OpGetIter)
	topPos := len(c.bytecode)
	forIterPos := c.emit(OpForIter, 0)
	c.storeVar(s.Var)

	c.loops = append(c.loops, &loopCtx{topPos: topPos, isFor: true})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	loop := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	c.emit(OpJump, topPos)
	// FOR_ITER only peeks its iterator/generator (so repeated iterations
	// see it at the same stack depth); natural exhaustion pops it as part
	// of that opcode, but a break jumps straight out of the loop body and
	// must drop it itself first, or it's left stranded on the stack.
	breakTarget := len(c.bytecode)
	c.emit(OpPop)
	end := len(c.bytecode)
	c.patchJump(forIterPos, end)
	for _, p := range loop.breakPatches {
		c.patchJump(p, breakTarget)
	}
	return nil
}

func (c *compiler) compileAssign(s *ast.AssignOp) error {
	switch target := s.Target.(type) {
	case *ast.Variable:
		if s.Op == "=" {
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			c.loadVar(target.Name)
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
			if err := c.emitAugmentedOp(s.Op); err != nil {
				return err
			}
		}
		c.storeVar(target.Name)
		return nil

	case *ast.IndexChain:
		return c.compileIndexAssign(s, target)

	default:
		return &CompileError{Reason: "unsupported assignment target"}
	}
}

func (c *compiler) emitAugmentedOp(asop string) error {
	opText := strings.TrimSuffix(asop, "=")
	b, ok := BinOpByte(opText)
	if !ok {
		return &CompileError{Reason: "unsupported augmented operator " + asop}
	}
	c.emit(OpBinOp, int(b))
	return nil
}

// compileIndexAssign lowers `base[i0][i1]...[iN] op= value`: evaluate the
// value, the container, and every index up to the last via INDEX_GET,
// then INDEX_SET with the final index.
func (c *compiler) compileIndexAssign(s *ast.AssignOp, target *ast.IndexChain) error {
	if s.Op == "=" {
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
	} else {
		if err := c.compileIndexLoad(target); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if err := c.emitAugmentedOp(s.Op); err != nil {
			return err
		}
	}
	if err := c.compileExpr(target.Base); err != nil {
		return err
	}
	for i := 0; i < len(target.Indices)-1; i++ {
		if err := c.compileExpr(target.Indices[i]); err != nil {
			return err
		}
		c.emitAt(target.Indices[i].Position(), OpIndexGet)
	}
	last := target.Indices[len(target.Indices)-1]
	if err := c.compileExpr(last); err != nil {
		return err
	}
	c.emitAt(last.Position(), OpIndexSet)
	return nil
}

func (c *compiler) compileIndexLoad(target *ast.IndexChain) error {
	if err := c.compileExpr(target.Base); err != nil {
		return err
	}
	for _, idx := range target.Indices {
		if err := c.compileExpr(idx); err != nil {
			return err
		}
		c.emitAt(idx.Position(), OpIndexGet)
	}
	return nil
}

func (c *compiler) compileFunctionDef(s *ast.FunctionDef) error {
	var childScope *symtab.Scope
	for _, ch := range c.scope.Children {
		if ch.Node == ast.Node(s) {
			childScope = ch
			break
		}
	}
	if childScope == nil {
		return &CompileError{Reason: "no symbol scope recorded for function " + s.Name}
	}

	fc := newCompilerFor(childScope)
	// A parameter a nested function captures is classified Cell, not Local,
	// by the time compileBlock runs — the argument still arrives in Locals
	// (newFrame copies call args there unconditionally), so it has to be
	// shuttled into its Cell before anything in the body can read it.
	for i, name := range s.Params.Names {
		if childScope.Classify(name) == symtab.Cell {
			fc.emit(OpLoadLocal, i)
			fc.emit(OpStoreCell, childScope.CellIndex[name])
		}
	}
	if err := fc.compileBlock(s.Body); err != nil {
		return err
	}
	fc.emit(OpPushNone)
	fc.emit(OpReturn)
	code := fc.finish(s.Name, len(s.Params.Names))
	code.IsGenerator = containsYield(s.Body)

	codeIdx := len(c.children)
	c.children = append(c.children, code)

	c.emit(OpMakeFunction, codeIdx, len(childScope.Frees))
	for _, name := range childScope.Frees {
		// A free in the function scope is either owned as a Cell right here
		// (this scope is where it's declared) or only passed through as a
		// Free of this scope's own (the declaring scope is further out still
		// — three or more levels of nesting away). Either way this scope's
		// resolve pass is guaranteed to have classified it as one or the
		// other; nothing else is possible for a name symtab put in Frees.
		var tag byte
		var idx int
		if cellIdx, ok := c.scope.CellIndex[name]; ok {
			tag, idx = CaptureFromCell, cellIdx
		} else if freeIdx, ok := c.scope.FreeIndex[name]; ok {
			tag, idx = CaptureFromFree, freeIdx
		} else {
			return &CompileError{Reason: "free variable " + name + " has no enclosing cell or free slot"}
		}
		c.bytecode = append(c.bytecode, tag, 0, 0)
		binary.BigEndian.PutUint16(c.bytecode[len(c.bytecode)-2:], uint16(idx))
	}

	c.storeVar(s.Name)
	return nil
}

func containsYield(b *ast.Block) bool {
	for _, stmt := range b.Stmts {
		if stmtContainsYield(stmt) {
			return true
		}
	}
	return false
}

func stmtContainsYield(n ast.Node) bool {
	switch s := n.(type) {
	case *ast.Yield:
		return true
	case *ast.If:
		return containsYield(s.Body)
	case *ast.While:
		return containsYield(s.Body)
	case *ast.For:
		return containsYield(s.Body)
	default:
		return false
	}
}

// ---- name access ----

func (c *compiler) loadVar(name string) {
	switch c.scope.Classify(name) {
	case symtab.Local:
		c.emit(OpLoadLocal, c.scope.LocalIndex[name])
	case symtab.Cell:
		c.emit(OpLoadCell, c.scope.CellIndex[name])
	case symtab.Free:
		c.emit(OpLoadFree, c.scope.FreeIndex[name])
	default:
		if builtinNames[name] {
			c.emit(OpLoadBuiltin, c.addName(name))
		} else {
			c.emit(OpLoadGlobal, c.addName(name))
		}
	}
}

func (c *compiler) storeVar(name string) {
	switch c.scope.Classify(name) {
	case symtab.Cell:
		c.emit(OpStoreCell, c.scope.CellIndex[name])
	case symtab.Local:
		c.emit(OpStoreLocal, c.scope.LocalIndex[name])
	default:
		c.emit(OpStoreGlobal, c.addName(name))
	}
}

// ---- expressions ----

func (c *compiler) compileExpr(n ast.Node) error {
	switch e := n.(type) {
	case *ast.Number:
		c.emit(OpPushNum, c.addConstant(e.Value))
	case *ast.String:
		c.emit(OpPushStr, c.addString(e.Value))
	case *ast.Boolean:
		v := 0
		if e.Value {
			v = 1
		}
		c.emit(OpPushBool, v)
	case *ast.Variable:
		c.loadVar(e.Name)
	case *ast.Expr:
		return c.compileExpr(e.Inner)
	case *ast.UnaryOp:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		var b byte
		if e.Op == "not" {
			b = OpNot
		} else {
			b = OpNeg
		}
		c.emitAt(e.At, OpUnaryOp, int(b))
	case *ast.BinaryOpChain:
		if err := c.compileExpr(e.Head); err != nil {
			return err
		}
		for _, t := range e.Tail {
			if err := c.compileExpr(t.Rhs); err != nil {
				return err
			}
			b, ok := BinOpByte(t.Op)
			if !ok {
				return &CompileError{Reason: "unsupported binary operator " + t.Op}
			}
			c.emitAt(t.At, OpBinOp, int(b))
		}
	case *ast.List:
		for _, el := range e.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.emit(OpBuildList, len(e.Elements))
	case *ast.Set:
		for _, el := range e.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.emit(OpBuildSet, len(e.Elements))
	case *ast.Dict:
		for i := range e.Keys {
			if err := c.compileExpr(e.Keys[i]); err != nil {
				return err
			}
			if err := c.compileExpr(e.Values[i]); err != nil {
				return err
			}
		}
		c.emit(OpBuildDict, len(e.Keys))
	case *ast.IndexChain:
		return c.compileIndexLoad(e)
	case *ast.FunctionCall:
		if err := c.compileExpr(e.Callee); err != nil {
			return err
		}
		for _, arg := range e.Args.Values {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emitAt(e.At, OpCall, len(e.Args.Values))
	default:
		return &CompileError{Reason: "unhandled expression kind " + n.Kind().String()}
	}
	return nil
}
