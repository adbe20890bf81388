// Package symtab builds one symbol table per lexical scope from the AST,
// classifying every name as local, cell, free, or global and assigning the
// dense slot indices the compiler emits bytecode against.
package symtab

import "pdp/ast"

// Class is a name's classification within its declaring or using scope.
type Class int

const (
	Local Class = iota
	Cell
	Free
	Global
)

func (c Class) String() string {
	switch c {
	case Local:
		return "local"
	case Cell:
		return "cell"
	case Free:
		return "free"
	case Global:
		return "global"
	default:
		return "?"
	}
}

// Scope is one lexical scope's symbol table: the script, or one function
// body. Parent is nil for the script scope.
type Scope struct {
	Parent *Scope
	Node   ast.Node // *ast.Script or *ast.FunctionDef

	Names map[string]Class

	Locals []string
	Cells  []string
	Frees  []string

	LocalIndex map[string]int
	CellIndex  map[string]int
	FreeIndex  map[string]int

	Children []*Scope
}

func newScope(parent *Scope, node ast.Node) *Scope {
	return &Scope{
		Parent:     parent,
		Node:       node,
		Names:      map[string]Class{},
		LocalIndex: map[string]int{},
		CellIndex:  map[string]int{},
		FreeIndex:  map[string]int{},
	}
}

// declareLocal records name as owned by scope s. At script scope this
// means Global, never Local: the root scope has no enclosing scope to
// capture into, so nothing assigned there is ever a local->cell
// promotion candidate — exactly like Python's module scope never
// producing closure cells.
func (s *Scope) declareLocal(name string) {
	if _, ok := s.Names[name]; ok {
		return
	}
	if s.Parent == nil {
		s.Names[name] = Global
		return
	}
	s.Names[name] = Local
	s.LocalIndex[name] = len(s.Locals)
	s.Locals = append(s.Locals, name)
}

// SymbolError is a defensive check: break/continue outside a loop or return
// outside a function. The parser's context gating is the real enforcement —
// this should be unreachable from any AST the parser actually produces.
type SymbolError struct {
	Reason string
}

func (e *SymbolError) Error() string {
	return "💥 SymbolError: " + e.Reason
}

// Build runs the two-pass classification over the whole program (script
// scope plus one nested scope per function_def, recursively) and returns
// the script's root Scope.
func Build(script *ast.Script) (*Scope, error) {
	root := newScope(nil, script)
	if err := declare(root, script.Body, false, false); err != nil {
		return nil, err
	}
	resolveScope(root)
	return root, nil
}

// resolveScope runs pass 2 over one scope's own statements, then recurses
// into each nested function scope exactly once.
func resolveScope(s *Scope) {
	var body *ast.Block
	switch n := s.Node.(type) {
	case *ast.Script:
		body = n.Body
	case *ast.FunctionDef:
		body = n.Body
	}
	resolve(s, body)
	for _, child := range s.Children {
		resolveScope(child)
	}
}

// declare is pass 1: assign_op/for_loop targets and function_def names
// become locals of the current scope; function_def bodies recurse into a
// fresh child scope. inLoop/inFunction are carried only so the defensive
// SymbolError check can fire; they do not affect classification.
func declare(s *Scope, block *ast.Block, inLoop, inFunction bool) error {
	for _, stmt := range block.Stmts {
		if err := declareStmt(s, stmt, inLoop, inFunction); err != nil {
			return err
		}
	}
	return nil
}

func declareStmt(s *Scope, n ast.Node, inLoop, inFunction bool) error {
	switch stmt := n.(type) {
	case *ast.AssignOp:
		if v, ok := stmt.Target.(*ast.Variable); ok {
			s.declareLocal(v.Name)
		}
	case *ast.For:
		s.declareLocal(stmt.Var)
		if err := declare(s, stmt.Body, true, inFunction); err != nil {
			return err
		}
	case *ast.While:
		if err := declare(s, stmt.Body, true, inFunction); err != nil {
			return err
		}
	case *ast.If:
		if err := declare(s, stmt.Body, inLoop, inFunction); err != nil {
			return err
		}
	case *ast.FunctionDef:
		s.declareLocal(stmt.Name)
		child := newScope(s, stmt)
		s.Children = append(s.Children, child)
		for _, p := range stmt.Params.Names {
			child.declareLocal(p)
		}
		if err := declare(child, stmt.Body, false, true); err != nil {
			return err
		}
	case *ast.Continue:
		if !inLoop {
			return &SymbolError{Reason: "continue outside loop"}
		}
	case *ast.Break:
		if !inLoop {
			return &SymbolError{Reason: "break outside loop"}
		}
	case *ast.Return:
		if !inFunction {
			return &SymbolError{Reason: "return outside function"}
		}
	case *ast.Yield:
		if !inFunction {
			return &SymbolError{Reason: "yield outside function"}
		}
	}
	return nil
}

// resolve is pass 2: walk every Variable reference. A reference already
// Local in its own scope needs nothing; otherwise the declaring ancestor
// is promoted to Cell and every scope strictly between it and the
// reference is marked Free.
func resolve(s *Scope, block *ast.Block) {
	for _, stmt := range block.Stmts {
		resolveStmt(s, stmt)
	}
}

func resolveStmt(s *Scope, n ast.Node) {
	switch stmt := n.(type) {
	case *ast.AssignOp:
		if idx, ok := stmt.Target.(*ast.IndexChain); ok {
			resolveExpr(s, idx.Base)
			for _, i := range idx.Indices {
				resolveExpr(s, i)
			}
		}
		resolveExpr(s, stmt.Value)
	case *ast.If:
		resolveExpr(s, stmt.Cond)
		resolve(s, stmt.Body)
	case *ast.While:
		resolveExpr(s, stmt.Cond)
		resolve(s, stmt.Body)
	case *ast.For:
		resolveExpr(s, stmt.Iter)
		resolve(s, stmt.Body)
	case *ast.Return:
		if stmt.Value != nil {
			resolveExpr(s, stmt.Value)
		}
	case *ast.Yield:
		resolveExpr(s, stmt.Value)
	case *ast.FunctionCall:
		resolveExpr(s, stmt)
	}
}

func resolveExpr(s *Scope, n ast.Node) {
	switch e := n.(type) {
	case *ast.Variable:
		resolveName(s, e.Name)
	case *ast.Expr:
		resolveExpr(s, e.Inner)
	case *ast.UnaryOp:
		resolveExpr(s, e.Operand)
	case *ast.BinaryOpChain:
		resolveExpr(s, e.Head)
		for _, t := range e.Tail {
			resolveExpr(s, t.Rhs)
		}
	case *ast.FunctionCall:
		resolveExpr(s, e.Callee)
		for _, a := range e.Args.Values {
			resolveExpr(s, a)
		}
	case *ast.IndexChain:
		resolveExpr(s, e.Base)
		for _, i := range e.Indices {
			resolveExpr(s, i)
		}
	case *ast.List:
		for _, el := range e.Elements {
			resolveExpr(s, el)
		}
	case *ast.Set:
		for _, el := range e.Elements {
			resolveExpr(s, el)
		}
	case *ast.Dict:
		for _, v := range e.Values {
			resolveExpr(s, v)
		}
	}
}

// resolveName implements the outward search: if name is already Local here,
// nothing to do. Otherwise search ancestors; the first that owns it as
// Local is promoted to Cell, and every scope strictly between that owner
// and s (s included) is marked Free.
func resolveName(s *Scope, name string) {
	if cls, ok := s.Names[name]; ok && cls != Global {
		return
	}
	var chain []*Scope
	cur := s.Parent
	for cur != nil {
		if cls, ok := cur.Names[name]; ok {
			if cls == Local || cls == Cell {
				cur.Names[name] = Cell
				if _, already := cur.CellIndex[name]; !already {
					cur.CellIndex[name] = len(cur.Cells)
					cur.Cells = append(cur.Cells, name)
				}
				for _, mid := range chain {
					markFree(mid, name)
				}
				markFree(s, name)
				return
			}
		}
		chain = append(chain, cur)
		cur = cur.Parent
	}
	// Unresolved all the way to the script scope: global.
	s.Names[name] = Global
}

func markFree(s *Scope, name string) {
	if s.Names[name] == Free {
		return
	}
	s.Names[name] = Free
	if _, already := s.FreeIndex[name]; !already {
		s.FreeIndex[name] = len(s.Frees)
		s.Frees = append(s.Frees, name)
	}
}

// Classify reports how name resolves within scope s, defaulting to Global
// if it was never observed (a reference the resolve pass never walked
// into, e.g. inside dead code the compiler still has to handle safely).
func (s *Scope) Classify(name string) Class {
	if cls, ok := s.Names[name]; ok {
		return cls
	}
	return Global
}
