package vm

import "pdp/compiler"

// Frame is one activation record: slotted locals, the cells this scope
// owns, the free cells it captured from an enclosing scope, and the
// instruction pointer into its CodeObject.
type Frame struct {
	Code *compiler.CodeObject
	IP   int

	Locals []Object
	Cells  []*Cell
	Frees  []*Cell

	// owner is non-nil when this frame is a generator's body, currently
	// resumed by a FOR_ITER/driver frame. RETURN and YIELD both check it
	// to decide whether to surface a value to the caller or signal
	// exhaustion instead.
	owner *Generator
}

func newFrame(code *compiler.CodeObject, args []Object) *Frame {
	locals := make([]Object, code.LocalVarsNum)
	for i := range locals {
		locals[i] = None{}
	}
	copy(locals, args)
	cells := make([]*Cell, code.CellVarsNum)
	for i := range cells {
		cells[i] = &Cell{Value: None{}}
	}
	return &Frame{Code: code, Locals: locals, Cells: cells}
}
