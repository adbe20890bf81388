package compiler

// CodeObject is the compiler's immutable output: one per function, plus one
// for the script. It holds no mutable state — Frame carries every value
// that changes during execution.
type CodeObject struct {
	Name string

	ParamCount   int
	LocalVarsNum int
	CellVarsNum  int
	FreeVarsNum  int
	DerefVarsNum int // CellVarsNum + FreeVarsNum

	Bytecode  []byte
	Constants []float64
	Strings   []string
	Names     []string // global/builtin name operands, indexed by LOAD_GLOBAL etc.
	Children  []*CodeObject

	IsGenerator bool

	// Positions records the source position of instructions that can fail
	// at runtime (BIN_OP, UNARY_OP, CALL, INDEX_GET/SET), keyed by the
	// instruction's byte offset, for error reporting.
	Positions map[int]Pos
}

// Pos is a lightweight (row, col) pair, independent of package ast so the
// vm package's error reporting doesn't need to import it.
type Pos struct {
	Row int
	Col int
}

// builtinNames is the VM's pre-seeded builtin set; the compiler consults
// it to choose LOAD_BUILTIN over LOAD_GLOBAL for a global name in this set.
// LOAD_BUILTIN reads a script-level assignment of the same name first, so
// only names never assigned at script scope resolve to the builtin.
var builtinNames = map[string]bool{
	"print": true, "range": true, "len": true,
	"str": true, "int": true, "float": true, "bool": true,
}
