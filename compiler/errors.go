package compiler

import "fmt"

// CompileError marks an AST shape the lowering rules don't cover — an
// internal bug, not a user-facing condition.
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("💥 CompileError: %s", e.Reason)
}
