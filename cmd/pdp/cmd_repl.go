package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"pdp/ast"
	"pdp/compiler"
	"pdp/lexer"
	"pdp/parser"
	"pdp/symtab"
	"pdp/vm"
)

// replCmd implements the interactive REPL, reading lines through
// chzyer/readline for history and line editing.
type replCmd struct{}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive line-at-a-time session. Script scope persists
  across lines within the process.
`
}
func (r *replCmd) SetFlags(f *flag.FlagSet) {}

// forceGlobalScope flattens a one-line REPL compile's top-level Locals
// into Globals so successive lines, each compiled as an independent
// script, read and write the same persistent vm.Globals map instead of
// each getting a throwaway Frame.Locals that vanishes when the line's
// frame pops. Nested function scopes are left untouched: closures over
// names introduced in an earlier REPL line are a known limitation of
// line-at-a-time compilation, not something this flattening tries to fix.
func forceGlobalScope(root *symtab.Scope) {
	for name, cls := range root.Names {
		if cls == symtab.Local {
			root.Names[name] = symtab.Global
		}
	}
}

func runREPLLine(machine *vm.VM, line string) error {
	lex := lexer.New(line + "\n")
	tokens, err := lex.Scan()
	if err != nil {
		return err
	}
	p := parser.New(tokens)
	_, prog, err := p.Parse()
	if err != nil {
		return err
	}
	script, ok := prog.(*ast.Script)
	if !ok {
		return &compiler.CompileError{Reason: "repl line did not produce a script"}
	}
	root, err := symtab.Build(script)
	if err != nil {
		return err
	}
	forceGlobalScope(root)
	code, err := compiler.CompileScript(script, root)
	if err != nil {
		return err
	}
	_, err = machine.Run(code)
	return err
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("\n\nWelcome to PDP!")

	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to start readline: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	machine := vm.New()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %v\n", err)
			return subcommands.ExitFailure
		}
		if line == "" {
			continue
		}
		if line == "exit" {
			return subcommands.ExitSuccess
		}
		if rerr := runREPLLine(machine, line); rerr != nil {
			fmt.Fprintln(os.Stderr, rerr)
		}
	}
}
