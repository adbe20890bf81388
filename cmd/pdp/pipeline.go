package main

import (
	"strings"

	"pdp/artifact"
	"pdp/ast"
	"pdp/compiler"
	"pdp/cst"
	"pdp/lexer"
	"pdp/parser"
	"pdp/symtab"
	"pdp/token"
	"pdp/vm"
)

// pipeline is the result of driving source text through every stage up
// to (but not including) execution. Each field is populated as far as the
// pipeline got before err was set, so artifacts can always be written for
// whatever stage was reached.
type pipeline struct {
	tokens []token.Token
	tree   *cst.Node
	prog   ast.Node
	code   *compiler.CodeObject
	err    error
}

func compileSource(src string) pipeline {
	var p pipeline

	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}

	lex := lexer.New(src)
	tokens, err := lex.Scan()
	p.tokens = tokens
	if err != nil {
		p.err = err
		return p
	}

	prs := parser.New(tokens)
	tree, prog, err := prs.Parse()
	p.tree = tree
	p.prog = prog
	if err != nil {
		p.err = err
		return p
	}

	script, ok := prog.(*ast.Script)
	if !ok {
		p.err = &compiler.CompileError{Reason: "parser did not produce a script"}
		return p
	}

	root, err := symtab.Build(script)
	if err != nil {
		p.err = err
		return p
	}

	code, err := compiler.CompileScript(script, root)
	p.code = code
	if err != nil {
		p.err = err
		return p
	}
	return p
}

// writeArtifacts persists whatever token_stream/parse_tree/ast content the
// pipeline reached. A nil tree or AST is not an error (a pipeline that
// failed at lexing has none, and the corresponding files are written
// empty); the first failed file write is returned.
func writeArtifacts(p pipeline) error {
	if err := artifact.EnsureDir(); err != nil {
		return err
	}
	if err := artifact.WriteTokens(p.tokens); err != nil {
		return err
	}
	if err := artifact.WriteParseTree(p.tree); err != nil {
		return err
	}
	if err := artifact.WriteAST(p.prog); err != nil {
		return err
	}
	return nil
}

// exitCodeFor maps a pipeline-stage or VM error to the process exit code:
// 1 for a front-end failure (lex/parse/symbol/compile), 2 for a runtime
// error, 3 for an I/O failure reading the source file.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *lexer.LexError, *parser.ParseError, *symtab.SymbolError, *compiler.CompileError:
		return 1
	case *vm.RuntimeError:
		return 2
	default:
		return 3
	}
}

func describeStage(err error) string {
	switch err.(type) {
	case *lexer.LexError:
		return "lexing"
	case *parser.ParseError:
		return "parsing"
	case *symtab.SymbolError:
		return "symbol resolution"
	case *compiler.CompileError:
		return "compilation"
	case *vm.RuntimeError:
		return "execution"
	default:
		return "io"
	}
}
