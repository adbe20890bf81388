package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"pdp/artifact"
	"pdp/lexer"
)

// tokensCmd implements the lex-only command: a way to inspect one
// pipeline stage in isolation without running the rest of it.
type tokensCmd struct{}

func (*tokensCmd) Name() string     { return "tokens" }
func (*tokensCmd) Synopsis() string { return "Lex a source file and write token_stream.txt" }
func (*tokensCmd) Usage() string {
	return `tokens <source.py>:
  Lex a source file and write pdp_out/token_stream.txt, then exit.
`
}
func (t *tokensCmd) SetFlags(f *flag.FlagSet) {}

func (t *tokensCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 File not provided\n")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to read file: %v\n", err)
		return subcommands.ExitStatus(3)
	}

	lex := lexer.New(string(data))
	tokens, lexErr := lex.Scan()

	if err := artifact.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to write pdp_out/: %v\n", err)
		return subcommands.ExitStatus(3)
	}
	if err := artifact.WriteTokens(tokens); err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to write token_stream.txt: %v\n", err)
		return subcommands.ExitStatus(3)
	}

	if lexErr != nil {
		fmt.Fprintln(os.Stderr, lexErr)
		return subcommands.ExitStatus(1)
	}
	return subcommands.ExitSuccess
}
