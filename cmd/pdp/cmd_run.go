package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"pdp/artifact"
	"pdp/vm"
)

// runCmd implements the run command.
type runCmd struct{}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Run a PDP source file" }
func (*runCmd) Usage() string {
	return `run <source.py>:
  Lex, parse, compile and execute a source file, writing pdp_out/ artifacts.
`
}
func (r *runCmd) SetFlags(f *flag.FlagSet) {}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	logger, logFile, err := artifact.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to open pdp.log: %v\n", err)
		return subcommands.ExitStatus(3)
	}
	defer logFile.Close()

	p := compileSource(string(data))
	if werr := writeArtifacts(p); werr != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to write pdp_out/: %v\n", werr)
		return subcommands.ExitStatus(3)
	}

	if p.err != nil {
		logger.Error(p.err.Error(), "stage", describeStage(p.err))
		fmt.Fprintln(os.Stderr, p.err)
		return subcommands.ExitStatus(exitCodeFor(p.err))
	}

	logger.Info("compiled", "file", args[0])

	machine := vm.New()
	if _, err := machine.Run(p.code); err != nil {
		logger.Error(err.Error(), "stage", "execution")
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitStatus(exitCodeFor(err))
	}

	logger.Info("finished", "file", args[0])
	return subcommands.ExitSuccess
}
