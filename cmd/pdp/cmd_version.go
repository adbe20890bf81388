package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

const version = "0.1.0"

// versionCmd is a small subcommands.Command reporting the build version.
type versionCmd struct{}

func (*versionCmd) Name() string     { return "version" }
func (*versionCmd) Synopsis() string { return "Print the PDP version" }
func (*versionCmd) Usage() string {
	return `version:
  Print the PDP version.
`
}
func (*versionCmd) SetFlags(f *flag.FlagSet) {}

func (*versionCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("pdp " + version)
	return subcommands.ExitSuccess
}
