package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func isKnownCommand(name string) bool {
	switch name {
	case "run", "tokens", "repl", "version", "help", "flags", "commands", "-h", "--help":
		return true
	}
	return false
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&tokensCmd{}, "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	// `pdp <source.py>` with no subcommand name is a bare alias for
	// `pdp run <source.py>`.
	if len(os.Args) > 1 && !isKnownCommand(os.Args[1]) {
		os.Args = append([]string{os.Args[0], "run"}, os.Args[1:]...)
	}

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
