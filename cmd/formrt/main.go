package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-formruntime/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "formrt:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
