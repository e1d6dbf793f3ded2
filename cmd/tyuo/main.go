// Command tyuo is the per-context Markov text engine.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tyuo/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Usage errors from cobra have not been reported yet.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.GetExitCode(err))
}
