// Command framewatch observes a running game's memory and reports hits,
// attribution, phases, readiness, advantage and combos.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/framewatch/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "framewatch:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
