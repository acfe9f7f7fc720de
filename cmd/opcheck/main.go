// Command opcheck runs operator conformance suites.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/opcheck/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
