package main

import (
	"fmt"
	"os"

	"github.com/fundraisehq/tracker/internal/cli"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
