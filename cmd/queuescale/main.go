package main

import (
	"fmt"
	"os"

	"github.com/phildougherty/queuescale/internal/cmd"
	"github.com/phildougherty/queuescale/internal/errors"
)

var version = "dev"

func main() {
	rootCmd := cmd.NewRootCommand(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes configuration problems from runtime failures
func exitCode(err error) int {
	if errors.KindOf(err) == errors.KindConfig {
		return 2
	}
	return 1
}
