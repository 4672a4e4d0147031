// Package main is the entry point for the expgrid CLI binary.
package main

import (
	"os"

	cli "expgrid/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
