// Package main is the entry point for the rawsql CLI binary.
package main

import (
	"os"

	cli "rawsql/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
