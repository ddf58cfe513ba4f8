// Package main is the entry point for the adokit binary.
package main

import (
	"os"

	"github.com/adokit/adokit/cli"
)

func main() {
	os.Exit(cli.Execute())
}
