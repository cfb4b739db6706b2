// Package main is the entry point for the multisearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/dillonfkhanna/multi-search/cmd/multisearch/cmd"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, mserrors.FormatForCLI(err))
		os.Exit(1)
	}
}
