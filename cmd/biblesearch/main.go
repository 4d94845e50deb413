// Package main provides the entry point for the biblesearch CLI.
package main

import (
	"os"

	"github.com/calebyhan/bible-rag/cmd/biblesearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
