// Package main is the entry point for the trino-ingest binary.
package main

import (
	"os"

	cli "trino-ingest/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
