// Package main provides the entry point for the dedup service.
package main

import (
	"os"

	"github.com/kailas-cloud/dedup/cmd/dedup/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
