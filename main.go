// Package main provides the entrypoint for waha-pipeline.
package main

import (
	"os"

	"github.com/isometry/waha-pipeline/cmd"
)

func main() {
	if err := cmd.New().Execute(); err != nil {
		os.Exit(1)
	}
}
