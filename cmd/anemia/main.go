// Package main is the entry point for the anemia CLI.
package main

import (
	"os"

	"anemia-detect-go/cmd/anemia/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
