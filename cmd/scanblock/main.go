// Package main is the entry point for the scanblock CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/inercia/scanblock/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
