// Package main is the entry point for the licensedesk CLI/TUI.
package main

import (
	"os"

	"github.com/gunlicence/licensedesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
