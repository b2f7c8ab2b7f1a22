// Package main is the entry point for the licensedeskd daemon.
package main

import (
	"os"

	"github.com/gunlicence/licensedesk/internal/daemon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
