package main

import (
	"os"

	"github.com/wonny/valuecheck/cmd/valuecheck/commands"
)

// main is the entry point for the valuecheck CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/valuecheck [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
