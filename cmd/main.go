package main

import (
	"os"
)

func main() {
	rootCmd := buildRootCommand()
	rootCmd.AddCommand(buildScanCommand())
	rootCmd.AddCommand(buildImportCommand())
	rootCmd.AddCommand(buildVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
