package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dupaudit/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	verbose    bool
	configFile string
	logger     = zap.NewNop()
)

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dupaudit",
		Short: "Find byte-identical files and report the space they waste",
		Long: `dupaudit scans directory trees for duplicate files and writes a report
of every duplicate set and the storage that could be reclaimed.

Files are compared in stages: only files of equal size are fingerprinted,
only files with equal 16 KiB prefixes are fully hashed, and with --verify
the members of every set are compared byte by byte.

Commands:
  scan           Scan one or more directories for duplicates
  import-legacy  Convert an old CSV duplicate report to the current format
  version        Print the version

Examples:
  # Scan two trees and write a JSON report with a generated name
	  dupaudit scan /mnt/photos /mnt/backup

  # Only look at images, write YAML
	  dupaudit scan --ext jpg,png,heic --format yaml -o photos.yaml /mnt/photos

  # Use BLAKE3 and confirm every set byte by byte
	  dupaudit scan --hash blake3 --verify /srv/data

  # Convert a report from the old CSV exporter
	  dupaudit import-legacy old-report.csv

Safety:
  dupaudit never modifies, moves or deletes scanned files. It only reads them
  and writes the report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			l, err := logging.New(logging.Options{Verbose: verbose})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logger.Sync()
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (YAML, TOML or JSON)")

	return cmd
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dupaudit %s\n", version)
		},
	}
}
