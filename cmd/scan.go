package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dupaudit/pkg/config"
	"dupaudit/pkg/usecase"
)

func buildScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [roots...]",
		Short: "Scan directories for duplicate files",
		Long: `Scans one or more directory trees and reports groups of identical files:
  - Groups files by size (files with a unique size are never read)
  - Fingerprints the first 16 KiB of same-size files
  - Hashes whole files whose fingerprints match (sha256 or blake3)
  - Optionally compares the members of every set byte by byte (--verify)

Symbolic links are never followed; they are listed in the report's errors
together with unreadable directories and files.

Roots may be given as separate arguments or as one comma-separated list.

Examples:
  dupaudit scan ./photos ./backup                   # JSON report with a generated name
  dupaudit scan ./photos,./backup                   # Same, comma-separated
  dupaudit scan --ext jpg,png -o dupes.csv --format csv ./photos
  dupaudit scan --workers 16 --timeout 30s /mnt/nas # Bound stalled network reads`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScan,
	}

	flags := cmd.Flags()
	flags.Int("workers", runtime.NumCPU(), "Number of parallel workers for hashing")
	flags.StringSlice("ext", nil, "Only consider files with these extensions (e.g. jpg,png)")
	flags.StringSlice("skip-dir", nil, "Directory names to skip (e.g. .git,node_modules)")
	flags.String("hash", "sha256", "Full-content hash algorithm (sha256, blake3)")
	flags.Bool("verify", false, "Compare duplicate candidates byte by byte")
	flags.Duration("timeout", 0, "Fail a single read or stat after this long (0 = no limit)")
	flags.String("format", "json", "Report format ("+formatNames()+")")
	flags.StringP("output", "o", "", "Report path (default: dupaudit-report-<timestamp>.<ext>)")
	flags.String("progress-log", "", "Append progress events as JSON lines to this file")
	flags.Duration("progress-interval", 500*time.Millisecond, "Minimum time between progress updates")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	roots := usecase.SplitRoots(args)

	printCommandHeader(out, "SCAN", roots...)

	sink := newProgressSink(os.Stderr, logger)
	defer sink.Close()

	service := usecase.New(usecase.Options{Config: cfg, Logger: logger})
	execution, err := service.RunScan(cmd.Context(), usecase.ScanRequest{
		Roots: roots,
		Sink:  sink,
	})
	sink.Close()

	for _, root := range execution.DroppedRoots {
		fmt.Fprintf(out, "SKIP ROOT: %s\n", root)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out)

	printReport(out, execution.Report, verbose)
	printSummary(out, execution.Report,
		fmt.Sprintf("Hash:              %s (verified: %t)", execution.Report.Metadata.HashAlgorithm, execution.Report.Metadata.Verified),
		"Duration:          "+execution.Duration.Round(time.Millisecond).String(),
		"Report:            "+execution.OutputPath,
	)

	if execution.DroppedUpdates > 0 {
		logger.Debug("progress updates dropped", zap.Int64("count", execution.DroppedUpdates))
	}

	return nil
}
