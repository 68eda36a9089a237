package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dupaudit/pkg/config"
	"dupaudit/pkg/usecase"
)

var (
	importOutput string
	importFormat string
)

func buildImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-legacy [file.csv]",
		Short: "Convert an old CSV duplicate report",
		Long: `Converts a report written by the old CSV exporter into the current
report format. The old exporter grouped files by size only and never stored
a content hash, so every imported set carries the hash "migrated-legacy".

Expected columns: name, created, size, folder, path (with a header row).

Examples:
  dupaudit import-legacy old.csv                    # writes old_migrated.json
  dupaudit import-legacy old.csv --format sqlite -o old.db`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringVarP(&importOutput, "output", "o", "", "Report path (default: <name>_migrated.<ext> next to the CSV)")
	cmd.Flags().StringVar(&importFormat, "format", "", "Report format ("+formatNames()+")")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printCommandHeader(out, "IMPORT-LEGACY", args[0])

	service := usecase.New(usecase.Options{Config: cfg, Logger: logger})
	execution, err := service.RunImport(usecase.ImportRequest{
		CSVPath:    args[0],
		OutputPath: importOutput,
		Format:     importFormat,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Rows read: %d, skipped: %d\n", execution.Result.RowsRead, execution.Result.RowsSkipped)
	fmt.Fprintln(out)

	printSummary(out, execution.Result.Report,
		"Report:            "+execution.OutputPath,
	)

	return nil
}
