package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"dupaudit/pkg/report"
	"dupaudit/pkg/skiplog"
)

// maxListedSets caps the duplicate table unless --verbose is set.
const maxListedSets = 10

func printCommandHeader(out io.Writer, command string, roots ...string) {
	fmt.Fprintf(out, "Command: %s\n", command)
	for _, root := range roots {
		fmt.Fprintf(out, "Root: %s\n", root)
	}
}

// printReport lists duplicate sets, largest savings first, and skipped paths
// when verbose.
func printReport(out io.Writer, r report.ScanReport, all bool) {
	if len(r.Sets) == 0 {
		fmt.Fprintln(out, "No duplicates found.")
		fmt.Fprintln(out)
	} else {
		sets := r.Sets
		if !all && len(sets) > maxListedSets {
			sets = sets[:maxListedSets]
		}

		rows := make([][]string, 0, len(sets))
		for i, set := range sets {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				strconv.Itoa(set.FileCount),
				humanize.IBytes(uint64(set.SizeBytes)),
				humanize.IBytes(uint64(set.Savings())),
				shortHash(set.ContentHash),
				set.Files[0].Path,
			})
		}

		fmt.Fprintln(out, renderTable(
			[]string{"#", "Files", "Size", "Savings", "Hash", "First path"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
		))
		if hidden := len(r.Sets) - len(sets); hidden > 0 {
			fmt.Fprintf(out, "... and %d more sets (use -v to list all)\n", hidden)
		}
		fmt.Fprintln(out)
	}

	if !all {
		return
	}
	for _, e := range r.Errors {
		fmt.Fprintf(out, "SKIP: %s (%s: %s)\n", e.Path, e.ReasonKind, e.Detail)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(out)
	}
}

func printSummary(out io.Writer, r report.ScanReport, extra ...string) {
	s := r.Summary

	fmt.Fprintln(out, "=== Summary ===")
	fmt.Fprintf(out, "Files scanned:     %s\n", humanize.Comma(int64(s.TotalFilesScanned)))
	fmt.Fprintf(out, "Duplicate sets:    %s\n", humanize.Comma(int64(s.DuplicateSetCount)))
	fmt.Fprintf(out, "Duplicate files:   %s\n", humanize.Comma(int64(s.TotalDuplicateFiles)))
	fmt.Fprintf(out, "Potential savings: %s\n", humanize.IBytes(uint64(s.PotentialSavingsBytes)))
	fmt.Fprintf(out, "Skipped paths:     %d%s\n", len(r.Errors), skipBreakdown(r.Errors))
	for _, line := range extra {
		fmt.Fprintln(out, line)
	}
}

func skipBreakdown(errs []report.SkipEntry) string {
	if len(errs) == 0 {
		return ""
	}

	counts := make(map[skiplog.Kind]int)
	for _, e := range errs {
		counts[e.ReasonKind]++
	}

	var parts []string
	for _, kind := range []skiplog.Kind{skiplog.AccessDenied, skiplog.SymbolicLinkSkipped, skiplog.HashFailure} {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", kind, n))
		}
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func formatNames() string {
	formats := report.Formats()
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
