package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is a report serialization format.
type Format string

// Supported formats.
const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatCSV, FormatSQLite}
}

// ParseFormat resolves a format name. Common aliases (yml, db, sqlite3) are accepted.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "sqlite", "sqlite3", "db":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, name, formatList())
}

func formatList() string {
	names := make([]string, 0, len(Formats()))
	for _, f := range Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// Extension returns the file extension used for the format, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return ".yaml"
	case FormatCSV:
		return ".csv"
	case FormatSQLite:
		return ".db"
	default:
		return ".json"
	}
}

// DefaultFilename returns a timestamped report filename for the format.
func DefaultFilename(format Format, now time.Time) string {
	return "dupaudit-report-" + now.Format("20060102-150405") + format.Extension()
}

// Save writes the report to path in the given format, replacing any existing file.
func (r ScanReport) Save(path string, format Format) error {
	if format == FormatSQLite {
		return WriteSQLite(path, r)
	}

	var encode func(io.Writer, ScanReport) error
	switch format {
	case FormatJSON:
		encode = WriteJSON
	case FormatYAML:
		encode = WriteYAML
	case FormatCSV:
		encode = WriteCSV
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := encode(bw, r); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// WriteJSON writes the report as pretty-printed JSON.
func WriteJSON(w io.Writer, r ScanReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}

// WriteYAML writes the report as YAML.
func WriteYAML(w io.Writer, r ScanReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{
	"record", "content_hash", "size_bytes", "file_count",
	"name", "path", "created_at", "reason_kind", "detail",
}

// WriteCSV writes one "file" row per duplicate-set member followed by one
// "error" row per skip log entry. Metadata and summary are not included.
func WriteCSV(w io.Writer, r ScanReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}

	for _, set := range r.Sets {
		for _, f := range set.Files {
			row := []string{
				"file",
				set.ContentHash,
				strconv.FormatInt(set.SizeBytes, 10),
				strconv.Itoa(set.FileCount),
				f.Name,
				f.Path,
				f.CreatedAt.UTC().Format(time.RFC3339),
				"",
				"",
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv: %w", err)
			}
		}
	}

	for _, e := range r.Errors {
		row := []string{"error", "", "", "", "", e.Path, "", string(e.ReasonKind), e.Detail}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// Load reads a JSON report from a file.
func Load(path string) (*ScanReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r ScanReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &r, nil
}
