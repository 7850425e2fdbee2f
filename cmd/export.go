package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/store"
)

var (
	exportFormat  string
	exportOut     string
	exportDecoded bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export local records as JSON or YAML",
	Long: `Write every record of the local database. JSON output can be fed back to
"casedesk import". With --decoded each record also carries its theme,
question and answer.

Examples:
  casedesk export --format json --out records.json
  casedesk export --format yaml --decoded`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json or yaml")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportDecoded, "decoded", false, "Include the decoded fields")
}

// exportedRecord is a store record plus its decoded content.
type exportedRecord struct {
	store.Record `yaml:",inline"`
	Decoded      *casetext.Record `json:"decoded,omitempty" yaml:"decoded,omitempty"`
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	st, err := store.NewStore(resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	records, err := st.ExportRecords(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to export records: %w", err)
	}
	out := make([]exportedRecord, 0, len(records))
	for _, r := range records {
		er := exportedRecord{Record: r}
		if exportDecoded {
			d := casetext.DecodeNullable(r.Content)
			er.Decoded = &d
		}
		out = append(out, er)
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if err := encodeRecords(w, exportFormat, out); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(out), exportOut)
	}
	return nil
}

func encodeRecords(w io.Writer, format string, records []exportedRecord) error {
	switch strings.ToLower(format) {
	case "json":
		return writeJSON(w, records)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (use json or yaml)", format)
	}
}
