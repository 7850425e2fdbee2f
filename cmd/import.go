package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/ingest"
	"github.com/casedesk/casedesk/internal/store"
)

var (
	importDir      string
	importWatch    bool
	importPatterns string
	importActor    string
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import record exports from files in a directory (optionally watch for changes)",
	Long: `Import record exports into the local database. Supports JSONL (line-delimited)
and JSON files (a single object or an array). Each row is
{"id": 1, "content": "Тема: ...; Вопрос: ...; Ответ: ...", "archived": false};
rows with a known id replace the stored record.

Examples:
  # One-shot: import existing files and exit
  casedesk import --dir ./incoming

  # Watch mode: tail JSONL appends and reprocess JSON changes
  casedesk import --dir ./incoming --watch

  # Only JSONL files
  casedesk import --dir ./incoming --pattern "*.jsonl"`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDir, "dir", "", "Directory to read files from (default ingest.dir)")
	importCmd.Flags().BoolVar(&importWatch, "watch", false, "Watch directory for changes and tail JSONL files")
	importCmd.Flags().StringVar(&importPatterns, "pattern", "*.jsonl,*.json", "Comma-separated glob patterns to match (e.g. \"*.jsonl,*.json\")")
	importCmd.Flags().StringVar(&importActor, "actor", "import", "Actor recorded in the audit trail")
}

// splitPatterns splits on commas outside of {} groups.
func splitPatterns(s string) []string {
	var patterns []string
	depth, start := 0, 0
	add := func(p string) {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				add(s[start:i])
				start = i + 1
			}
		}
	}
	add(s[start:])
	return patterns
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	logger := log.New(os.Stderr, "[ingest-folder] ", log.LstdFlags)

	dir := importDir
	if dir == "" {
		dir = cfg.Ingest.Dir
	}

	st, err := store.NewStore(resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	eventBus := bus.NewBus(cfg.Redis.URL, logger)
	defer eventBus.Close()

	opts := ingest.FolderOptions{
		Dir:      dir,
		Watch:    importWatch,
		Patterns: splitPatterns(importPatterns),
		Actor:    importActor,
		Logger:   logger,
	}
	logger.Printf("Starting import dir=%s watch=%v patterns=%v", opts.Dir, opts.Watch, opts.Patterns)

	importer := ingest.NewFolderImporter(st, eventBus, opts)
	if err := importer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("import error: %w", err)
	}

	imported, failed := importer.Stats()
	logger.Printf("import completed: %d imported, %d failed", imported, failed)
	return nil
}
