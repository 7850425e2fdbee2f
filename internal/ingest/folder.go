// Package ingest imports record exports dropped into a directory into the
// local store, either once or continuously with fsnotify.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/store"
)

// FolderOptions controls folder import behavior.
type FolderOptions struct {
	Dir      string
	Watch    bool
	Patterns []string // e.g. []string{"*.jsonl", "export-*.{json,jsonl}"}
	// Actor is recorded in the audit trail; defaults to "import".
	Actor  string
	Logger *log.Logger
	// When true and in Watch mode, start JSONL files at EOF on startup to avoid
	// re-importing existing lines each time the app starts.
	TailFromEnd bool
}

// Row is one exported record. Only id and content are required; a row
// without an id is created as a new record.
type Row struct {
	ID            int64                  `json:"id"`
	Content       *string                `json:"content"`
	Archived      bool                   `json:"archived"`
	CanonicalID   *int64                 `json:"canonical_id"`
	Metadata      map[string]interface{} `json:"metadata"`
	ArchiveReason string                 `json:"archive_reason"`
	CreatedAt     *time.Time             `json:"created_at"`
}

// FolderImporter imports records from a directory (one-shot or watch mode).
type FolderImporter struct {
	store *store.Store
	bus   bus.Bus
	opts  FolderOptions

	offsets map[string]int64 // per-file tail offset for jsonl
	mu      sync.Mutex

	imported int
	errors   int
}

// NewFolderImporter constructs a folder importer.
func NewFolderImporter(st *store.Store, b bus.Bus, opts FolderOptions) *FolderImporter {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[ingest-folder] ", log.LstdFlags)
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.jsonl", "*.json"}
	}
	if opts.Actor == "" {
		opts.Actor = "import"
	}
	if b == nil {
		b = bus.NewNullBus(opts.Logger)
	}
	return &FolderImporter{
		store:   st,
		bus:     b,
		opts:    opts,
		offsets: make(map[string]int64),
	}
}

// Stats returns the number of imported rows and failures so far.
func (fi *FolderImporter) Stats() (imported, failed int) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.imported, fi.errors
}

// Run executes the import per options (one-shot or watch).
func (fi *FolderImporter) Run(ctx context.Context) error {
	if fi.opts.Dir == "" {
		return errors.New("ingest: directory required")
	}
	if err := fi.scanOnce(ctx); err != nil {
		return err
	}

	if !fi.opts.Watch {
		imported, failed := fi.Stats()
		fi.opts.Logger.Printf("Completed one-shot import: imported=%d errors=%d", imported, failed)
		return nil
	}
	return fi.watchLoop(ctx)
}

func (fi *FolderImporter) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range fi.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		if ok, _ := doublestar.Match(p, lower); ok {
			return true
		}
	}
	return false
}

func (fi *FolderImporter) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fi.opts.Dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !fi.matches(e.Name()) {
			continue
		}
		path := filepath.Join(fi.opts.Dir, e.Name())
		lower := strings.ToLower(e.Name())
		switch {
		case strings.HasSuffix(lower, ".jsonl"):
			if fi.opts.Watch && fi.opts.TailFromEnd {
				if st, err := os.Stat(path); err == nil {
					fi.setOffset(path, st.Size())
				}
				continue
			}
			offset, err := fi.processJSONL(ctx, path, 0)
			if err != nil {
				fi.fail("error processing %s: %v", path, err)
			}
			fi.setOffset(path, offset)
		case strings.HasSuffix(lower, ".json"):
			if err := fi.processJSONFile(ctx, path); err != nil {
				fi.fail("error processing %s: %v", path, err)
			}
		}
	}
	return nil
}

func (fi *FolderImporter) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fi.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}
	fi.opts.Logger.Printf("Watching directory: %s (patterns: %s)", fi.opts.Dir, strings.Join(fi.opts.Patterns, ","))

	for {
		select {
		case <-ctx.Done():
			imported, failed := fi.Stats()
			fi.opts.Logger.Printf("Watch stopping: imported=%d errors=%d", imported, failed)
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			fi.handleEvent(ctx, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				fi.opts.Logger.Printf("watch error: %v", err)
			}
		}
	}
}

func (fi *FolderImporter) handleEvent(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !fi.matches(name) {
		return
	}
	lower := strings.ToLower(name)

	if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		switch {
		case strings.HasSuffix(lower, ".jsonl"):
			offset := fi.offset(ev.Name)
			newOffset, err := fi.processJSONL(ctx, ev.Name, offset)
			if err != nil {
				fi.fail("error tailing %s: %v", ev.Name, err)
				return
			}
			fi.setOffset(ev.Name, newOffset)
		case strings.HasSuffix(lower, ".json"):
			// Re-process entire file on write; rows are upserts
			if err := fi.processJSONFile(ctx, ev.Name); err != nil {
				fi.fail("error processing %s: %v", ev.Name, err)
			}
		}
	}
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		fi.mu.Lock()
		delete(fi.offsets, ev.Name)
		fi.mu.Unlock()
	}
}

func (fi *FolderImporter) offset(path string) int64 {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.offsets[path]
}

func (fi *FolderImporter) setOffset(path string, off int64) {
	fi.mu.Lock()
	fi.offsets[path] = off
	fi.mu.Unlock()
}

func (fi *FolderImporter) fail(format string, args ...interface{}) {
	fi.opts.Logger.Printf(format, args...)
	fi.mu.Lock()
	fi.errors++
	fi.mu.Unlock()
}

// processJSONL imports complete lines from startOffset and returns the offset
// after the last complete line. A trailing partial line is left for the next
// write event.
func (fi *FolderImporter) processJSONL(ctx context.Context, path string, startOffset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		// File might be transiently missing (rename/rotate)
		return startOffset, err
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil && st.Size() < startOffset {
		// truncated
		startOffset = 0
	}
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
			return startOffset, err
		}
	}

	reader := bufio.NewReaderSize(f, 1024*1024)
	offset := startOffset
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, err
		}
		offset += int64(len(line))
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		if err := fi.importRow(ctx, []byte(trimmed), path); err != nil {
			fi.fail("parse error in %s: %v", path, err)
		}
	}
}

func (fi *FolderImporter) processJSONFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	trim := strings.TrimSpace(string(data))
	if trim == "" {
		return nil
	}

	if strings.HasPrefix(trim, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trim), &arr); err != nil {
			return err
		}
		for _, raw := range arr {
			if err := fi.importRow(ctx, raw, path); err != nil {
				fi.fail("parse error in %s: %v", path, err)
			}
		}
		return nil
	}
	return fi.importRow(ctx, []byte(trim), path)
}

func (fi *FolderImporter) importRow(ctx context.Context, raw []byte, path string) error {
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return err
	}
	if row.ID < 0 {
		return fmt.Errorf("invalid record id %d", row.ID)
	}
	rec := store.Record{
		ID:            row.ID,
		Content:       row.Content,
		Archived:      row.Archived,
		CanonicalID:   row.CanonicalID,
		Metadata:      row.Metadata,
		ArchiveReason: row.ArchiveReason,
	}
	if row.CreatedAt != nil {
		rec.CreatedAt = *row.CreatedAt
	}

	id, err := fi.store.ImportRecord(ctx, rec)
	if err != nil {
		return err
	}
	fi.mu.Lock()
	fi.imported++
	fi.mu.Unlock()

	source := filepath.Base(path)
	if err := fi.store.LogRecordAction(ctx, id, store.ActionImport, fi.opts.Actor, map[string]interface{}{"file": source}); err != nil {
		fi.opts.Logger.Printf("failed to audit import of record %d: %v", id, err)
	}
	// Best-effort publish to bus (no-op on NullBus)
	_ = fi.bus.PublishRecord(ctx, bus.RecordMessage{
		RecordID:  id,
		Action:    bus.ActionImported,
		Actor:     fi.opts.Actor,
		Detail:    source,
		Timestamp: time.Now().Unix(),
	})
	return nil
}
