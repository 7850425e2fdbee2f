package ingest

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/casedesk/internal/store"
)

func newTestImporter(t *testing.T, opts FolderOptions) (*FolderImporter, *store.Store) {
	t.Helper()
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	opts.Logger = log.New(io.Discard, "", 0)
	return NewFolderImporter(st, nil, opts), st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestOneShotImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `[
		{"id": 10, "content": "Тема: a;", "archived": true, "archive_reason": "manual"},
		{"id": 11, "content": null}
	]`)
	writeFile(t, filepath.Join(dir, "b.jsonl"), "{\"id\": 12, \"content\": \"Тема: b;\", \"canonical_id\": 10}\n\nnot json\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	fi, st := newTestImporter(t, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	imported, failed := fi.Stats()
	assert.Equal(t, 3, imported)
	assert.Equal(t, 1, failed)

	rec, err := st.GetRecord(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, rec.Archived)
	assert.Equal(t, "manual", rec.ArchiveReason)

	rec, err = st.GetRecord(context.Background(), 11)
	require.NoError(t, err)
	assert.Nil(t, rec.Content)

	rec, err = st.GetRecord(context.Background(), 12)
	require.NoError(t, err)
	require.NotNil(t, rec.CanonicalID)
	assert.Equal(t, int64(10), *rec.CanonicalID)

	entries, err := st.GetAuditEntries(context.Background(), 12, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.ActionImport, entries[0].Action)
	assert.Equal(t, "import", entries[0].Actor)
}

func TestImportIsUpsert(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	writeFile(t, path, `{"id": 5, "content": "old"}`)

	fi, st := newTestImporter(t, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	writeFile(t, path, `{"id": 5, "content": "new"}`)
	require.NoError(t, fi.Run(context.Background()))

	total, _, err := st.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	rec, err := st.GetRecord(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "new", *rec.Content)
}

func TestJSONLTailKeepsPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.jsonl")
	writeFile(t, path, "{\"id\": 1, \"content\": \"a\"}\n{\"id\": 2, \"con")

	fi, st := newTestImporter(t, FolderOptions{Dir: dir})
	ctx := context.Background()

	off, err := fi.processJSONL(ctx, path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len("{\"id\": 1, \"content\": \"a\"}\n")), off)

	writeFile(t, path, "{\"id\": 1, \"content\": \"a\"}\n{\"id\": 2, \"content\": \"b\"}\n")
	off2, err := fi.processJSONL(ctx, path, off)
	require.NoError(t, err)
	assert.Greater(t, off2, off)

	total, _, err := st.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	imported, failed := fi.Stats()
	assert.Equal(t, 2, imported)
	assert.Zero(t, failed)
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	fi, st := newTestImporter(t, FolderOptions{Dir: dir, Watch: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fi.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "late.json"), `{"id": 77, "content": "Тема: поздно;"}`)

	assert.Eventually(t, func() bool {
		_, err := st.GetRecord(context.Background(), 77)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunRequiresDir(t *testing.T) {
	fi, _ := newTestImporter(t, FolderOptions{})
	assert.Error(t, fi.Run(context.Background()))
}

func TestMatches(t *testing.T) {
	fi, _ := newTestImporter(t, FolderOptions{Dir: "x"})
	assert.True(t, fi.matches("EXPORT.JSON"))
	assert.True(t, fi.matches("a.jsonl"))
	assert.False(t, fi.matches("a.json.tmp-123"))
}

func TestMatchesBracePattern(t *testing.T) {
	fi, _ := newTestImporter(t, FolderOptions{Dir: "x", Patterns: []string{"export-*.{json,jsonl}"}})
	assert.True(t, fi.matches("export-2024.jsonl"))
	assert.True(t, fi.matches("Export-1.JSON"))
	assert.False(t, fi.matches("records.json"))
}
