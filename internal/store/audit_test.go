package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/casedesk/internal/backend"
)

func TestAuditEntriesFlow(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data", "test.db")

	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	id, err := s.CreateRecord(ctx, "Тема: t;")
	require.NoError(t, err)

	require.NoError(t, s.EditRecord(ctx, id, "Тема: t2;", map[string]interface{}{"edited": true}))
	require.NoError(t, s.Archive(ctx, id, "manual"))
	require.NoError(t, s.LogFeedback(ctx, "uid-1", "fb-1", "хороший ответ", []string{"1", "2"}))

	entries, err := s.GetAuditEntries(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	assert.Equal(t, ActionArchive, entries[0].Action)
	assert.Equal(t, "manual", entries[0].Details["reason"])
	assert.Equal(t, "system", entries[0].Actor)
	assert.Equal(t, ActionEdit, entries[1].Action)
	assert.Len(t, entries[0].ID, 26)

	all, err := s.GetAuditEntries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionFeedback, all[0].Action)
	assert.Equal(t, "uid-1", all[0].Actor)
	assert.Equal(t, int64(0), all[0].RecordID)
	assert.Equal(t, []interface{}{"1", "2"}, all[0].Details["cases"])
}

func TestAuditIDsAreOrdered(t *testing.T) {
	s := newTestStore(t)
	prev := ""
	for i := 0; i < 50; i++ {
		id := s.newID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestSetCanonicalIsAudited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, "Тема: a;")
	b := mustCreate(t, s, "Тема: b;")
	require.NoError(t, s.SetCanonical(ctx, b, a))

	entries, err := s.GetAuditEntries(ctx, b, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionMarkDuplicate, entries[0].Action)
	assert.Equal(t, float64(a), entries[0].Details["canonical_id"])

	_, err = s.SendOK(ctx, backend.SendOKRequest{ID: a})
	require.NoError(t, err)
	entries, err = s.GetAuditEntries(ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, ActionSendOK, entries[0].Action)
}
