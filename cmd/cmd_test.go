package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/store"
)

func TestBuildListQuery(t *testing.T) {
	q, err := buildListQuery("  оплата ", "true", true, 0, -5)
	require.NoError(t, err)
	require.NotNil(t, q.Search)
	assert.Equal(t, "оплата", *q.Search)
	require.NotNil(t, q.Archived)
	assert.True(t, *q.Archived)
	assert.True(t, q.WithDupesOnly)
	assert.Equal(t, backend.DefaultPageSize, q.Limit)
	assert.Equal(t, 0, q.Offset)

	q, err = buildListQuery("", "all", false, 10, 20)
	require.NoError(t, err)
	assert.Nil(t, q.Search)
	assert.Nil(t, q.Archived)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 20, q.Offset)

	_, err = buildListQuery("", "maybe", false, 10, 0)
	assert.Error(t, err)
}

func TestRecordStateLabel(t *testing.T) {
	canonical := int64(7)
	assert.Equal(t, "duplicate of #7", recordStateLabel(backend.RecordRow{CanonicalID: &canonical, Archived: true}))
	assert.Equal(t, "archived", recordStateLabel(backend.RecordRow{Archived: true}))
	assert.Equal(t, "active", recordStateLabel(backend.RecordRow{}))
}

func TestSplitPatterns(t *testing.T) {
	assert.Equal(t, []string{"*.json", "*.jsonl"}, splitPatterns(" *.json, ,*.jsonl "))
	assert.Equal(t, []string{"export-*.{json,jsonl}", "*.txt"}, splitPatterns("export-*.{json,jsonl},*.txt"))
	assert.Nil(t, splitPatterns(""))
}

func TestParseCaseFlag(t *testing.T) {
	assert.Equal(t, casetext.Reference{ID: "42"}, parseCaseFlag("42"))
	assert.Equal(t, casetext.Reference{ID: "42", Source: "Наша база знаний"}, parseCaseFlag(" 42 : Наша база знаний"))
}

func TestArgOrStdin(t *testing.T) {
	c := &cobra.Command{}
	c.SetIn(strings.NewReader("Тема: A\nВопрос: B\n\n"))

	got, err := argOrStdin(c, []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "Тема: A\nВопрос: B", got)

	got, err = argOrStdin(c, []string{"inline"})
	require.NoError(t, err)
	assert.Equal(t, "inline", got)
}

func TestWriteJSONKeepsMarkup(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]string{"a": "<b>&"}))
	assert.Contains(t, buf.String(), "<b>&")
}

func exportFixture() []exportedRecord {
	content := casetext.Encode("Печать чеков", "Принтер не печатает", "Проверьте бумагу")
	decoded := casetext.Decode(content)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []exportedRecord{{
		Record:  store.Record{ID: 3, Content: &content, CreatedAt: ts, UpdatedAt: ts},
		Decoded: &decoded,
	}}
}

func TestEncodeRecordsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeRecords(&buf, "json", exportFixture()))

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.EqualValues(t, 3, out[0]["id"])
	assert.Contains(t, out[0], "decoded")
}

func TestEncodeRecordsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeRecords(&buf, "YAML", exportFixture()))

	var out []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0]["id"])
	assert.Contains(t, buf.String(), "Печать чеков")
}

func TestEncodeRecordsUnknownFormat(t *testing.T) {
	assert.Error(t, encodeRecords(&bytes.Buffer{}, "csv", nil))
}

func TestPseudoTTYArgsForwardsFlags(t *testing.T) {
	argv := []string{"serve", "--config", "/etc/casedesk.yaml", "--backend", "rpc", "--session", "uid-1"}
	got := pseudoTTYArgs(argv)
	assert.Equal(t, append(append([]string{}, argv...), "--force-tui"), got)
	assert.Len(t, argv, 7, "input must not be modified")

	assert.Equal(t, []string{"review", "--force-tui"}, pseudoTTYArgs([]string{"review", "--force-tui"}))
	assert.Equal(t, []string{"review", "--force-tui=true"}, pseudoTTYArgs([]string{"review", "--force-tui=true"}))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'\''s $HOME'`, shellQuote("it's $HOME"))
}

func TestErrorFilterWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &errorFilterWriter{&buf}

	for _, line := range []string{
		"Starting casedesk server\n",
		"HTTP API start error: bind\n",
		"Failed to count records: locked\n",
		"read records: context canceled\n",
	} {
		n, err := w.Write([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, len(line), n)
	}
	assert.Equal(t, "HTTP API start error: bind\nFailed to count records: locked\n", buf.String())
}

func TestResolvePathRelativeToBase(t *testing.T) {
	assert.Equal(t, "/srv/app/data/casedesk.db", resolvePathRelativeToBase("/srv/app", "./data/casedesk.db"))
	assert.Equal(t, "/var/db/x.db", resolvePathRelativeToBase("/srv/app", "/var/db/x.db"))
}
