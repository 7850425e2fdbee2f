package ui

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/review"
	"github.com/casedesk/casedesk/internal/store"
	"github.com/casedesk/casedesk/internal/webhook"
)

type stubChat struct {
	mu   sync.Mutex
	reqs []webhook.Request
	res  *webhook.Result
}

func (s *stubChat) Send(_ context.Context, req webhook.Request) *webhook.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.res
}

func newTestUI(t *testing.T, opts Options) (*UI, *store.Store) {
	t.Helper()
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := log.New(io.Discard, "", 0)
	opts.Backend = st
	opts.Review = review.NewService(st, nil, logger)
	opts.Logger = logger
	ui := NewUI(context.Background(), opts)
	t.Cleanup(ui.cancel)
	return ui, st
}

func TestNewUILoadsRecords(t *testing.T) {
	ui, st := newTestUI(t, Options{})
	ctx := context.Background()
	_, err := st.CreateRecord(ctx, "Тема: Оплата; Вопрос: Не проходит карта; Ответ: Перезапустить терминал")
	require.NoError(t, err)
	_, err = st.CreateRecord(ctx, "Тема: Печать; Вопрос: Принтер молчит;")
	require.NoError(t, err)

	require.NoError(t, ui.loadRecords())
	require.Len(t, ui.records.rows, 2)

	themes := []string{
		ui.recordsTable.GetCell(1, 1).Text,
		ui.recordsTable.GetCell(2, 1).Text,
	}
	assert.ElementsMatch(t, []string{"Оплата", "Печать"}, themes)
	assert.Contains(t, ui.statusBar.GetText(true), "записей: 2")
}

func TestRenderRecordsEmpty(t *testing.T) {
	ui, _ := newTestUI(t, Options{})
	require.NoError(t, ui.loadRecords())
	assert.Equal(t, "Нет записей", ui.recordsTable.GetCell(1, 0).Text)
}

func TestRecordsStatePaging(t *testing.T) {
	s := newRecordsState()
	assert.Equal(t, 20, s.pageSize)
	assert.False(t, s.prev())
	assert.False(t, s.next(), "no rows means no next page")

	s.pageSize = 2
	s.rows = make([]backend.RecordRow, 2)
	assert.True(t, s.next())
	assert.Equal(t, 1, s.pageIndex)
	assert.Equal(t, 2, s.query().Offset)
	assert.True(t, s.prev())
	assert.Equal(t, 0, s.query().Offset)

	s.search = "  касса "
	q := s.query()
	require.NotNil(t, q.Search)
	assert.Equal(t, "касса", *q.Search)
	require.NotNil(t, q.Archived)
	assert.False(t, *q.Archived)

	_, ok := s.rowAt(0)
	assert.False(t, ok, "header row")
	_, ok = s.rowAt(3)
	assert.False(t, ok)
}

func TestArchivedFilter(t *testing.T) {
	assert.Nil(t, archivedFilter(0))
	require.NotNil(t, archivedFilter(1))
	assert.False(t, *archivedFilter(1))
	require.NotNil(t, archivedFilter(2))
	assert.True(t, *archivedFilter(2))
}

func TestRecordState(t *testing.T) {
	canonical := int64(42)
	assert.Equal(t, "активна", recordState(false, nil))
	assert.Equal(t, "архив", recordState(true, nil))
	assert.Equal(t, "дубль #42", recordState(true, &canonical))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "короткий", truncate("короткий", 20))
	assert.Equal(t, "длинн...", truncate("длинная строка", 8))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestFormatRecordEscapesMarkup(t *testing.T) {
	_, th := themeByName("dark")
	out := formatRecord(th, 7, casetext.Record{Theme: "[red]x", Question: "q"})
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, tview.Escape("[red]x"))
	assert.Contains(t, out, "Вопрос:")
	assert.NotContains(t, out, "Ответ:")
}

func TestRecordModalNeighbors(t *testing.T) {
	ui, st := newTestUI(t, Options{})
	ctx := context.Background()
	a, err := st.CreateRecord(ctx, "Тема: Оплата картой; Вопрос: Не проходит оплата; Ответ: один")
	require.NoError(t, err)
	b, err := st.CreateRecord(ctx, "Тема: Оплата картой; Вопрос: Не проходит оплата; Ответ: два")
	require.NoError(t, err)

	view, err := ui.opts.Review.Open(ctx, a, 1)
	require.NoError(t, err)
	m := newRecordModal(ui, view)

	n, ok := m.neighborAt(1)
	require.True(t, ok)
	assert.Equal(t, b, n.NeighborID)
	_, ok = m.neighborAt(0)
	assert.False(t, ok)
	assert.Equal(t, "активна", m.neighbors.GetCell(1, 3).Text)
	assert.Contains(t, m.headline(), "соседей: 1")

	m.edited.Theme = "changed"
	m.reset()
	assert.Equal(t, "Оплата картой", m.edited.Theme)
}

func TestThemeCycle(t *testing.T) {
	ui, _ := newTestUI(t, Options{})
	assert.Equal(t, "dark", ui.themeName)
	for _, want := range []string{"light", "neon", "high-contrast", "dark"} {
		ui.cycleTheme()
		assert.Equal(t, want, ui.themeName)
	}
	name, _ := themeByName("unknown")
	assert.Equal(t, "dark", name)
}

func TestCaseListRoundTrip(t *testing.T) {
	refs := []casetext.Reference{{ID: "123", Source: "telegram"}, {ID: "456"}}
	text := formatCaseList(refs)
	assert.Equal(t, "123 (telegram), 456", text)
	assert.Equal(t, refs, parseCaseList(text, ""))

	got := parseCaseList(" 1 , , 2 (сайт), () ", "Наша база знаний")
	assert.Equal(t, []casetext.Reference{
		{ID: "1", Source: "Наша база знаний"},
		{ID: "2", Source: "сайт"},
	}, got)
	assert.Empty(t, parseCaseList("", "x"))
}

func TestBotMessage(t *testing.T) {
	ok := botMessage(&webhook.Result{Response: "привет", Logs: []string{"[1/6] a"}})
	assert.False(t, ok.IsError)
	assert.Equal(t, "привет", ok.Content)
	assert.Len(t, ok.Logs, 1)

	failed := botMessage(&webhook.Result{Error: "сломалось", Logs: []string{"x"}})
	assert.True(t, failed.IsError)
	assert.Equal(t, "Ошибка: сломалось", failed.Content)

	assert.Equal(t, chatUnknownError, botMessage(&webhook.Result{}).Content)
	assert.Equal(t, chatUnknownError, botMessage(nil).Content)
}

func TestRenderTranscriptLogsCollapsed(t *testing.T) {
	_, th := themeByName("dark")
	msgs := []chatMessage{
		{Role: "user", Content: "вопрос"},
		{Role: "bot", Content: "ответ", Logs: []string{"[1/6] шаг", "[2/6] шаг"}},
	}
	collapsed := renderTranscript(th, msgs, false)
	assert.Contains(t, collapsed, "вопрос")
	assert.Contains(t, collapsed, "Технические детали (2, Ctrl-L)")
	assert.NotContains(t, collapsed, "[1/6] шаг")

	expanded := renderTranscript(th, msgs, true)
	assert.Contains(t, expanded, tview.Escape("[1/6] шаг"))
	assert.Equal(t, "вопрос", lastUserMessage(msgs))
	assert.Empty(t, renderLogs(th, nil, true))
}

func TestChatRequiresSession(t *testing.T) {
	chat := &stubChat{res: &webhook.Result{Response: "ok"}}
	ui, _ := newTestUI(t, Options{Chat: chat})
	p := newChatPage(ui)

	assert.Contains(t, p.transcript.GetText(true), chatSignInRequired)
	p.send("привет")
	assert.Empty(t, p.messages)
	assert.Empty(t, chat.reqs)
}

func TestChatSendForwardsToggles(t *testing.T) {
	chat := &stubChat{res: &webhook.Result{Response: "готово", Logs: []string{"l"}}}
	ui, _ := newTestUI(t, Options{Chat: chat, SessionID: "uid-1"})
	p := newChatPage(ui)
	p.bz = true

	p.send("  как дела  ")
	assert.Eventually(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return len(chat.reqs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	chat.mu.Lock()
	req := chat.reqs[0]
	chat.mu.Unlock()
	assert.Equal(t, "как дела", req.Message)
	assert.Equal(t, "uid-1", req.SessionID)
	assert.True(t, req.BZ)
	assert.False(t, req.Site)

	assert.Eventually(t, func() bool {
		return strings.Contains(p.transcript.GetText(true), "готово")
	}, 2*time.Second, 10*time.Millisecond)
}
