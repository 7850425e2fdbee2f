package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/casetext"
)

var (
	archivedOptions = []string{"Все", "Активные", "Архивные"}
	pageSizeOptions = []int{10, 20, 50, 100}
)

// recordsState holds the filters and paging of the records table.
type recordsState struct {
	search    string
	archived  int // index into archivedOptions
	dupesOnly bool
	pageSize  int
	pageIndex int
	rows      []backend.RecordRow
}

func newRecordsState() recordsState {
	return recordsState{archived: 1, pageSize: backend.DefaultPageSize}
}

// archivedFilter maps an archivedOptions index onto the backend filter.
func archivedFilter(idx int) *bool {
	switch idx {
	case 1:
		b := false
		return &b
	case 2:
		b := true
		return &b
	default:
		return nil
	}
}

func (s *recordsState) query() backend.ListQuery {
	q := backend.ListQuery{
		Archived:      archivedFilter(s.archived),
		WithDupesOnly: s.dupesOnly,
		Limit:         s.pageSize,
		Offset:        s.pageIndex * s.pageSize,
	}
	if search := strings.TrimSpace(s.search); search != "" {
		q.Search = &search
	}
	return q.Normalize()
}

// hasNext reports whether the last page came back full.
func (s *recordsState) hasNext() bool {
	return len(s.rows) >= s.pageSize && s.pageSize > 0
}

func (s *recordsState) next() bool {
	if !s.hasNext() {
		return false
	}
	s.pageIndex++
	return true
}

func (s *recordsState) prev() bool {
	if s.pageIndex == 0 {
		return false
	}
	s.pageIndex--
	return true
}

// rowAt returns the record shown at a table row (row 0 is the header).
func (s *recordsState) rowAt(row int) (backend.RecordRow, bool) {
	if row < 1 || row-1 >= len(s.rows) {
		return backend.RecordRow{}, false
	}
	return s.rows[row-1], true
}

// recordState is the short state label of a record.
func recordState(archived bool, canonicalID *int64) string {
	switch {
	case canonicalID != nil:
		return fmt.Sprintf("дубль #%d", *canonicalID)
	case archived:
		return "архив"
	default:
		return "активна"
	}
}

func (ui *UI) stateColor(archived bool, canonicalID *int64) tcell.Color {
	switch {
	case canonicalID != nil:
		return ui.theme.StateDuplicate
	case archived:
		return ui.theme.StateArchived
	default:
		return ui.theme.StateActive
	}
}

func (ui *UI) buildFilters() *tview.Form {
	form := tview.NewForm()
	form.SetHorizontal(true)
	form.SetBorder(true)
	form.SetTitle(" Фильтры ")
	form.SetTitleAlign(tview.AlignLeft)

	sizes := make([]string, len(pageSizeOptions))
	sizeIdx := 0
	for i, n := range pageSizeOptions {
		sizes[i] = strconv.Itoa(n)
		if n == ui.records.pageSize {
			sizeIdx = i
		}
	}

	form.AddInputField("Поиск", ui.records.search, 30, nil, func(text string) {
		ui.records.search = text
	})
	form.AddDropDown("Архив", archivedOptions, ui.records.archived, func(_ string, idx int) {
		ui.records.archived = idx
	})
	form.AddCheckbox("Только с дублями", ui.records.dupesOnly, func(checked bool) {
		ui.records.dupesOnly = checked
	})
	form.AddDropDown("На странице", sizes, sizeIdx, func(_ string, idx int) {
		if idx >= 0 && idx < len(pageSizeOptions) {
			ui.records.pageSize = pageSizeOptions[idx]
		}
	})
	form.AddButton("Найти", func() {
		ui.records.pageIndex = 0
		ui.app.SetFocus(ui.recordsTable)
		go ui.reloadRecords()
	})
	form.SetCancelFunc(func() {
		ui.app.SetFocus(ui.recordsTable)
	})
	return form
}

func (ui *UI) reloadRecords() {
	if err := ui.loadRecords(); err != nil {
		ui.logger.Printf("Failed to load records: %v", err)
	}
}

// loadRecords fetches the current page and renders it. It blocks; callers on
// the UI goroutine run it with go.
func (ui *UI) loadRecords() error {
	if !atomic.CompareAndSwapInt32(&ui.loading, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&ui.loading, 0)

	ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
	defer cancel()

	q := ui.records.query()
	rows, err := ui.opts.Backend.ListRecords(ctx, q)
	if err != nil {
		ui.setStatus("[%s]Ошибка загрузки: %v[-:-:-]", ui.theme.TagError, err)
		return err
	}
	ui.queue(func() {
		ui.records.rows = rows
		ui.renderRecords()
		ui.setStatusDirect("[%s]Страница %d, записей: %d[-:-:-]", ui.theme.TagSuccess, ui.records.pageIndex+1, len(rows))
	})
	return nil
}

// renderRecords redraws the table; call on the UI goroutine.
func (ui *UI) renderRecords() {
	t := ui.recordsTable
	t.Clear()
	headers := []string{"ID", "Тема", "Вопрос", "Состояние", "Дубли"}
	for col, h := range headers {
		t.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(ui.theme.TableHeader).
			SetBackgroundColor(ui.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	if len(ui.records.rows) == 0 {
		t.SetCell(1, 0, tview.NewTableCell("Нет записей").SetTextColor(ui.theme.TableRowMuted))
		ui.preview.SetText("")
		return
	}
	for i, r := range ui.records.rows {
		rec := casetext.DecodeNullable(r.Content)
		row := i + 1
		dupes := ""
		if r.HasDuplicates {
			dupes = strconv.Itoa(r.DuplicatesCount)
		}
		t.SetCell(row, 0, tview.NewTableCell(strconv.FormatInt(r.ID, 10)).SetTextColor(ui.theme.TableRowMuted))
		t.SetCell(row, 1, tview.NewTableCell(truncate(rec.Theme, 40)).SetTextColor(ui.theme.TableRow).SetExpansion(1))
		t.SetCell(row, 2, tview.NewTableCell(truncate(rec.Question, 60)).SetTextColor(ui.theme.TableRow).SetExpansion(2))
		t.SetCell(row, 3, tview.NewTableCell(recordState(r.Archived, r.CanonicalID)).SetTextColor(ui.stateColor(r.Archived, r.CanonicalID)))
		t.SetCell(row, 4, tview.NewTableCell(dupes).SetTextColor(ui.theme.StateDuplicate))
	}
	t.SetTitle(fmt.Sprintf(" Записи (стр. %d) ", ui.records.pageIndex+1))
	t.Select(1, 0)
}

func (ui *UI) showPreview(row int) {
	r, ok := ui.records.rowAt(row)
	if !ok {
		ui.preview.SetText("")
		return
	}
	ui.preview.SetText(formatRecord(ui.theme, r.ID, casetext.DecodeNullable(r.Content)))
	ui.preview.ScrollToBeginning()
}

func formatRecord(th Theme, id int64, rec casetext.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]#%d[-]\n\n", th.TagMuted, id)
	fmt.Fprintf(&b, "[%s::b]Тема:[-::-] %s\n\n", th.TagAccent, tview.Escape(rec.Theme))
	if rec.Question != "" {
		fmt.Fprintf(&b, "[%s::b]Вопрос:[-::-] %s\n\n", th.TagAccent, tview.Escape(rec.Question))
	}
	if rec.Answer != "" {
		fmt.Fprintf(&b, "[%s::b]Ответ:[-::-] %s\n", th.TagAccent, tview.Escape(rec.Answer))
	}
	return b.String()
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max <= 0 {
		return ""
	}
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
