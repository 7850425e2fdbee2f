package ui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/feedback"
	"github.com/casedesk/casedesk/internal/review"
)

// RecordModal shows one record with its editable fields and its similar
// neighbors. Opening a neighbor stacks another modal one level deeper.
type RecordModal struct {
	ui   *UI
	view *review.CaseView

	form      *tview.Form
	neighbors *tview.Table
	info      *tview.TextView
	layout    *tview.Flex

	edited casetext.Record
}

// openRecord loads id in the background and mounts its modal.
func (ui *UI) openRecord(id int64, depth int) {
	ui.setStatusDirect("[%s]Загрузка записи #%d...[-:-:-]", ui.theme.TagWarning, id)
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()
		view, err := ui.opts.Review.Open(ctx, id, depth)
		if err != nil {
			ui.setStatus("[%s]Ошибка: %v[-:-:-]", ui.theme.TagError, err)
			return
		}
		ui.queue(func() { newRecordModal(ui, view).Show() })
	}()
}

// openNeighbor stacks the neighbor's modal over the current one.
func (m *RecordModal) openNeighbor(neighborID int64) {
	ui := m.ui
	depth := m.view.Depth
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()
		view, err := ui.opts.Review.OpenNeighbor(ctx, depth, neighborID)
		if err != nil {
			ui.queue(func() { m.setInfo(ui.theme.TagError, err.Error()) })
			return
		}
		ui.queue(func() { newRecordModal(ui, view).Show() })
	}()
}

func newRecordModal(ui *UI, view *review.CaseView) *RecordModal {
	m := &RecordModal{ui: ui, view: view, edited: view.Record.Editable()}

	m.form = tview.NewForm()
	m.form.SetBorder(true)
	m.form.SetTitle(fmt.Sprintf(" Запись #%d (уровень %d) ", view.ID, view.Depth))
	m.form.SetTitleAlign(tview.AlignLeft)
	m.form.AddTextArea("Тема", m.edited.Theme, 0, 2, 0, func(text string) { m.edited.Theme = text })
	m.form.AddTextArea("Вопрос", view.Record.Question, 0, 4, 0, func(text string) { m.edited.Question = text })
	m.form.AddTextArea("Ответ", view.Record.Answer, 0, 8, 0, func(text string) { m.edited.Answer = text })
	m.form.AddButton("Сохранить", m.save)
	m.form.AddButton("Отмена", m.reset)
	m.form.AddButton("OK", m.approve)
	m.form.AddButton("NOT OK", m.reject)
	m.form.AddButton("Отзыв", m.openFeedback)
	m.form.AddButton("Закрыть", ui.popModalRoot)
	m.form.SetCancelFunc(ui.popModalRoot)

	m.neighbors = tview.NewTable()
	m.neighbors.SetBorder(true)
	m.neighbors.SetTitle(" Похожие записи (Enter: открыть, d: дубль) ")
	m.neighbors.SetTitleAlign(tview.AlignLeft)
	m.neighbors.SetSelectable(true, false)
	m.neighbors.SetFixed(1, 0)
	m.neighbors.SetSelectedFunc(func(row, col int) {
		if n, ok := m.neighborAt(row); ok {
			m.openNeighbor(n.NeighborID)
		}
	})
	m.renderNeighbors(view.Neighbors)

	m.info = tview.NewTextView().SetDynamicColors(true)
	m.info.SetText(m.headline())

	m.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(m.info, 1, 0, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexColumn).
			AddItem(m.form, 0, 3, true).
			AddItem(m.neighbors, 0, 2, false), 0, 1, true)
	m.layout.SetInputCapture(m.handleInput)
	m.applyTheme()
	return m
}

// Show mounts the modal.
func (m *RecordModal) Show() {
	m.ui.pushModalRoot(m.layout)
	m.ui.app.SetFocus(m.form)
}

func (m *RecordModal) handleInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEsc:
		m.ui.popModalRoot()
		return nil
	case tcell.KeyCtrlS:
		m.save()
		return nil
	case tcell.KeyCtrlO:
		m.approve()
		return nil
	case tcell.KeyCtrlX:
		m.reject()
		return nil
	case tcell.KeyCtrlN:
		if m.ui.app.GetFocus() == m.neighbors {
			m.ui.app.SetFocus(m.form)
		} else {
			m.ui.app.SetFocus(m.neighbors)
		}
		return nil
	case tcell.KeyRune:
		if m.ui.app.GetFocus() == m.neighbors && event.Rune() == 'd' {
			row, _ := m.neighbors.GetSelection()
			if n, ok := m.neighborAt(row); ok {
				m.markDuplicate(n.NeighborID)
			}
			return nil
		}
	}
	return event
}

func (m *RecordModal) headline() string {
	th := m.ui.theme
	state := "нет данных"
	if mem := m.view.Member; mem != nil {
		state = recordState(mem.Archived, mem.CanonicalID)
	}
	return fmt.Sprintf(" [%s]#%d[-] [%s]%s[-]  соседей: %d  [%s]Ctrl-S сохранить, Ctrl-O OK, Ctrl-X NOT OK, Ctrl-N соседи, Esc закрыть[-]",
		th.TagAccent, m.view.ID, th.TagWarning, state, len(m.view.Neighbors), th.TagMuted)
}

func (m *RecordModal) setInfo(tag, msg string) {
	m.info.SetText(fmt.Sprintf(" [%s]%s[-]", tag, tview.Escape(msg)))
}

func (m *RecordModal) neighborAt(row int) (review.NeighborView, bool) {
	if row < 1 || row-1 >= len(m.view.Neighbors) {
		return review.NeighborView{}, false
	}
	return m.view.Neighbors[row-1], true
}

func (m *RecordModal) renderNeighbors(neighbors []review.NeighborView) {
	th := m.ui.theme
	t := m.neighbors
	t.Clear()
	for col, h := range []string{"ID", "Сходство", "Тема", "Состояние"} {
		t.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(th.TableHeader).
			SetBackgroundColor(th.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	if len(neighbors) == 0 {
		t.SetCell(1, 0, tview.NewTableCell("Похожих записей нет").SetTextColor(th.TableRowMuted))
		return
	}
	for i, n := range neighbors {
		row := i + 1
		t.SetCell(row, 0, tview.NewTableCell(strconv.FormatInt(n.NeighborID, 10)).SetTextColor(th.TableRowMuted))
		t.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%.2f", n.Sim)).SetTextColor(th.TableRow))
		t.SetCell(row, 2, tview.NewTableCell(truncate(n.Record.Theme, 40)).SetTextColor(th.TableRow).SetExpansion(1))
		t.SetCell(row, 3, tview.NewTableCell(recordState(n.NeighborArchived, n.NeighborCanonicalID)).
			SetTextColor(m.ui.stateColor(n.NeighborArchived, n.NeighborCanonicalID)))
	}
}

// reset restores the fields to the loaded record.
func (m *RecordModal) reset() {
	m.edited = m.view.Record.Editable()
	m.setField("Тема", m.edited.Theme)
	m.setField("Вопрос", m.view.Record.Question)
	m.setField("Ответ", m.view.Record.Answer)
	m.info.SetText(m.headline())
}

func (m *RecordModal) setField(label, text string) {
	if ta, ok := m.form.GetFormItemByLabel(label).(*tview.TextArea); ok {
		ta.SetText(text, false)
	}
}

// run performs a review action off the UI goroutine and reports its message.
func (m *RecordModal) run(action func(ctx context.Context, svc *review.Service) (string, error), after func()) {
	ui := m.ui
	svc := ui.reviewer()
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, 30*time.Second)
		defer cancel()
		msg, err := action(ctx, svc)
		ui.queue(func() {
			if err != nil {
				m.setInfo(ui.theme.TagError, "Ошибка: "+err.Error())
				return
			}
			m.setInfo(ui.theme.TagSuccess, msg)
			if after != nil {
				after()
			}
		})
		if err == nil {
			ui.reloadRecords()
		}
	}()
}

func (m *RecordModal) save() {
	rec := m.edited
	m.run(func(ctx context.Context, svc *review.Service) (string, error) {
		return svc.Save(ctx, m.view.ID, rec)
	}, func() { m.view.Record = rec })
}

func (m *RecordModal) approve() {
	m.run(func(ctx context.Context, svc *review.Service) (string, error) {
		return svc.Approve(ctx, m.view.ID)
	}, nil)
}

func (m *RecordModal) reject() {
	m.run(func(ctx context.Context, svc *review.Service) (string, error) {
		return svc.Reject(ctx, m.view.ID)
	}, nil)
}

func (m *RecordModal) markDuplicate(duplicateID int64) {
	var refreshed []review.NeighborView
	m.run(func(ctx context.Context, svc *review.Service) (string, error) {
		msg, neighbors, err := svc.MarkDuplicate(ctx, m.view.ID, duplicateID)
		if err != nil && msg != "" {
			// marked, but the neighbor reload failed
			return msg, nil
		}
		refreshed = neighbors
		return msg, err
	}, func() {
		if refreshed != nil {
			m.view.Neighbors = refreshed
			m.renderNeighbors(refreshed)
		}
	})
}

func (m *RecordModal) openFeedback() {
	m.ui.showFeedbackForm("", &casetext.Reference{
		ID:     strconv.FormatInt(m.view.ID, 10),
		Source: feedback.SourceOptions[0],
	})
}

func (m *RecordModal) applyTheme() {
	th := m.ui.theme
	m.form.SetBackgroundColor(th.Surface)
	m.form.SetBorderColor(th.FocusBorder)
	m.form.SetFieldBackgroundColor(th.SelectionBg)
	m.form.SetFieldTextColor(th.TextPrimary)
	m.form.SetLabelColor(th.TextMuted)
	m.form.SetButtonBackgroundColor(th.SelectionBg)
	m.form.SetButtonTextColor(th.SelectionFg)
	m.neighbors.SetBackgroundColor(th.Surface)
	m.neighbors.SetBorderColor(th.Border)
	m.neighbors.SetSelectedStyle(tcell.StyleDefault.Background(th.SelectionBg).Foreground(th.SelectionFg))
	m.info.SetBackgroundColor(th.Surface)
	m.info.SetTextColor(th.TextPrimary)
}
