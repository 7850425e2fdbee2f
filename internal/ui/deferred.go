package ui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/review"
)

// DeferredPage lists pending cases and edits them in place.
type DeferredPage struct {
	ui    *UI
	items []review.DeferredItem

	table  *tview.Table
	detail *tview.TextView
	layout *tview.Flex
}

func newDeferredPage(ui *UI) *DeferredPage {
	p := &DeferredPage{ui: ui}

	p.table = tview.NewTable()
	p.table.SetBorder(true)
	p.table.SetTitle(" Отложенные кейсы (Enter: редактировать, r: обновить, Esc: закрыть) ")
	p.table.SetTitleAlign(tview.AlignLeft)
	p.table.SetSelectable(true, false)
	p.table.SetFixed(1, 0)
	p.table.SetSelectionChangedFunc(func(row, _ int) {
		if it, ok := p.itemAt(row); ok {
			p.detail.SetText(formatRecord(ui.theme, it.ID, it.Record))
		}
	})
	p.table.SetSelectedFunc(func(row, _ int) {
		if it, ok := p.itemAt(row); ok {
			p.edit(it)
		}
	})

	p.detail = tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	p.detail.SetBorder(true)
	p.detail.SetTitle(" Кейс ")

	p.layout = tview.NewFlex().
		AddItem(p.table, 0, 1, true).
		AddItem(p.detail, 0, 1, false)
	p.layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEsc:
			ui.popModalRoot()
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == 'r':
			go p.load()
			return nil
		}
		return event
	})

	th := ui.theme
	p.table.SetBackgroundColor(th.Surface)
	p.table.SetBorderColor(th.Border)
	p.table.SetSelectedStyle(tcell.StyleDefault.Background(th.SelectionBg).Foreground(th.SelectionFg))
	p.detail.SetBackgroundColor(th.Surface)
	p.detail.SetBorderColor(th.Border)
	p.detail.SetTextColor(th.TextPrimary)
	return p
}

// showDeferred mounts the pending cases page and refreshes it.
func (ui *UI) showDeferred() {
	if ui.deferred == nil {
		ui.deferred = newDeferredPage(ui)
	}
	ui.pushModalRoot(ui.deferred.layout)
	ui.app.SetFocus(ui.deferred.table)
	go ui.deferred.load()
}

func (p *DeferredPage) itemAt(row int) (review.DeferredItem, bool) {
	if row < 1 || row-1 >= len(p.items) {
		return review.DeferredItem{}, false
	}
	return p.items[row-1], true
}

func (p *DeferredPage) load() {
	ui := p.ui
	ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
	defer cancel()
	items, err := ui.opts.Review.Deferred(ctx)
	if err != nil {
		ui.setStatus("[%s]Не удалось загрузить отложенные кейсы: %v[-:-:-]", ui.theme.TagError, err)
		return
	}
	ui.queue(func() {
		p.items = items
		p.render()
	})
}

func (p *DeferredPage) render() {
	th := p.ui.theme
	t := p.table
	t.Clear()
	for col, h := range []string{"ID", "Тема", "Вопрос"} {
		t.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(th.TableHeader).
			SetBackgroundColor(th.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	if len(p.items) == 0 {
		t.SetCell(1, 0, tview.NewTableCell("Отложенных кейсов нет").SetTextColor(th.TableRowMuted))
		p.detail.SetText("")
		return
	}
	for i, it := range p.items {
		row := i + 1
		t.SetCell(row, 0, tview.NewTableCell(strconv.FormatInt(it.ID, 10)).SetTextColor(th.TableRowMuted))
		t.SetCell(row, 1, tview.NewTableCell(truncate(it.Record.Theme, 40)).SetTextColor(th.TableRow).SetExpansion(1))
		t.SetCell(row, 2, tview.NewTableCell(truncate(it.Record.Question, 60)).SetTextColor(th.TableRow).SetExpansion(2))
	}
	t.Select(1, 0)
}

// edit opens a form over the page for one pending case.
func (p *DeferredPage) edit(it review.DeferredItem) {
	ui := p.ui
	rec := it.Record.Editable()

	form := tview.NewForm()
	form.SetBorder(true)
	form.SetTitle(fmt.Sprintf(" Отложенный кейс #%d ", it.ID))
	form.SetTitleAlign(tview.AlignLeft)
	form.AddTextArea("Тема", rec.Theme, 0, 2, 0, func(text string) { rec.Theme = text })
	form.AddTextArea("Вопрос", rec.Question, 0, 4, 0, func(text string) { rec.Question = text })
	form.AddTextArea("Ответ", rec.Answer, 0, 8, 0, func(text string) { rec.Answer = text })
	form.AddButton("Сохранить", func() {
		p.save(form, it.ID, rec)
	})
	form.AddButton("Отмена", ui.popModalRoot)
	form.SetCancelFunc(ui.popModalRoot)

	form.SetBackgroundColor(ui.theme.Surface)
	form.SetBorderColor(ui.theme.FocusBorder)
	form.SetFieldBackgroundColor(ui.theme.SelectionBg)
	form.SetFieldTextColor(ui.theme.TextPrimary)
	form.SetLabelColor(ui.theme.TextMuted)
	form.SetButtonBackgroundColor(ui.theme.SelectionBg)
	form.SetButtonTextColor(ui.theme.SelectionFg)

	ui.pushModalRoot(form)
}

func (p *DeferredPage) save(form *tview.Form, id int64, rec casetext.Record) {
	ui := p.ui
	svc := ui.reviewer()
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()
		err := svc.SaveDeferred(ctx, id, rec)
		ui.queue(func() {
			if err != nil {
				form.SetTitle(fmt.Sprintf(" Отложенный кейс #%d: [%s]%s[-] ", id, ui.theme.TagError, tview.Escape(err.Error())))
				return
			}
			for i := range p.items {
				if p.items[i].ID == id {
					p.items[i].Record = casetext.Decode(rec.Encode())
				}
			}
			ui.popModalRoot()
			p.render()
			ui.setStatusDirect("[%s]Кейс #%d сохранён[-:-:-]", ui.theme.TagSuccess, id)
		})
	}()
}
