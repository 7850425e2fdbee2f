package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/feedback"
)

const feedbackPlaceholder = "Проверил кейс 123456 из телеграма. Все хорошо, проблема решена."

// formatCaseList renders references as "123 (telegram), 456".
func formatCaseList(refs []casetext.Reference) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Source != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", r.ID, r.Source))
		} else {
			parts = append(parts, r.ID)
		}
	}
	return strings.Join(parts, ", ")
}

// parseCaseList is the inverse of formatCaseList. Entries without a source
// get defaultSource; blank entries are dropped.
func parseCaseList(text, defaultSource string) []casetext.Reference {
	var refs []casetext.Reference
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref := casetext.Reference{ID: part, Source: defaultSource}
		if open := strings.Index(part, "("); open >= 0 && strings.HasSuffix(part, ")") {
			ref.ID = strings.TrimSpace(part[:open])
			if src := strings.TrimSpace(part[open+1 : len(part)-1]); src != "" {
				ref.Source = src
			}
		}
		if ref.ID != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// showFeedbackForm opens the feedback dialog for message. The case list is
// pre-filled from the references found in the message, with initial first.
func (ui *UI) showFeedbackForm(message string, initial *casetext.Reference) {
	if ui.opts.Feedback == nil {
		ui.setStatusDirect("[%s]Отзывы не настроены: укажите webhooks.chat_url[-:-:-]", ui.theme.TagWarning)
		return
	}
	draft := ui.opts.Feedback.Draft(message, initial)
	source := -1

	form := tview.NewForm()
	form.SetBorder(true)
	form.SetTitle(" Создать отзыв ")
	form.SetTitleAlign(tview.AlignLeft)

	if message != "" {
		msgView := tview.NewTextView().SetText(truncate(message, 200))
		msgView.SetLabel("Сообщение")
		msgView.SetSize(2, 0)
		form.AddFormItem(msgView)
	}
	form.AddInputField("Кейсы", formatCaseList(draft.Cases), 0, nil, nil)
	form.AddDropDown("Источник", feedback.SourceOptions, source, func(_ string, idx int) { source = idx })

	summary := tview.NewTextArea().
		SetLabel("Итоговый вывод").
		SetPlaceholder(feedbackPlaceholder).
		SetSize(5, 0)
	form.AddFormItem(summary)

	submit := func() {
		sessionID := ui.sessionID()
		if sessionID == "" {
			form.SetTitle(" Создать отзыв: " + chatSignInRequired + " ")
			return
		}
		defaultSource := ""
		if source >= 0 && source < len(feedback.SourceOptions) {
			defaultSource = feedback.SourceOptions[source]
		}
		fb := draft
		if field, ok := form.GetFormItemByLabel("Кейсы").(*tview.InputField); ok {
			fb.Cases = parseCaseList(field.GetText(), defaultSource)
		}
		fb.Summary = strings.TrimSpace(summary.GetText())

		form.SetTitle(" Создать отзыв: отправка... ")
		go func() {
			ctx, cancel := context.WithTimeout(ui.ctx, 2*time.Minute)
			defer cancel()
			res := ui.opts.Feedback.Submit(ctx, sessionID, fb)
			ui.queue(func() {
				if !res.OK() {
					form.SetTitle(fmt.Sprintf(" Создать отзыв: [%s]%s[-] ", ui.theme.TagError, tview.Escape(res.Error)))
					return
				}
				ui.popModalRoot()
				ui.setStatusDirect("[%s]Отзыв отправлен[-:-:-]", ui.theme.TagSuccess)
			})
		}()
	}

	form.AddButton("Отправить отзыв", submit)
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
