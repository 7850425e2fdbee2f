package ui

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/auth"
	"github.com/casedesk/casedesk/internal/webhook"
)

const (
	chatTitle           = " ИИ Антон "
	chatSignInRequired  = "Пожалуйста, войдите, чтобы начать чат."
	chatUnknownError    = "Произошла неизвестная ошибка."
	chatNotConfigured   = "Чат не настроен: укажите webhooks.chat_url."
	chatTechDetailsNote = "Технические детали"
)

// chatMessage is one transcript entry.
type chatMessage struct {
	Role      string // "user" or "bot"
	Content   string
	IsError   bool
	Logs      []string
	Timestamp time.Time
}

// botMessage turns a webhook result into a transcript entry.
func botMessage(res *webhook.Result) chatMessage {
	msg := chatMessage{Role: "bot", Timestamp: time.Now()}
	switch {
	case res == nil:
		msg.Content = chatUnknownError
		msg.IsError = true
	case res.Response != "":
		msg.Content = res.Response
		msg.Logs = res.Logs
	case res.Error != "":
		msg.Content = "Ошибка: " + res.Error
		msg.IsError = true
		msg.Logs = res.Logs
	default:
		msg.Content = chatUnknownError
		msg.IsError = true
	}
	return msg
}

// lastUserMessage returns the latest message the user sent.
func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// renderTranscript formats the conversation as tview markup.
func renderTranscript(th Theme, msgs []chatMessage, showLogs bool) string {
	var b strings.Builder
	for _, m := range msgs {
		ts := m.Timestamp.Format("15:04")
		switch m.Role {
		case "user":
			fmt.Fprintf(&b, "[%s]%s Вы:[-]\n%s\n\n", th.TagUser, ts, tview.Escape(m.Content))
		default:
			fmt.Fprintf(&b, "[%s]%s ИИ Антон:[-]\n", th.TagBot, ts)
			if m.IsError {
				fmt.Fprintf(&b, "[%s]%s[-]\n", th.TagError, tview.Escape(m.Content))
			} else {
				fmt.Fprintf(&b, "%s\n", tview.Escape(m.Content))
			}
			b.WriteString(renderLogs(th, m.Logs, showLogs))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderLogs renders the collapsible technical details of a reply.
func renderLogs(th Theme, logs []string, visible bool) string {
	if len(logs) == 0 {
		return ""
	}
	if !visible {
		return fmt.Sprintf("[%s]▸ %s (%d, Ctrl-L)[-]\n", th.TagMuted, chatTechDetailsNote, len(logs))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]▾ %s[-]\n", th.TagMuted, chatTechDetailsNote)
	for _, l := range logs {
		fmt.Fprintf(&b, "[%s]  %s[-]\n", th.TagMuted, tview.Escape(l))
	}
	return b.String()
}

// ChatPage talks to the chat webhook on behalf of the signed-in user.
type ChatPage struct {
	ui *UI

	messages []chatMessage
	pending  int32
	showLogs bool

	site     bool
	bz       bool
	telegram bool

	transcript *tview.TextView
	options    *tview.Form
	input      *tview.InputField
	layout     *tview.Flex
}

func newChatPage(ui *UI) *ChatPage {
	p := &ChatPage{ui: ui}

	p.transcript = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	p.transcript.SetBorder(true).SetTitle(chatTitle).SetTitleAlign(tview.AlignLeft)

	p.options = tview.NewForm()
	p.options.SetHorizontal(true)
	p.options.AddCheckbox("Сайт", false, func(checked bool) { p.site = checked })
	p.options.AddCheckbox("БЗ", false, func(checked bool) { p.bz = checked })
	p.options.AddCheckbox("Telegram", false, func(checked bool) { p.telegram = checked })

	p.input = tview.NewInputField().
		SetLabel("Сообщение: ").
		SetFieldWidth(0)
	p.input.SetInputCapture(p.handleInput)

	p.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.options, 3, 0, false).
		AddItem(p.transcript, 0, 1, false).
		AddItem(p.input, 1, 0, true)
	p.layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			ui.popModalRoot()
			return nil
		case tcell.KeyCtrlL:
			p.toggleLogs()
			return nil
		case tcell.KeyCtrlF:
			ui.showFeedbackForm(lastUserMessage(p.messages), nil)
			return nil
		case tcell.KeyTab:
			p.cycleFocus()
			return nil
		}
		return event
	})

	if ui.opts.Auth != nil {
		ui.opts.Auth.OnChange(func(s *auth.Session) {
			if s == nil {
				ui.queue(p.clear)
			}
		})
	}

	p.applyTheme()
	p.render()
	return p
}

// showChat mounts the chat page, creating it on first use.
func (ui *UI) showChat() {
	if ui.chat == nil {
		ui.chat = newChatPage(ui)
	}
	ui.pushModalRoot(ui.chat.layout)
	ui.app.SetFocus(ui.chat.input)
}

func (p *ChatPage) handleInput(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEnter {
		p.send(p.input.GetText())
		return nil
	}
	return event
}

func (p *ChatPage) cycleFocus() {
	app := p.ui.app
	switch app.GetFocus() {
	case p.input:
		app.SetFocus(p.transcript)
	case p.transcript:
		app.SetFocus(p.options)
	default:
		app.SetFocus(p.input)
	}
}

// send appends the user message and forwards it in the background.
func (p *ChatPage) send(text string) {
	ui := p.ui
	sessionID := ui.sessionID()
	if sessionID == "" {
		p.setTitleNote(chatSignInRequired)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" || atomic.LoadInt32(&p.pending) > 0 {
		return
	}
	if ui.opts.Chat == nil {
		p.setTitleNote(chatNotConfigured)
		return
	}

	p.messages = append(p.messages, chatMessage{Role: "user", Content: text, Timestamp: time.Now()})
	p.input.SetText("")
	p.render()

	req := webhook.Request{
		Message:   text,
		SessionID: sessionID,
		Site:      p.site,
		BZ:        p.bz,
		Telegram:  p.telegram,
	}
	atomic.AddInt32(&p.pending, 1)
	ui.setStatusDirect("[%s]ИИ Антон думает...[-:-:-]", ui.theme.TagWarning)

	go func() {
		res := ui.opts.Chat.Send(ui.ctx, req)
		atomic.AddInt32(&p.pending, -1)
		ui.queue(func() {
			p.messages = append(p.messages, botMessage(res))
			p.render()
			if res.OK() {
				ui.setStatusDirect("[%s]Ответ получен[-:-:-]", ui.theme.TagSuccess)
			} else {
				ui.setStatusDirect("[%s]Ошибка чата[-:-:-]", ui.theme.TagError)
			}
		})
	}()
}

func (p *ChatPage) toggleLogs() {
	p.showLogs = !p.showLogs
	p.render()
}

// clear drops the conversation, e.g. on sign-out.
func (p *ChatPage) clear() {
	p.messages = nil
	p.render()
}

func (p *ChatPage) setTitleNote(note string) {
	p.transcript.SetTitle(fmt.Sprintf("%s[%s]%s[-] ", chatTitle, p.ui.theme.TagWarning, note))
}

func (p *ChatPage) render() {
	if p.ui.sessionID() == "" {
		p.transcript.SetTitle(chatTitle)
		p.transcript.SetText(fmt.Sprintf("[%s]%s[-]", p.ui.theme.TagMuted, chatSignInRequired))
		return
	}
	p.transcript.SetTitle(chatTitle)
	p.transcript.SetText(renderTranscript(p.ui.theme, p.messages, p.showLogs))
	p.transcript.ScrollToEnd()
}

func (p *ChatPage) applyTheme() {
	th := p.ui.theme
	p.transcript.SetBackgroundColor(th.Surface)
	p.transcript.SetBorderColor(th.Border)
	p.transcript.SetTextColor(th.TextPrimary)
	p.options.SetBackgroundColor(th.Surface)
	p.options.SetFieldBackgroundColor(th.SelectionBg)
	p.options.SetFieldTextColor(th.TextPrimary)
	p.options.SetLabelColor(th.TextMuted)
	p.input.SetBackgroundColor(th.Surface)
	p.input.SetFieldBackgroundColor(th.SelectionBg)
	p.input.SetFieldTextColor(th.TextPrimary)
	p.input.SetLabelColor(th.Accent)
}
