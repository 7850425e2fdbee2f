// Package ui is the terminal dashboard: the records table, the record modal
// with its similar neighbors, the chat page and the feedback form.
package ui

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/auth"
	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/feedback"
	"github.com/casedesk/casedesk/internal/review"
)

// Options wires the dashboard to its services. Chat, Feedback and Auth are
// optional; the matching pages report that they are not configured.
type Options struct {
	Backend  backend.Backend
	Review   *review.Service
	Chat     feedback.Sender
	Feedback *feedback.Composer
	Auth     *auth.Client
	// SessionID is used as chat session when no Auth client is configured.
	SessionID string
	Logger    *log.Logger
}

// UI represents the terminal user interface
type UI struct {
	app  *tview.Application
	opts Options

	logger *log.Logger

	// Layout components
	layout       *tview.Flex
	root         *tview.Flex
	appTitle     *tview.TextView
	filters      *tview.Form
	recordsTable *tview.Table
	preview      *tview.TextView
	statusBar    *tview.TextView

	// State
	records  recordsState
	loading  int32
	chat     *ChatPage
	deferred *DeferredPage

	// Theme state
	theme         Theme
	themeName     string
	themeApplying int32

	// Runtime
	running   int32
	lastFocus tview.Primitive

	// Modal roots stacked over the main layout; nested record modals push here.
	modalStack        []tview.Primitive
	inputCaptureStack []func(*tcell.EventKey) *tcell.EventKey
	currentRoot       tview.Primitive

	// Global input capture for main UI (restored after modals)
	globalInputCapture func(*tcell.EventKey) *tcell.EventKey

	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI creates a new terminal user interface
func NewUI(ctx context.Context, opts Options) *UI {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}
	uiCtx, cancel := context.WithCancel(ctx)

	ui := &UI{
		app:     tview.NewApplication(),
		opts:    opts,
		logger:  logger,
		ctx:     uiCtx,
		cancel:  cancel,
		records: newRecordsState(),
	}
	ui.themeName, ui.theme = themeByName("dark")

	ui.setupLayout()
	ui.setupKeybindings()
	ui.applyTheme()
	return ui
}

// Start starts the TUI application
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Println("Starting TUI application")

	go func() {
		if err := ui.loadRecords(); err != nil {
			ui.logger.Printf("Failed to load records: %v", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
		}
		ui.cancel()
		ui.app.Stop()
	}()

	ui.startRedrawHeartbeat()

	atomic.StoreInt32(&ui.running, 1)
	err := ui.app.Run()
	atomic.StoreInt32(&ui.running, 0)
	ui.logger.Printf("app.Run() returned with error: %v", err)
	return err
}

// Stop stops the TUI application
func (ui *UI) Stop() {
	ui.logger.Println("Stopping TUI application")
	atomic.StoreInt32(&ui.running, 0)
	ui.cancel()
	ui.app.Stop()
}

// queue runs fn on the UI goroutine, or inline when the app is not running
// (unit tests).
func (ui *UI) queue(fn func()) {
	if atomic.LoadInt32(&ui.running) == 1 {
		ui.app.QueueUpdateDraw(fn)
		return
	}
	fn()
}

// sessionID is the signed-in user's UID, or the configured fallback.
func (ui *UI) sessionID() string {
	if ui.opts.Auth != nil {
		if s := ui.opts.Auth.Current(); s != nil {
			return s.UID
		}
		return ""
	}
	return ui.opts.SessionID
}

// reviewer attributes review actions to the current session.
func (ui *UI) reviewer() *review.Service {
	if id := ui.sessionID(); id != "" {
		return ui.opts.Review.WithActor(id)
	}
	return ui.opts.Review
}

// setupLayout creates the main layout
func (ui *UI) setupLayout() {
	ui.appTitle = tview.NewTextView().SetDynamicColors(true)
	ui.appTitle.SetText(" [::b]casedesk[::-]  записи базы знаний")

	ui.filters = ui.buildFilters()

	ui.recordsTable = tview.NewTable()
	ui.recordsTable.SetTitle(" Записи ")
	ui.recordsTable.SetBorder(true)
	ui.recordsTable.SetTitleAlign(tview.AlignLeft)
	ui.recordsTable.SetSelectable(true, false)
	ui.recordsTable.SetFixed(1, 0)
	ui.recordsTable.SetSelectedFunc(func(row, col int) {
		if r, ok := ui.records.rowAt(row); ok {
			ui.openRecord(r.ID, 1)
		}
	})
	ui.recordsTable.SetSelectionChangedFunc(func(row, col int) {
		ui.showPreview(row)
	})

	ui.preview = tview.NewTextView()
	ui.preview.SetTitle(" Просмотр ")
	ui.preview.SetBorder(true)
	ui.preview.SetTitleAlign(tview.AlignLeft)
	ui.preview.SetDynamicColors(true)
	ui.preview.SetWordWrap(true)

	ui.statusBar = tview.NewTextView()
	ui.statusBar.SetDynamicColors(true)

	main := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(ui.recordsTable, 0, 3, true).
		AddItem(ui.preview, 0, 2, false)

	ui.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.appTitle, 1, 0, false).
		AddItem(ui.filters, 5, 0, false).
		AddItem(main, 0, 1, true)

	ui.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.layout, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.app.SetRoot(ui.root, true)
	ui.currentRoot = ui.root
	ui.app.SetFocus(ui.recordsTable)
	ui.setStatusDirect("[%s]Готово[-:-:-]", ui.theme.TagAccent)
}

// setupKeybindings sets up global keybindings
func (ui *UI) setupKeybindings() {
	handler := func(event *tcell.EventKey) *tcell.EventKey {
		// While a form field is focused let it have every key.
		if ui.isDialogActive() {
			return event
		}
		switch event.Key() {
		case tcell.KeyCtrlC:
			ui.Stop()
			return nil
		case tcell.KeyEsc:
			ui.setStatusDirect("[%s]Готово[-:-:-]", ui.theme.TagAccent)
			return nil
		case tcell.KeyTab:
			ui.cycleFocus()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				ui.Stop()
				return nil
			case 'r', 'R':
				ui.setStatusDirect("[%s]Обновление...[-:-:-]", ui.theme.TagAccent)
				go ui.reloadRecords()
				return nil
			case 'n':
				if ui.records.next() {
					go ui.reloadRecords()
				} else {
					ui.setStatusDirect("[%s]Это последняя страница[-:-:-]", ui.theme.TagMuted)
				}
				return nil
			case 'p':
				if ui.records.prev() {
					go ui.reloadRecords()
				} else {
					ui.setStatusDirect("[%s]Это первая страница[-:-:-]", ui.theme.TagMuted)
				}
				return nil
			case '/':
				ui.app.SetFocus(ui.filters)
				return nil
			case 'c':
				ui.showChat()
				return nil
			case 'f':
				ui.showFeedbackForm("", nil)
				return nil
			case 'D':
				ui.showDeferred()
				return nil
			case 'L':
				ui.showLogin()
				return nil
			case 't':
				ui.cycleTheme()
				return nil
			case '?', 'h':
				ui.showHelp()
				return nil
			}
		}
		return event
	}
	ui.globalInputCapture = handler
	ui.app.SetInputCapture(handler)
}

// isDialogActive returns true when a form widget has focus, to bypass global shortcuts.
func (ui *UI) isDialogActive() bool {
	if len(ui.modalStack) > 0 {
		return true
	}
	focused := ui.app.GetFocus()
	if focused == nil {
		return false
	}
	switch focused.(type) {
	case *tview.Form,
		*tview.Modal,
		*tview.InputField,
		*tview.TextArea,
		*tview.DropDown,
		*tview.Checkbox,
		*tview.Button:
		return true
	default:
		return false
	}
}

// cycleFocus cycles focus between the filters and the records table
func (ui *UI) cycleFocus() {
	if ui.app.GetFocus() == ui.recordsTable {
		ui.app.SetFocus(ui.filters)
		return
	}
	ui.app.SetFocus(ui.recordsTable)
}

func (ui *UI) startRedrawHeartbeat() {
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ui.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt32(&ui.running) == 1 {
					ui.app.QueueUpdate(func() {})
				}
			}
		}
	}()
}

// pushModalRoot mounts p over the current root and relaxes the global input
// capture so Tab/Enter work inside forms.
func (ui *UI) pushModalRoot(p tview.Primitive) {
	prev := ui.currentRoot
	if prev == nil {
		prev = ui.root
	}
	if len(ui.modalStack) == 0 {
		ui.lastFocus = ui.app.GetFocus()
	}
	ui.modalStack = append(ui.modalStack, prev)
	ui.inputCaptureStack = append(ui.inputCaptureStack, ui.app.GetInputCapture())
	ui.app.SetInputCapture(nil)
	ui.app.SetRoot(p, true)
	ui.app.SetFocus(p)
	ui.currentRoot = p
}

// popModalRoot restores the previous root and its input capture.
func (ui *UI) popModalRoot() {
	if len(ui.modalStack) == 0 {
		ui.restoreMainLayout()
		return
	}
	last := len(ui.modalStack) - 1
	prev := ui.modalStack[last]
	ui.modalStack = ui.modalStack[:last]
	var prevIC func(*tcell.EventKey) *tcell.EventKey
	if n := len(ui.inputCaptureStack); n > 0 {
		prevIC = ui.inputCaptureStack[n-1]
		ui.inputCaptureStack = ui.inputCaptureStack[:n-1]
	}

	ui.app.SetRoot(prev, true)
	ui.currentRoot = prev
	ui.app.SetInputCapture(prevIC)
	if prev == ui.root {
		target := ui.lastFocus
		if target == nil {
			target = ui.recordsTable
		}
		ui.app.SetFocus(target)
		return
	}
	ui.app.SetFocus(prev)
}

// restoreMainLayout drops every modal and returns to the records table.
func (ui *UI) restoreMainLayout() {
	ui.modalStack = nil
	ui.inputCaptureStack = nil
	ui.app.SetRoot(ui.root, true)
	ui.currentRoot = ui.root
	ui.app.SetInputCapture(ui.globalInputCapture)
	ui.app.SetFocus(ui.recordsTable)
}

// showModal shows a message box closed by any key.
func (ui *UI) showModal(title, text string) {
	modal := tview.NewModal()
	modal.SetText(text)
	modal.SetTitle(fmt.Sprintf(" %s ", title))
	modal.AddButtons([]string{"Закрыть"})
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.FocusBorder)
	modal.SetButtonBackgroundColor(ui.theme.SelectionBg)
	modal.SetButtonTextColor(ui.theme.SelectionFg)
	modal.SetDoneFunc(func(int, string) { ui.popModalRoot() })
	ui.pushModalRoot(modal)
}

func (ui *UI) showHelp() {
	ui.showModal("Справка", helpText)
}

const helpText = `Enter  открыть запись
n / p  следующая / предыдущая страница
/      фильтры,  Tab  переключить фокус
r      обновить
c      чат,  f  отзыв,  D  отложенные кейсы
L      вход / выход
t      сменить тему,  q  выход

В карточке записи:
Ctrl-S сохранить,  Ctrl-O  OK,  Ctrl-X  NOT OK
Enter на соседе  открыть,  d  пометить дублем
Esc    закрыть`

// setStatus updates the status bar from any goroutine
func (ui *UI) setStatus(format string, args ...interface{}) {
	text := ui.statusText(fmt.Sprintf(format, args...))
	ui.queue(func() { ui.statusBar.SetText(text) })
}

// setStatusDirect updates the status bar; call only on the UI goroutine.
func (ui *UI) setStatusDirect(format string, args ...interface{}) {
	ui.statusBar.SetText(ui.statusText(fmt.Sprintf(format, args...)))
}

func (ui *UI) statusText(message string) string {
	who := "гость"
	if id := ui.sessionID(); id != "" {
		who = id
		if ui.opts.Auth != nil {
			if s := ui.opts.Auth.Current(); s != nil && s.Email != "" {
				who = s.Email
			}
		}
	}
	return fmt.Sprintf("[%s]%s[-] [%s]|[-] %s [%s]| %s | ?:справка[-]",
		ui.theme.TagMuted, time.Now().Format("15:04:05"),
		ui.theme.TagTextPrimary, message,
		ui.theme.TagMuted, who)
}
