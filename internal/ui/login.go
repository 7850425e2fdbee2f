package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/casedesk/casedesk/internal/auth"
)

// showLogin signs the user out when a session exists, otherwise asks for
// credentials.
func (ui *UI) showLogin() {
	if ui.opts.Auth == nil {
		ui.setStatusDirect("[%s]Вход не настроен: укажите auth.api_key[-:-:-]", ui.theme.TagWarning)
		return
	}
	if s := ui.opts.Auth.Current(); s != nil {
		ui.opts.Auth.SignOut()
		ui.setStatusDirect("[%s]Вы вышли (%s)[-:-:-]", ui.theme.TagMuted, s.Email)
		return
	}

	var email, password string
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetTitle(" Вход / Регистрация ")
	form.SetTitleAlign(tview.AlignLeft)
	form.AddInputField("Email", "", 40, nil, func(text string) { email = text })
	form.AddPasswordField("Пароль", "", 40, '*', func(text string) { password = text })

	run := func(op func(ctx context.Context, email, password string) (*auth.Session, error)) {
		form.SetTitle(" Вход: подождите... ")
		go func() {
			ctx, cancel := context.WithTimeout(ui.ctx, 30*time.Second)
			defer cancel()
			s, err := op(ctx, email, password)
			ui.queue(func() {
				if err != nil {
					form.SetTitle(fmt.Sprintf(" Вход: [%s]%s[-] ", ui.theme.TagError, tview.Escape(err.Error())))
					return
				}
				ui.popModalRoot()
				ui.setStatusDirect("[%s]Вы вошли как %s[-:-:-]", ui.theme.TagSuccess, s.Email)
				if ui.chat != nil {
					ui.chat.render()
				}
			})
		}()
	}

	form.AddButton("Войти", func() { run(ui.opts.Auth.SignIn) })
	form.AddButton("Регистрация", func() { run(ui.opts.Auth.SignUp) })
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
