package ui

import (
	"strings"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
)

// Theme defines UI color tokens used across widgets and text tags.
type Theme struct {
	// Widget colors
	Bg          tcell.Color
	Surface     tcell.Color
	Border      tcell.Color
	FocusBorder tcell.Color
	SelectionBg tcell.Color
	SelectionFg tcell.Color
	TextPrimary tcell.Color
	TextMuted   tcell.Color
	Accent      tcell.Color

	// Table colors
	TableHeader   tcell.Color
	TableHeaderBg tcell.Color
	TableRow      tcell.Color
	TableRowMuted tcell.Color

	// Record states (widgets)
	StateActive    tcell.Color
	StateArchived  tcell.Color
	StateDuplicate tcell.Color

	// Text tag colors (for tview dynamic color markup)
	TagTextPrimary string
	TagMuted       string
	TagAccent      string
	TagSuccess     string
	TagWarning     string
	TagError       string
	TagUser        string
	TagBot         string
}

func hex(s string) tcell.Color { return tcell.GetColor(s) }

func themeDark() Theme {
	return Theme{
		Bg:          hex("#0e1116"),
		Surface:     hex("#12161e"),
		Border:      hex("#2b3240"),
		FocusBorder: hex("#4aa8ff"),
		SelectionBg: hex("#2b3240"),
		SelectionFg: hex("#cfd8e3"),
		TextPrimary: hex("#e6edf3"),
		TextMuted:   hex("#8a939f"),
		Accent:      hex("#2dd4bf"),

		TableHeader:   hex("#eab308"),
		TableHeaderBg: hex("#1a2332"),
		TableRow:      hex("#e6edf3"),
		TableRowMuted: hex("#94a3b8"),

		StateActive:    hex("#22c55e"),
		StateArchived:  hex("#8a939f"),
		StateDuplicate: hex("#f59e0b"),

		TagTextPrimary: "#e6edf3",
		TagMuted:       "#8a939f",
		TagAccent:      "#2dd4bf",
		TagSuccess:     "#22c55e",
		TagWarning:     "#f59e0b",
		TagError:       "#ef4444",
		TagUser:        "#4aa8ff",
		TagBot:         "#2dd4bf",
	}
}

func themeLight() Theme {
	return Theme{
		Bg:          hex("#f6f8fa"),
		Surface:     hex("#ffffff"),
		Border:      hex("#d0d7de"),
		FocusBorder: hex("#1f6feb"),
		SelectionBg: hex("#e2e8f0"),
		SelectionFg: hex("#111827"),
		TextPrimary: hex("#111827"),
		TextMuted:   hex("#6b7280"),
		Accent:      hex("#0f766e"),

		TableHeader:   hex("#1f2937"),
		TableHeaderBg: hex("#e5e7eb"),
		TableRow:      hex("#111827"),
		TableRowMuted: hex("#6b7280"),

		StateActive:    hex("#15803d"),
		StateArchived:  hex("#6b7280"),
		StateDuplicate: hex("#b45309"),

		TagTextPrimary: "#111827",
		TagMuted:       "#6b7280",
		TagAccent:      "#0f766e",
		TagSuccess:     "#15803d",
		TagWarning:     "#b45309",
		TagError:       "#b91c1c",
		TagUser:        "#1f6feb",
		TagBot:         "#0f766e",
	}
}

func themeNeon() Theme {
	return Theme{
		Bg:          hex("#0f0b14"),
		Surface:     hex("#14111a"),
		Border:      hex("#45385a"),
		FocusBorder: hex("#ff79c6"),
		SelectionBg: hex("#2a1f3d"),
		SelectionFg: hex("#f8f5ff"),
		TextPrimary: hex("#f8f5ff"),
		TextMuted:   hex("#b8a8c9"),
		Accent:      hex("#ff6ac1"),

		TableHeader:   hex("#ff79c6"),
		TableHeaderBg: hex("#301d49"),
		TableRow:      hex("#f8f5ff"),
		TableRowMuted: hex("#b8a8c9"),

		StateActive:    hex("#00d084"),
		StateArchived:  hex("#b8a8c9"),
		StateDuplicate: hex("#ffd166"),

		TagTextPrimary: "#f8f5ff",
		TagMuted:       "#b8a8c9",
		TagAccent:      "#ff6ac1",
		TagSuccess:     "#00d084",
		TagWarning:     "#ffd166",
		TagError:       "#ff5555",
		TagUser:        "#0a84ff",
		TagBot:         "#ff6ac1",
	}
}

func themeHighContrast() Theme {
	return Theme{
		Bg:          tcell.ColorBlack,
		Surface:     tcell.ColorBlack,
		Border:      tcell.ColorWhite,
		FocusBorder: tcell.ColorYellow,
		SelectionBg: tcell.ColorWhite,
		SelectionFg: tcell.ColorBlack,
		TextPrimary: tcell.ColorWhite,
		TextMuted:   tcell.ColorSilver,
		Accent:      tcell.ColorAqua,

		TableHeader:   tcell.ColorYellow,
		TableHeaderBg: tcell.ColorBlack,
		TableRow:      tcell.ColorWhite,
		TableRowMuted: tcell.ColorSilver,

		StateActive:    tcell.ColorLime,
		StateArchived:  tcell.ColorSilver,
		StateDuplicate: tcell.ColorYellow,

		TagTextPrimary: "white",
		TagMuted:       "silver",
		TagAccent:      "aqua",
		TagSuccess:     "lime",
		TagWarning:     "yellow",
		TagError:       "red",
		TagUser:        "aqua",
		TagBot:         "lime",
	}
}

var themeOrder = []string{"dark", "light", "neon", "high-contrast"}

func themeByName(name string) (string, Theme) {
	switch name {
	case "light":
		return name, themeLight()
	case "neon":
		return name, themeNeon()
	case "high-contrast":
		return name, themeHighContrast()
	default:
		return "dark", themeDark()
	}
}

func nextThemeName(current string) string {
	for i, n := range themeOrder {
		if n == current {
			return themeOrder[(i+1)%len(themeOrder)]
		}
	}
	return themeOrder[0]
}

// cycleTheme moves to the next theme in sequence
func (ui *UI) cycleTheme() {
	ui.setTheme(nextThemeName(ui.themeName))
}

// setTheme applies a named theme
func (ui *UI) setTheme(name string) {
	// Prevent re-entrant theme application that can stall UI updates
	if !atomic.CompareAndSwapInt32(&ui.themeApplying, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&ui.themeApplying, 0)

	ui.themeName, ui.theme = themeByName(name)
	ui.applyTheme()
	ui.setStatusDirect("[%s]Тема: %s[-:-:-]", ui.theme.TagAccent, strings.ReplaceAll(ui.themeName, "-", " "))
}

// applyTheme pushes theme colors to widgets
func (ui *UI) applyTheme() {
	ui.recordsTable.SetSelectedStyle(tcell.StyleDefault.Background(ui.theme.SelectionBg).Foreground(ui.theme.SelectionFg))
	ui.recordsTable.SetBorderColor(ui.theme.Border)
	ui.recordsTable.SetBackgroundColor(ui.theme.Surface)

	ui.filters.SetBackgroundColor(ui.theme.Surface)
	ui.filters.SetBorderColor(ui.theme.Border)
	ui.filters.SetFieldBackgroundColor(ui.theme.SelectionBg)
	ui.filters.SetFieldTextColor(ui.theme.TextPrimary)
	ui.filters.SetLabelColor(ui.theme.TextMuted)
	ui.filters.SetButtonBackgroundColor(ui.theme.SelectionBg)
	ui.filters.SetButtonTextColor(ui.theme.SelectionFg)

	ui.preview.SetTextColor(ui.theme.TextPrimary)
	ui.preview.SetBorderColor(ui.theme.Border)
	ui.preview.SetBackgroundColor(ui.theme.Surface)

	ui.statusBar.SetTextColor(ui.theme.TextPrimary)
	ui.statusBar.SetBackgroundColor(ui.theme.Surface)

	if ui.chat != nil {
		ui.chat.applyTheme()
		ui.chat.render()
	}
	ui.renderRecords()
}
