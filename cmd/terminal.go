package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
)

var (
	noTUI    bool
	forceTUI bool
)

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}
	if err := screen.Init(); err != nil {
		return false
	}
	screen.Fini()
	return true
}

// terminalInfo is the one-line summary serve and review print when the
// dashboard cannot start.
func terminalInfo() string {
	term := os.Getenv("TERM")
	if term == "" {
		term = "<not set>"
	}
	tty := "no"
	if isTerminal() {
		tty = "yes"
	}
	return fmt.Sprintf("TERM=%s, TTY=%s", term, tty)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	if fi, err := os.Stdout.Stat(); err == nil {
		return fi.Mode()&os.ModeCharDevice != 0
	}
	return false
}

// getWorkingDir returns the current working directory, or the executable's
// directory when that fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, strings.TrimPrefix(p, "./"))
}

// needsPseudoTTY reports whether /dev/tty cannot be opened, i.e. the
// dashboard has to be re-run under script(1).
func needsPseudoTTY() bool {
	if f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		f.Close()
		return false
	}
	return true
}

// pseudoTTYArgs is the argument list for the re-run: the original command
// line with --force-tui added, so the child does not try to re-exec again.
func pseudoTTYArgs(argv []string) []string {
	out := append([]string(nil), argv...)
	for _, a := range argv {
		if a == "--force-tui" || strings.HasPrefix(a, "--force-tui=") {
			return out
		}
	}
	return append(out, "--force-tui")
}

// shellQuote wraps s in single quotes for sh -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runWithPseudoTTY re-runs the current command line under script(1), which
// provides the pseudo-TTY tcell needs. All flags are forwarded.
func runWithPseudoTTY() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	parts := []string{shellQuote(executable)}
	for _, a := range pseudoTTYArgs(os.Args[1:]) {
		parts = append(parts, shellQuote(a))
	}

	script := exec.Command("script", "-qec", strings.Join(parts, " "), "/dev/null")
	script.Stdin = os.Stdin
	script.Stdout = os.Stdout
	script.Stderr = os.Stderr
	script.Env = os.Environ()
	return script.Run()
}

// determineTUIMode decides up front whether serve will show the dashboard,
// so logging can be routed before anything starts.
func determineTUIMode() bool {
	if noTUI {
		return false
	}
	if forceTUI || canInitializeTUI() {
		return true
	}
	// Without /dev/tty serve re-runs itself under script(1) with the dashboard.
	return needsPseudoTTY()
}
