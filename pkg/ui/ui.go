// Package ui is the terminal surface of the setup wizard: styled output,
// prompts, spinners and download progress.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// UI writes user-facing output.
type UI struct {
	out         io.Writer
	interactive bool

	bold   lipgloss.Style
	yellow lipgloss.Style
	red    lipgloss.Style
	green  lipgloss.Style
}

// New creates a UI writing to out. Spinners, progress bars and rendered
// markdown are only used when out is a terminal.
func New(out io.Writer) *UI {
	r := lipgloss.NewRenderer(out)
	return &UI{
		out:         out,
		interactive: IsTerminal(out),
		bold:        r.NewStyle().Bold(true),
		yellow:      r.NewStyle().Foreground(lipgloss.Color("3")),
		red:         r.NewStyle().Foreground(lipgloss.Color("1")),
		green:       r.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

// IsTerminal reports whether w is a terminal and NO_COLOR is unset.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer returns the underlying writer.
func (u *UI) Writer() io.Writer {
	return u.out
}

// Interactive reports whether the UI renders to a terminal.
func (u *UI) Interactive() bool {
	return u.interactive
}

// Println writes a line.
func (u *UI) Println(a ...any) {
	fmt.Fprintln(u.out, a...)
}

// Printf writes formatted text.
func (u *UI) Printf(format string, a ...any) {
	fmt.Fprintf(u.out, format, a...)
}

// Bold renders s in bold.
func (u *UI) Bold(s string) string {
	return u.bold.Render(s)
}

// Yellow renders s in yellow.
func (u *UI) Yellow(s string) string {
	return u.yellow.Render(s)
}

// Warn writes a yellow line.
func (u *UI) Warn(msg string) {
	u.Println(u.yellow.Render(msg))
}

// Error writes a red line.
func (u *UI) Error(msg string) {
	u.Println(u.red.Render(msg))
}

// Success writes a green line.
func (u *UI) Success(msg string) {
	u.Println(u.green.Render(msg))
}
