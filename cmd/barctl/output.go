package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

// printer writes user-facing output, styled when stdout is a terminal
type printer struct {
	styled bool

	title   lipgloss.Style
	label   lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newPrinter(noColor bool) *printer {
	return &printer{
		styled:  !noColor && term.IsTerminal(int(os.Stdout.Fd())),
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("62")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failure: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) Title(format string, args ...any) {
	fmt.Println(p.render(p.title, fmt.Sprintf(format, args...)))
}

func (p *printer) Field(name string, value any) {
	fmt.Printf("%s %v\n", p.render(p.label, fmt.Sprintf("%-12s", name+":")), value)
}

func (p *printer) Success(format string, args ...any) {
	fmt.Println(p.render(p.success, fmt.Sprintf(format, args...)))
}

func (p *printer) Warn(format string, args ...any) {
	fmt.Println(p.render(p.warn, fmt.Sprintf(format, args...)))
}

func (p *printer) Item(s string) {
	fmt.Println("  " + s)
}

func (p *printer) Muted(format string, args ...any) {
	fmt.Println(p.render(p.muted, fmt.Sprintf(format, args...)))
}

// Fail prints err with its kind to stderr
func (p *printer) Fail(err error) {
	prefix := fmt.Sprintf("Error (%s):", apperr.KindOf(err))
	if p.styled && term.IsTerminal(int(os.Stderr.Fd())) {
		prefix = p.failure.Render(prefix)
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", prefix, err)
}
