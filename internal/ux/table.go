package ux

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Table is a plain header + rows listing
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Text implements Texter
func (t Table) Text(noColor bool) string {
	if len(t.Rows) == 0 {
		return render(mutedStyle, noColor, "No entries.")
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(t.Headers...).
		Rows(t.Rows...)

	if noColor {
		plain := lipgloss.NewStyle().Padding(0, 1)
		tbl = tbl.StyleFunc(func(int, int) lipgloss.Style { return plain })
	} else {
		tbl = tbl.
			BorderStyle(mutedStyle).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
	}
	return tbl.String()
}

func render(style lipgloss.Style, noColor bool, s string) string {
	if noColor {
		return s
	}
	return style.Render(s)
}

// Check is one line of a diagnostic report
type Check struct {
	Name   string `json:"name" yaml:"name"`
	Status Status `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Status is the outcome of a Check
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Report is an ordered list of checks
type Report struct {
	Checks []Check `json:"checks" yaml:"checks"`
}

// Add appends a check
func (r *Report) Add(name string, status Status, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Detail: detail})
}

// Failed reports whether any check failed
func (r Report) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// Text implements Texter
func (r Report) Text(noColor bool) string {
	var b strings.Builder
	for _, c := range r.Checks {
		var mark string
		switch c.Status {
		case StatusOK:
			mark = render(okStyle, noColor, "✓")
		case StatusWarn:
			mark = render(warnStyle, noColor, "!")
		default:
			mark = render(failStyle, noColor, "✗")
		}
		b.WriteString(mark + " " + c.Name)
		if c.Detail != "" {
			b.WriteString(render(mutedStyle, noColor, ": "+c.Detail))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
