package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
)

// View renders the TUI (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch {
	case !m.ready:
		body = m.spinner.View() + " Restoring session..."
	case m.location == route.Login:
		body = m.renderAuth("Log in", "Logging in...", bindings{m.keys.ToSignup, m.keys.ForceQuit})
	case m.location == route.Signup:
		body = m.renderAuth("Create an account", "Creating your account...", bindings{m.keys.Back, m.keys.ForceQuit})
	case m.location == route.Landing:
		body = m.renderDashboard()
	default:
		body = m.styles.Muted.Render("Nothing to show at " + m.location)
	}

	if toasts := m.renderToasts(); toasts != "" {
		return body + "\n\n" + toasts
	}
	return body
}

func (m Model) renderAuth(title, pending string, keys bindings) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("✈ Hangar · " + title))
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " " + pending)
	case m.form != nil:
		b.WriteString(m.form.View())
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.form != nil {
		b.WriteString(m.styles.Border.Render(m.form.View()))
		b.WriteString("\n")
		b.WriteString(m.help.View(bindings{m.keys.Back, m.keys.ForceQuit}))
		return b.String()
	}

	switch m.board() {
	case inventory.ViewNone:
		b.WriteString(m.styles.Muted.Render("Your account is not assigned to a team."))
		b.WriteString("\n")
		b.WriteString(m.help.View(bindings{m.keys.Logout, m.keys.Quit}))
		return b.String()
	case inventory.ViewParts:
		if cards := m.renderScore(); cards != "" {
			b.WriteString(cards)
			b.WriteString("\n")
		}
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.renderPager())
	b.WriteString("\n")

	keys := bindings{m.keys.Prev, m.keys.Next, m.keys.Create}
	if m.board() == inventory.ViewParts {
		keys = append(keys, m.keys.Delete)
	}
	keys = append(keys, m.keys.Reload, m.keys.Logout, m.keys.Quit)
	if m.busy {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m Model) renderHeader() string {
	title := "Parts"
	if m.board() == inventory.ViewPlanes {
		title = "Planes"
	}

	who := ""
	if u := m.state.User; u != nil {
		who = u.DisplayName()
		if u.TeamName != "" {
			who += " (" + u.TeamName + ")"
		}
	}
	return m.styles.Header.Render("✈ Hangar · "+title) + " " + m.styles.Muted.Render(who)
}

func (m Model) renderPager() string {
	line := fmt.Sprintf("Page %d of %d · %d total", m.page, m.total, m.count)
	if m.total > 1 {
		line = m.pager.View() + "  " + line
	}
	return m.styles.Muted.Render(line)
}

func (m Model) renderScore() string {
	if m.score == nil {
		return ""
	}

	var cards []string
	for _, pt := range inventory.PlaneTypes() {
		s, ok := m.score.Scores[pt]
		if !ok {
			continue
		}
		card := lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().Bold(true).Render(string(pt)),
			m.styles.Success.Render(fmt.Sprintf("%d", s.Used))+m.styles.Muted.Render(" used"),
			fmt.Sprintf("%d", s.Unused)+m.styles.Muted.Render(" in stock"),
		)
		cards = append(cards, m.styles.Card.Render(card))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m Model) renderToasts() string {
	if len(m.toasts) == 0 {
		return ""
	}

	lines := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		lines = append(lines, m.renderToast(t.note))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderToast(n notify.Notification) string {
	title := n.Title
	style := m.styles.Toast
	switch n.Variant {
	case notify.VariantDestructive:
		title = m.styles.Error.Render(title)
		style = style.BorderForeground(lipgloss.Color("196"))
	case notify.VariantSuccess:
		title = m.styles.Success.Render(title)
		style = style.BorderForeground(lipgloss.Color("46"))
	}
	if n.Description != "" {
		title += " " + n.Description
	}
	return style.Render(title)
}
