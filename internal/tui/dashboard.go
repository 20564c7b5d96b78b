package tui

import (
	"context"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/route"
)

const timeLayout = "2006-01-02 15:04"

func (m Model) newTable() table.Model {
	var cols []table.Column
	switch m.board() {
	case inventory.ViewPlanes:
		cols = []table.Column{
			{Title: "ID", Width: 6},
			{Title: "Plane", Width: 11},
			{Title: "Parts", Width: 7},
			{Title: "Created", Width: 17},
		}
	default:
		cols = []table.Column{
			{Title: "ID", Width: 6},
			{Title: "Part", Width: 12},
			{Title: "Plane", Width: 11},
			{Title: "Used", Width: 6},
			{Title: "Created", Width: 17},
		}
	}
	return table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(inventory.PageSize+1),
	)
}

// fetch reloads the current page and, for part teams, the score
func (m Model) fetch() tea.Cmd {
	if m.board() == inventory.ViewParts {
		return tea.Batch(m.fetchPage(), m.fetchScore())
	}
	return m.fetchPage()
}

func (m Model) fetchPage() tea.Cmd {
	page := m.page
	switch m.board() {
	case inventory.ViewParts:
		return func() tea.Msg { return m.loadParts(page) }
	case inventory.ViewPlanes:
		return func() tea.Msg { return m.loadPlanes(page) }
	}
	return nil
}

func (m Model) fetchScore() tea.Cmd {
	return func() tea.Msg { return m.loadScore() }
}

func (m Model) loadParts(page int) tea.Msg {
	var data *inventory.Page[inventory.Part]
	err := m.sess.Authorized(m.ctx, func(ctx context.Context) error {
		var err error
		data, err = m.inv.ListParts(ctx, page)
		return err
	})
	return partsMsg{page: page, data: data, err: err}
}

func (m Model) loadPlanes(page int) tea.Msg {
	var data *inventory.Page[inventory.Plane]
	err := m.sess.Authorized(m.ctx, func(ctx context.Context) error {
		var err error
		data, err = m.inv.ListPlanes(ctx, page)
		return err
	})
	return planesMsg{page: page, data: data, err: err}
}

func (m Model) loadScore() tea.Msg {
	var score *inventory.Score
	err := m.sess.Authorized(m.ctx, func(ctx context.Context) error {
		var err error
		score, err = m.inv.PartScore(ctx)
		return err
	})
	return scoreMsg{score: score, err: err}
}

// paged records pagination for a received page. It returns a command when
// the page no longer exists, e.g. after deleting the last part on it.
func (m *Model) paged(page, count, results int) tea.Cmd {
	m.page = page
	m.count = count
	m.total = inventory.TotalPages(count)
	m.pager.SetTotalPages(count)
	m.pager.Page = m.page - 1

	if results == 0 && m.page > m.total {
		m.page = m.total
		return m.fetchPage()
	}
	return nil
}

func (m Model) gotParts(msg partsMsg) (tea.Model, tea.Cmd) {
	if m.location != route.Landing {
		return m, nil
	}
	if msg.err != nil {
		m.report(msg.err, "Could not load parts.")
		return m, nil
	}

	m.parts = msg.data.Results
	rows := make([]table.Row, 0, len(m.parts))
	for _, p := range m.parts {
		used := "no"
		if p.UsedInPlane {
			used = "yes"
		}
		rows = append(rows, table.Row{
			strconv.Itoa(p.ID), p.PartType, string(p.PlaneType), used, p.CreatedAt.Local().Format(timeLayout),
		})
	}
	m.table.SetRows(rows)
	cmd := m.paged(msg.page, msg.data.Count, len(rows))
	return m, cmd
}

func (m Model) gotPlanes(msg planesMsg) (tea.Model, tea.Cmd) {
	if m.location != route.Landing {
		return m, nil
	}
	if msg.err != nil {
		m.report(msg.err, "Could not load planes.")
		return m, nil
	}

	m.planes = msg.data.Results
	rows := make([]table.Row, 0, len(m.planes))
	for _, p := range m.planes {
		rows = append(rows, table.Row{
			strconv.Itoa(p.ID), string(p.PlaneType), strconv.Itoa(len(p.PartsUsed)), p.CreatedAt.Local().Format(timeLayout),
		})
	}
	m.table.SetRows(rows)
	cmd := m.paged(msg.page, msg.data.Count, len(rows))
	return m, cmd
}
