package ux

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/notify"
)

const timeLayout = "2006-01-02 15:04"

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func pageFooter(page, total, count int) string {
	return fmt.Sprintf("Page %d of %d (%d total)", page, total, count)
}

// PartsView is one page of the team's parts
type PartsView struct {
	Page       int              `json:"page" yaml:"page"`
	TotalPages int              `json:"total_pages" yaml:"total_pages"`
	Count      int              `json:"count" yaml:"count"`
	Parts      []inventory.Part `json:"parts" yaml:"parts"`
}

// NewPartsView builds a view of page number n
func NewPartsView(n int, p *inventory.Page[inventory.Part]) PartsView {
	return PartsView{Page: n, TotalPages: p.TotalPages(), Count: p.Count, Parts: p.Results}
}

// Text implements Texter
func (v PartsView) Text(noColor bool) string {
	t := Table{Headers: []string{"ID", "Part", "Plane", "Used", "Created"}}
	for _, p := range v.Parts {
		used := "no"
		if p.UsedInPlane {
			used = "yes"
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(p.ID), p.PartType, string(p.PlaneType), used, stamp(p.CreatedAt),
		})
	}
	return t.Text(noColor) + "\n" + render(mutedStyle, noColor, pageFooter(v.Page, v.TotalPages, v.Count))
}

// PlanesView is one page of assembled planes
type PlanesView struct {
	Page       int               `json:"page" yaml:"page"`
	TotalPages int               `json:"total_pages" yaml:"total_pages"`
	Count      int               `json:"count" yaml:"count"`
	Planes     []inventory.Plane `json:"planes" yaml:"planes"`
}

// NewPlanesView builds a view of page number n
func NewPlanesView(n int, p *inventory.Page[inventory.Plane]) PlanesView {
	return PlanesView{Page: n, TotalPages: p.TotalPages(), Count: p.Count, Planes: p.Results}
}

// Text implements Texter
func (v PlanesView) Text(noColor bool) string {
	t := Table{Headers: []string{"ID", "Plane", "Parts", "Created"}}
	for _, p := range v.Planes {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(p.ID), string(p.PlaneType), strconv.Itoa(len(p.PartsUsed)), stamp(p.CreatedAt),
		})
	}
	return t.Text(noColor) + "\n" + render(mutedStyle, noColor, pageFooter(v.Page, v.TotalPages, v.Count))
}

// ScoreView is the team's used/unused part counts per plane type
type ScoreView struct {
	inventory.Score `yaml:",inline"`
}

// Text implements Texter
func (v ScoreView) Text(noColor bool) string {
	t := Table{Headers: []string{"Plane", "Used", "Unused"}}
	for _, pt := range inventory.PlaneTypes() {
		s, ok := v.Scores[pt]
		if !ok {
			continue
		}
		t.Rows = append(t.Rows, []string{string(pt), strconv.Itoa(s.Used), strconv.Itoa(s.Unused)})
	}
	title := fmt.Sprintf("%s team, %s parts", v.Team, v.PartType)
	return render(headerStyle, noColor, title) + "\n" + t.Text(noColor)
}

// SessionView describes the current session for auth status
type SessionView struct {
	Authenticated bool      `json:"authenticated" yaml:"authenticated"`
	User          *api.User `json:"user,omitempty" yaml:"user,omitempty"`
	Store         string    `json:"store" yaml:"store"`
	Tokens        string    `json:"tokens" yaml:"tokens"`
}

// Text implements Texter
func (v SessionView) Text(noColor bool) string {
	var b strings.Builder
	if v.Authenticated && v.User != nil {
		b.WriteString(render(okStyle, noColor, "Logged in") + " as " + v.User.DisplayName())
		if v.User.DisplayName() != v.User.Email {
			b.WriteString(" <" + v.User.Email + ">")
		}
		if v.User.TeamName != "" {
			b.WriteString("\nTeam:   " + v.User.TeamName)
		}
	} else {
		b.WriteString(render(warnStyle, noColor, "Not logged in"))
	}
	b.WriteString("\nStore:  " + v.Store)
	b.WriteString("\nTokens: " + v.Tokens)
	return b.String()
}

// NoteLine renders a notification as one terminal line
func NoteLine(n notify.Notification, noColor bool) string {
	mark, style := "•", mutedStyle
	switch n.Variant {
	case notify.VariantDestructive:
		mark, style = "✗", failStyle
	case notify.VariantSuccess:
		mark, style = "✓", okStyle
	}
	line := render(style, noColor, mark+" "+n.Title)
	if n.Description != "" {
		line += ": " + n.Description
	}
	return line
}
