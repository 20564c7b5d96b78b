package ux

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/notify"
)

func strPtr(s string) *string { return &s }

func TestPartsViewText(t *testing.T) {
	page := &inventory.Page[inventory.Part]{
		Count: 12,
		Next:  strPtr("https://api.example.com/v1/parts/?page=2"),
		Results: []inventory.Part{
			{ID: 7, PartType: "Wing", PlaneType: inventory.PlaneTB2, UsedInPlane: true, CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
			{ID: 8, PartType: "Wing", PlaneType: inventory.PlaneAkinci},
		},
	}

	out := NewPartsView(1, page).Text(true)

	for _, want := range []string{"ID", "Part", "TB2", "AKINCI", "yes", "no", "Page 1 of 2 (12 total)"} {
		if !strings.Contains(out, want) {
			t.Errorf("parts view missing %q:\n%s", want, out)
		}
	}
}

func TestPlanesViewJSON(t *testing.T) {
	page := &inventory.Page[inventory.Plane]{
		Count:   1,
		Results: []inventory.Plane{{ID: 3, PlaneType: inventory.PlaneTB3, PartsUsed: make([]inventory.Part, 5)}},
	}

	var buf bytes.Buffer
	f, err := NewFormatter("json", &FormatterOptions{Writer: &buf})
	if err != nil {
		t.Fatalf("NewFormatter() error = %v", err)
	}
	if err := f.Format(NewPlanesView(1, page)); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var got struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
		Planes     []struct {
			PlaneType string `json:"plane_type"`
		} `json:"planes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.TotalPages != 1 || len(got.Planes) != 1 || got.Planes[0].PlaneType != "TB3" {
		t.Errorf("unexpected planes output: %+v", got)
	}
}

func TestEmptyTable(t *testing.T) {
	out := Table{Headers: []string{"ID"}}.Text(true)
	if out != "No entries." {
		t.Errorf("empty table = %q", out)
	}
}

func TestScoreViewOrdersPlaneTypes(t *testing.T) {
	v := ScoreView{inventory.Score{
		Team:     "WING",
		PartType: "Wing",
		Scores: map[inventory.PlaneType]inventory.PlaneScore{
			inventory.PlaneKizilelma: {Used: 1, Unused: 0},
			inventory.PlaneTB2:       {Used: 4, Unused: 2},
		},
	}}

	out := v.Text(true)
	if strings.Index(out, "TB2") > strings.Index(out, "KIZILELMA") {
		t.Errorf("plane types out of order:\n%s", out)
	}
	if !strings.Contains(out, "WING team, Wing parts") {
		t.Errorf("missing title:\n%s", out)
	}
}

func TestSessionViewText(t *testing.T) {
	tests := []struct {
		name string
		view SessionView
		want []string
	}{
		{
			name: "logged in",
			view: SessionView{
				Authenticated: true,
				User:          &api.User{Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace", TeamName: "WING"},
				Store:         "file",
				Tokens:        "complete",
			},
			want: []string{"Logged in as Ada Lovelace <a@b.com>", "Team:   WING", "Store:  file"},
		},
		{
			name: "anonymous",
			view: SessionView{Store: "memory", Tokens: "empty"},
			want: []string{"Not logged in", "Tokens: empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.view.Text(true)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("session view missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestReport(t *testing.T) {
	var r Report
	r.Add("config", StatusOK, "")
	r.Add("contract", StatusWarn, "operationId differs")

	if r.Failed() {
		t.Error("report without failures reported Failed")
	}

	r.Add("store", StatusFail, "permission denied")
	if !r.Failed() {
		t.Error("report with a failure did not report Failed")
	}

	out := r.Text(true)
	want := "✓ config\n! contract: operationId differs\n✗ store: permission denied"
	if out != want {
		t.Errorf("Text() = %q, want %q", out, want)
	}
}

func TestNoteLine(t *testing.T) {
	tests := []struct {
		note notify.Notification
		want string
	}{
		{notify.Error("Login failed", "bad password"), "✗ Login failed: bad password"},
		{notify.Success("Logged out", ""), "✓ Logged out"},
		{notify.Notification{Title: "Heads up", Variant: notify.VariantDefault}, "• Heads up"},
	}

	for _, tt := range tests {
		if got := NoteLine(tt.note, true); got != tt.want {
			t.Errorf("NoteLine(%+v) = %q, want %q", tt.note, got, tt.want)
		}
	}
}
