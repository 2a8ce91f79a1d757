package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

func browserGraph() *lineage.Graph {
	models := []lineage.Model{
		{ID: "raw_orders", Name: "raw_orders", Project: "shop", Columns: []lineage.Column{{Name: "amount"}}},
		{ID: "stg_orders", Name: "stg_orders", Project: "shop", Columns: []lineage.Column{{Name: "amount", DataType: "numeric"}}},
		{ID: "orders", Name: "orders", Project: "mart", Materialized: "table"},
	}
	links := []lineage.Link{
		{Source: "raw_orders", Target: "stg_orders", ColumnLinks: []lineage.ColumnLink{{SourceColumn: "amount", TargetColumn: "amount", Confidence: 0.8}}},
		{Source: "stg_orders", Target: "orders", ColumnLinks: []lineage.ColumnLink{}},
	}
	return lineage.NewGraph(models, links)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m BrowserModel, keys ...string) BrowserModel {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(BrowserModel)
	}
	return m
}

func TestBrowserNavigation(t *testing.T) {
	m := NewBrowserModel(browserGraph())

	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"start", nil, "raw_orders"},
		{"down", []string{"down"}, "stg_orders"},
		{"vim keys", []string{"j", "j", "k"}, "stg_orders"},
		{"clamped bottom", []string{"down", "down", "down", "down"}, "orders"},
		{"clamped top", []string{"up"}, "raw_orders"},
		{"end", []string{"G"}, "orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := press(m, tt.keys...).Selected()
			if !ok || sel.ID != tt.want {
				t.Errorf("selected %q, want %q", sel.ID, tt.want)
			}
		})
	}
}

func TestBrowserScrolls(t *testing.T) {
	m := NewBrowserModel(browserGraph())
	m.Height = 1

	m = press(m, "down", "down")
	if m.Offset != 2 {
		t.Errorf("offset = %d, want 2", m.Offset)
	}
	m = press(m, "up")
	if m.Offset != 1 {
		t.Errorf("offset = %d, want 1", m.Offset)
	}
}

func TestBrowserFilter(t *testing.T) {
	m := NewBrowserModel(browserGraph())

	m = press(m, "/", "s", "t", "g")
	if !m.Filtering || m.Query != "stg" {
		t.Fatalf("filtering=%v query=%q", m.Filtering, m.Query)
	}
	if len(m.Visible) != 1 || m.Visible[0].ID != "stg_orders" {
		t.Fatalf("visible = %v", m.Visible)
	}

	// q is typed into the query while filtering, not treated as quit.
	m = press(m, "q")
	if m.Query != "stgq" || len(m.Visible) != 0 {
		t.Errorf("query=%q visible=%d", m.Query, len(m.Visible))
	}
	if _, ok := m.Selected(); ok {
		t.Error("nothing should be selected with no matches")
	}

	m = press(m, "backspace", "enter")
	if m.Filtering || m.Query != "stg" || len(m.Visible) != 1 {
		t.Errorf("after enter: filtering=%v query=%q visible=%d", m.Filtering, m.Query, len(m.Visible))
	}

	m = press(m, "/", "esc")
	if m.Query != "" || len(m.Visible) != 3 {
		t.Errorf("esc should clear the filter: query=%q visible=%d", m.Query, len(m.Visible))
	}
}

func TestBrowserQuit(t *testing.T) {
	m := NewBrowserModel(browserGraph())
	for _, k := range []string{"q", "esc"} {
		_, cmd := m.Update(key(k))
		if cmd == nil {
			t.Errorf("%s should quit", k)
			continue
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s should return tea.Quit", k)
		}
	}
}

func TestBrowserWindowSize(t *testing.T) {
	m := NewBrowserModel(browserGraph())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 10})
	if h := next.(BrowserModel).Height; h != 5 {
		t.Errorf("height = %d, want minimum 5", h)
	}
	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if h := next.(BrowserModel).Height; h != 32 {
		t.Errorf("height = %d, want 32", h)
	}
}

func TestBrowserView(t *testing.T) {
	m := press(NewBrowserModel(browserGraph()), "down")
	view := m.View()

	for _, want := range []string{"stg_orders", "Upstream", "Downstream", "raw_orders", "amount -> amount (0.8)", "numeric"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
