package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	paneStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

// browseCommand creates the browse command.
func (c *CLI) browseCommand() *cobra.Command {
	var (
		refresh bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "browse <input>",
		Short: "Explore models and their lineage interactively",
		Long: `Explore models and their lineage interactively.

The left pane lists models; the right pane shows the selected model's
columns and its direct upstream and downstream models with the column
links between them. Press / to filter by name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.Options{Refresh: refresh, Formats: []string{pipeline.FormatJSON}}
			result, err := c.execute(cmd.Context(), args[0], opts, noCache)
			if err != nil {
				return err
			}
			if result.Graph.ModelCount() == 0 {
				printInfo("No models in %s", args[0])
				return nil
			}
			p := tea.NewProgram(NewBrowserModel(result.Graph), tea.WithContext(cmd.Context()), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached results and remote responses")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

// =============================================================================
// BrowserModel - Interactive lineage browser
// =============================================================================

// BrowserModel is the bubbletea model for browsing a lineage graph.
type BrowserModel struct {
	Graph     *lineage.Graph
	Visible   []lineage.Model
	Cursor    int
	Offset    int
	Height    int
	Query     string
	Filtering bool
}

// NewBrowserModel lists every model of g.
func NewBrowserModel(g *lineage.Graph) BrowserModel {
	return BrowserModel{
		Graph:   g,
		Visible: g.Models(),
		Height:  15,
	}
}

func (m BrowserModel) Init() tea.Cmd {
	return nil
}

func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering {
			return m.updateFilter(msg), nil
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "/":
			m.Filtering = true
		case "up", "k":
			m = m.move(-1)
		case "down", "j":
			m = m.move(1)
		case "pgup":
			m = m.move(-m.Height)
		case "pgdown":
			m = m.move(m.Height)
		case "home", "g":
			m = m.move(-len(m.Visible))
		case "end", "G":
			m = m.move(len(m.Visible))
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
		m = m.move(0)
	}
	return m, nil
}

// updateFilter edits the name filter. Enter keeps it, esc clears it.
func (m BrowserModel) updateFilter(msg tea.KeyMsg) BrowserModel {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.Filtering = false
		m.Query = ""
	case tea.KeyEnter:
		m.Filtering = false
		return m
	case tea.KeyBackspace:
		if r := []rune(m.Query); len(r) > 0 {
			m.Query = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.Query += string(msg.Runes)
	default:
		return m
	}
	m.Visible = m.Graph.Filter(lineage.Filter{Search: m.Query}).Models()
	m.Cursor, m.Offset = 0, 0
	return m
}

// move shifts the cursor by delta, clamped, and scrolls it into view.
func (m BrowserModel) move(delta int) BrowserModel {
	m.Cursor = min(max(m.Cursor+delta, 0), max(len(m.Visible)-1, 0))
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
	return m
}

// Selected returns the model under the cursor.
func (m BrowserModel) Selected() (lineage.Model, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Visible) {
		return lineage.Model{}, false
	}
	return m.Visible[m.Cursor], true
}

func (m BrowserModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Lineage"))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %d models · %d links", m.Graph.ModelCount(), m.Graph.LinkCount())))
	b.WriteString("\n")
	if m.Filtering {
		b.WriteString(listNormalStyle.Render("/" + m.Query + "█"))
	} else {
		help := "↑/↓ navigate  / filter  q quit"
		if m.Query != "" {
			help = fmt.Sprintf("filter %q  ", m.Query) + help
		}
		b.WriteString(listDimStyle.Render(help))
	}
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.listView(), " ", m.detailView()))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", min(m.Cursor+1, len(m.Visible)), len(m.Visible))))

	return b.String()
}

func (m BrowserModel) listView() string {
	end := min(m.Offset+m.Height, len(m.Visible))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		model := m.Visible[i]
		rows = append(rows, []string{cursor, model.Name, model.Project, model.Materialized})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Model", "Project", "Materialized").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return listSelectedStyle
			}
			if col >= 2 {
				return listDimStyle
			}
			return listNormalStyle
		})
	return t.Render()
}

func (m BrowserModel) detailView() string {
	sel, ok := m.Selected()
	if !ok {
		return paneStyle.Render(listDimStyle.Render("no matching models"))
	}
	n, err := m.Graph.Neighborhood(sel.ID)
	if err != nil {
		return paneStyle.Render(listDimStyle.Render(err.Error()))
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(sel.Name))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(sel.ID))
	b.WriteString("\n")
	if sel.Description != "" {
		b.WriteString(sel.Description)
		b.WriteString("\n")
	}

	b.WriteString("\n" + StyleHighlight.Render("Columns") + "\n")
	if len(sel.Columns) == 0 {
		b.WriteString(listDimStyle.Render("  none") + "\n")
	}
	for _, col := range sel.Columns {
		line := "  " + col.Name
		if col.DataType != "" {
			line += listDimStyle.Render(" " + col.DataType)
		}
		if col.IsPrimaryKey {
			line += StyleSuccess.Render(" pk")
		}
		b.WriteString(line + "\n")
	}

	writeNeighbors(&b, "Upstream", n.Upstream)
	writeNeighbors(&b, "Downstream", n.Downstream)

	return paneStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// writeNeighbors lists neighbors with the column links of the connecting
// link, always written source -> target.
func writeNeighbors(b *strings.Builder, title string, neighbors []lineage.Neighbor) {
	b.WriteString("\n" + StyleHighlight.Render(title) + "\n")
	if len(neighbors) == 0 {
		b.WriteString(listDimStyle.Render("  none") + "\n")
		return
	}
	for _, nb := range neighbors {
		b.WriteString("  " + listNormalStyle.Render(nb.Model.Name) + "\n")
		for _, cl := range nb.ColumnLinks {
			b.WriteString(listDimStyle.Render(fmt.Sprintf("    %s -> %s (%.1f)", cl.SourceColumn, cl.TargetColumn, cl.Confidence)) + "\n")
		}
	}
}
