package cli

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/hoist/pkg/semver"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// VersionPickerModel - Interactive version selection
// =============================================================================

// VersionPickerModel is the bubbletea model for picking a published
// version of a package, newest first.
type VersionPickerModel struct {
	Package  string
	Versions []semver.Version
	Cursor   int
	Selected *semver.Version
	Height   int
	Offset   int
}

// NewVersionPickerModel creates a picker over versions. The input is
// expected in ascending registry order and is shown newest first.
func NewVersionPickerModel(pkg string, versions []semver.Version) VersionPickerModel {
	ordered := make([]semver.Version, len(versions))
	copy(ordered, versions)
	slices.Reverse(ordered)
	return VersionPickerModel{
		Package:  pkg,
		Versions: ordered,
		Height:   15,
	}
}

func (m VersionPickerModel) Init() tea.Cmd {
	return nil
}

func (m VersionPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Versions)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			v := m.Versions[m.Cursor]
			m.Selected = &v
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m VersionPickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select version") + " " + StyleValue.Render(m.Package))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Versions) {
		end = len(m.Versions)
	}

	for i := m.Offset; i < end; i++ {
		v := m.Versions[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		channel := ""
		if v.Pre != "" {
			channel = "  " + StyleWarning.Render("pre-release")
		}

		line := fmt.Sprintf("%s%-16s", cursor, v.String())
		switch {
		case i == m.Cursor:
			b.WriteString(listSelectedStyle.Render(line) + channel)
		case v.Pre != "":
			b.WriteString(listDimStyle.Render(line) + channel)
		default:
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Versions))))

	return b.String()
}
