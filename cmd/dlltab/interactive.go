package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/dlltab/linker"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	detailStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color("#666666"))
)

const listHeight = 12

type chunkEntry struct {
	section string
	chunk   linker.ChunkInfo
	code    bool
}

type browserModel struct {
	img       *linker.Image
	filename  string
	entries   []chunkEntry
	visible   []int
	filter    textinput.Model
	detail    viewport.Model
	selected  int
	filtering bool
	ready     bool
}

func newBrowserModel(filename string, img *linker.Image) *browserModel {
	m := &browserModel{img: img, filename: filename}
	for _, s := range img.Sections {
		for _, c := range s.Chunks {
			m.entries = append(m.entries, chunkEntry{section: s.Name, chunk: c, code: s.Name == ".text"})
		}
	}

	m.filter = textinput.New()
	m.filter.Prompt = "filter: "
	m.filter.Placeholder = "chunk name"
	m.filter.Width = 40
	m.applyFilter()
	return m
}

func (m *browserModel) Init() tea.Cmd {
	return nil
}

// applyFilter keeps the entries whose chunk or section name contains the
// filter text, ignoring case.
func (m *browserModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, e := range m.entries {
		if q == "" || strings.Contains(strings.ToLower(e.chunk.Name), q) ||
			strings.Contains(strings.ToLower(e.section), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
	m.refreshDetail()
}

func (m *browserModel) refreshDetail() {
	if !m.ready {
		return
	}
	if len(m.visible) == 0 {
		m.detail.SetContent("no matching chunks")
		return
	}
	m.detail.SetContent(m.describe(m.entries[m.visible[m.selected]]))
	m.detail.GotoTop()
}

func (m *browserModel) describe(e chunkEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s at %#x, %d bytes\n\n", e.chunk.Name, e.section, e.chunk.RVA, e.chunk.Size)
	data, err := m.img.ReadRVA(e.chunk.RVA, e.chunk.Size)
	if err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		return b.String()
	}
	if e.code {
		for _, line := range disassemble(m.img.Target, data, e.chunk.RVA) {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(hex.Dump(data))
	return b.String()
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-listHeight-6, 3)
		if !m.ready {
			m.detail = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.detail.Width = msg.Width
			m.detail.Height = height
		}
		m.refreshDetail()
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "esc", "enter":
				m.filtering = false
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "/":
			m.filtering = true
			return m, m.filter.Focus()

		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refreshDetail()
			}
			return m, nil

		case "down", "j":
			if m.selected < len(m.visible)-1 {
				m.selected++
				m.refreshDetail()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *browserModel) View() string {
	if !m.ready {
		return "Loading image..."
	}

	var b strings.Builder
	b.WriteString(headingStyle.Render("DLL Tables"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	first := 0
	if m.selected >= listHeight {
		first = m.selected - listHeight + 1
	}
	for i := first; i < len(m.visible) && i < first+listHeight; i++ {
		e := m.entries[m.visible[i]]
		line := fmt.Sprintf("%-9s %#08x %6d  %s", e.section, e.chunk.RVA, e.chunk.Size, e.chunk.Name)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString(detailStyle.Render(m.detail.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • / filter • pgup/pgdn scroll • q quit"))
	return b.String()
}

func runInteractive(filename string, img *linker.Image) error {
	p := tea.NewProgram(newBrowserModel(filename, img), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
