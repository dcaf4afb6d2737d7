package results

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailcheck/internal/keys"
	"github.com/nhle/mailcheck/internal/search"
	"github.com/nhle/mailcheck/internal/theme"
)

// BackMsg signals the parent to leave the results panel.
type BackMsg struct{}

// Model is the read-only results panel. While a search runs it lists the
// folder queries as they finish; afterwards it shows the rendered result.
type Model struct {
	viewport viewport.Model
	keys     *keys.KeyMap
	result   *search.Result
	progress []search.FolderOutcome
	day      string
	running  bool
	width    int
	height   int
}

// New creates a new results panel.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, max(height-2, 0))
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the results panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the panel.
func (m Model) View() string {
	if !m.running && m.result == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No search yet")
	}

	title := "Results"
	if m.running {
		title = fmt.Sprintf("Searching %s…", m.day)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		theme.TitleStyle.Render(title),
		m.viewport.View(),
	)
}

// Start clears the panel for a new search of day.
func (m *Model) Start(day string) {
	m.running = true
	m.day = day
	m.result = nil
	m.progress = nil
	m.refresh()
}

// AddProgress appends a finished folder query to the running listing.
func (m *Model) AddProgress(o search.FolderOutcome) {
	m.progress = append(m.progress, o)
	m.refresh()
	m.viewport.GotoBottom()
}

// SetResult shows the final result.
func (m *Model) SetResult(r *search.Result) {
	m.running = false
	m.result = r
	m.refresh()
	m.viewport.GotoTop()
}

// Stop marks the search finished without a result.
func (m *Model) Stop() {
	m.running = false
	m.refresh()
}

// Running reports whether a search is in progress.
func (m Model) Running() bool {
	return m.running
}

// Content returns the unstyled panel text.
func (m Model) Content() string {
	if m.result != nil {
		return search.Render(m.result)
	}

	var b strings.Builder
	for _, o := range m.progress {
		b.WriteString(progressLine(o))
		b.WriteByte('\n')
	}
	return b.String()
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-2, 0)
}

func (m *Model) refresh() {
	lines := strings.Split(strings.TrimRight(m.Content(), "\n"), "\n")
	for i, line := range lines {
		lines[i] = styleLine(line)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

func progressLine(o search.FolderOutcome) string {
	if o.Failed() {
		return fmt.Sprintf("%s %s · %s: %v", search.MarkWarning, o.Subject, o.Folder, o.Err)
	}
	return fmt.Sprintf("  %s · %s: %d", o.Subject, o.Folder, o.Count)
}

// styleLine colors a line by the marker it starts with.
func styleLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	for _, mark := range []string{search.MarkFound, search.MarkNotFound, search.MarkWarning} {
		if strings.HasPrefix(trimmed, mark) {
			return theme.MarkStyle(mark).Render(line)
		}
	}
	return line
}
