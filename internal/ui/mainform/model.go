package mainform

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailcheck/internal/keys"
	"github.com/nhle/mailcheck/internal/search"
	"github.com/nhle/mailcheck/internal/theme"
)

// ReloadRequestMsg asks the parent to rebuild the folder list.
type ReloadRequestMsg struct{}

// SearchRequestMsg asks the parent to search the given day.
type SearchRequestMsg struct {
	Date time.Time
}

// SelectFoldersMsg asks the parent to open the folder picker.
type SelectFoldersMsg struct{}

// Focus identifies the focused control of the form.
type Focus int

const (
	FocusDate Focus = iota
	FocusReload
	FocusSearch
	FocusFolders
	focusCount
)

var buttonLabels = map[Focus]string{
	FocusReload:  "Reload folders",
	FocusSearch:  "Search",
	FocusFolders: "Select folders",
}

// Model is the main form: a date input and the action buttons.
type Model struct {
	input textinput.Model
	keys  *keys.KeyMap
	loc   *time.Location
	focus Focus
	err   string

	enabled  int
	total    int
	subjects int

	width  int
	height int
}

// New creates the form with the date input pre-filled with today.
func New(keys *keys.KeyMap, loc *time.Location, today time.Time, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = search.DateLayout
	ti.Prompt = ""
	ti.CharLimit = len(search.DateLayout)
	ti.Width = len(search.DateLayout) + 1
	ti.SetValue(today.In(loc).Format(search.DateLayout))
	ti.Focus()

	return Model{
		input:  ti,
		keys:   keys,
		loc:    loc,
		width:  width,
		height: height,
	}
}

// Init returns the cursor blink command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Next):
			return m, m.setFocus((m.focus + 1) % focusCount)

		case key.Matches(msg, m.keys.Prev):
			return m, m.setFocus((m.focus + focusCount - 1) % focusCount)

		case key.Matches(msg, m.keys.Reload):
			return m, emit(ReloadRequestMsg{})

		case key.Matches(msg, m.keys.Search):
			return m, m.submitSearch()

		case key.Matches(msg, m.keys.Folders):
			return m, emit(SelectFoldersMsg{})

		case key.Matches(msg, m.keys.Press):
			switch m.focus {
			case FocusReload:
				return m, emit(ReloadRequestMsg{})
			case FocusFolders:
				return m, emit(SelectFoldersMsg{})
			default:
				return m, m.submitSearch()
			}
		}
	}

	if m.focus != FocusDate {
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.err = ""
	}
	return m, cmd
}

// submitSearch validates the date and emits a SearchRequestMsg. An invalid
// date is shown below the input instead.
func (m *Model) submitSearch() tea.Cmd {
	date, err := search.ParseDate(m.input.Value(), m.loc)
	if err != nil {
		m.err = err.Error()
		return nil
	}
	m.err = ""
	return emit(SearchRequestMsg{Date: date})
}

func (m *Model) setFocus(f Focus) tea.Cmd {
	m.focus = f
	if f == FocusDate {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

// View renders the form.
func (m Model) View() string {
	label := theme.DimmedStyle.Render("Date (YYYY-MM-DD):")
	input := m.input.View()
	if m.focus == FocusDate {
		input = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("▸ ") + input
	} else {
		input = "  " + input
	}

	rows := []string{
		theme.TitleStyle.Render("Subject search"),
		label,
		input,
	}
	if m.err != "" {
		rows = append(rows, theme.ErrorStyle.Render(m.err))
	} else {
		rows = append(rows, "")
	}

	buttons := make([]string, 0, len(buttonLabels))
	for f := FocusReload; f < focusCount; f++ {
		style := theme.ButtonStyle
		if m.focus == f {
			style = theme.FocusedButtonStyle
		}
		buttons = append(buttons, style.Render(buttonLabels[f]))
	}
	rows = append(rows, "", lipgloss.JoinHorizontal(lipgloss.Top, buttons...), "")
	rows = append(rows, theme.DimmedStyle.Render(m.summary()))

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d folders enabled", m.enabled, m.total)
	fmt.Fprintf(&b, " · %d subjects", m.subjects)
	if m.enabled == 0 && m.total > 0 {
		b.WriteString(" · use Select folders to enable some")
	}
	if m.total == 0 {
		b.WriteString(" · use Reload folders to list them")
	}
	return b.String()
}

// SetSummary updates the settings counters shown under the buttons.
func (m *Model) SetSummary(enabled, total, subjects int) {
	m.enabled = enabled
	m.total = total
	m.subjects = subjects
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Value returns the raw date input.
func (m Model) Value() string {
	return m.input.Value()
}

// Err returns the current validation error, if any.
func (m Model) Err() string {
	return m.err
}

// Focused returns the focused control.
func (m Model) Focused() Focus {
	return m.focus
}

// Editing reports whether keystrokes go to the date input.
func (m Model) Editing() bool {
	return m.focus == FocusDate
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
