package folderpicker

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/theme"
)

// FoldersSelectedMsg is dispatched when the user confirms the selection.
type FoldersSelectedMsg struct {
	Enabled []string
}

// CancelMsg is dispatched when the user leaves without saving.
type CancelMsg struct{}

// pickerBindings keeps the selection on the heap so that huh's Value()
// pointer stays valid across Bubble Tea model copies.
type pickerBindings struct {
	selected []string
}

// Model lets the user toggle which folders are searched.
type Model struct {
	form   *huh.Form
	pb     *pickerBindings
	count  int
	width  int
	height int
}

// New creates a new folder picker.
func New(width, height int) Model {
	return Model{
		pb:     &pickerBindings{},
		width:  width,
		height: height,
	}
}

// Start builds the form for folders, preselecting the enabled ones.
func (m *Model) Start(folders []model.Folder) tea.Cmd {
	m.count = len(folders)
	m.pb.selected = m.pb.selected[:0]

	opts := make([]huh.Option[string], len(folders))
	for i, f := range folders {
		opts[i] = huh.NewOption(f.Name, f.Name).Selected(f.Enabled)
		if f.Enabled {
			m.pb.selected = append(m.pb.selected, f.Name)
		}
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Folders to search").
				Description("x or space toggles · / filters · enter saves · esc cancels").
				Options(opts...).
				Filterable(true).
				Height(m.listHeight()).
				Value(&m.pb.selected),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)

	return m.form.Init()
}

// Update handles messages for the picker.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		enabled := append([]string(nil), m.pb.selected...)
		m.form = nil
		return m, func() tea.Msg { return FoldersSelectedMsg{Enabled: enabled} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the picker.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	if m.count == 0 {
		return lipgloss.NewStyle().Padding(1, 2).Render(
			theme.DimmedStyle.Render("No folders yet. Reload folders first."),
		)
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(m.form.View())
}

// Active reports whether the form is open.
func (m Model) Active() bool {
	return m.form != nil
}

// SetSize updates the picker dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) listHeight() int {
	h := m.height - 4
	if h < 6 {
		h = 6
	}
	return h
}
