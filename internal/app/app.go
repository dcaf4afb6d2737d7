package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailcheck/internal/keys"
	"github.com/nhle/mailcheck/internal/search"
	"github.com/nhle/mailcheck/internal/ui"
	"github.com/nhle/mailcheck/internal/ui/folderpicker"
	helpview "github.com/nhle/mailcheck/internal/ui/help"
	"github.com/nhle/mailcheck/internal/ui/mainform"
	"github.com/nhle/mailcheck/internal/ui/results"
	"github.com/nhle/mailcheck/internal/worker"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewMain ViewState = iota
	ViewResults
	ViewFolders
	ViewHelp
)

// Model is the root Bubble Tea model. It routes messages between the
// panels and the background runner; it never blocks on the network.
type Model struct {
	env          *Env
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	form         mainform.Model
	results      results.Model
	picker       folderpicker.Model
	helpView     helpview.Model
	runner       *worker.Runner
	spinner      spinner.Model

	// job is the kind of the running job, empty when idle.
	job worker.Kind

	notice    string
	noticeErr bool
	connLost  bool
	ready     bool
}

// New creates the root model for env.
func New(env *Env) Model {
	k := keys.DefaultKeyMap()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		env:      env,
		keys:     k,
		form:     mainform.New(k, env.Location, env.now(), 80, 24),
		results:  results.New(k, 80, 24),
		picker:   folderpicker.New(80, 24),
		helpView: helpview.New(k, 80, 24),
		runner:   worker.New(env.Log),
		spinner:  sp,
	}
	m.refreshSummary()
	return m
}

// Init starts the cursor blink, the spinner, and the runner subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.form.Init(),
		m.spinner.Tick,
		m.runner.WaitForNextResult(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.form.SetSize(w, h)
		m.results.SetSize(w, h)
		m.picker.SetSize(w, h)
		m.helpView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case mainform.ReloadRequestMsg:
		m.startReload()
		return m, nil

	case mainform.SearchRequestMsg:
		m.startSearch(msg.Date)
		return m, nil

	case mainform.SelectFoldersMsg:
		if m.runner.Busy() {
			m.setError(worker.ErrBusy.Error())
			return m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewFolders
		return m, m.picker.Start(m.env.Settings.Folders)

	case folderpicker.FoldersSelectedMsg:
		m.currentView = ViewMain
		return m, m.saveSelection(msg.Enabled)

	case folderpicker.CancelMsg:
		m.currentView = ViewMain
		return m, nil

	case foldersSavedMsg:
		if msg.err != nil {
			m.setError(msg.err.Error())
			return m, nil
		}
		m.env.Settings = msg.settings
		m.refreshSummary()
		m.setInfo(fmt.Sprintf("Folder selection saved to %s", m.env.Store.Path()))
		return m, nil

	case results.BackMsg:
		if m.job == worker.KindSearch {
			if m.runner.Cancel() {
				m.setInfo("Cancelling search after the current folder…")
			}
			return m, nil
		}
		m.currentView = ViewMain
		return m, nil

	case worker.StartedMsg:
		return m, m.runner.WaitForNextResult()

	case worker.ProgressMsg:
		if o, ok := msg.Value.(search.FolderOutcome); ok {
			m.results.AddProgress(o)
		}
		return m, m.runner.WaitForNextResult()

	case worker.ResultMsg:
		m.handleResult(msg)
		return m, m.runner.WaitForNextResult()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.runner.Cancel()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewFolders {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewMain:
		m.form, cmd = m.form.Update(msg)
	case ViewResults:
		m.results, cmd = m.results.Update(msg)
	case ViewFolders:
		m.picker, cmd = m.picker.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	header := m.layout.RenderHeader("mailcheck · "+m.env.Session.Account(), m.state())
	notice := m.layout.RenderNotice(m.notice, m.noticeErr)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), notice, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewMain:
		return m.form.View()
	case ViewResults:
		return m.results.View()
	case ViewFolders:
		return m.picker.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// state describes the connection and the running job for the header.
func (m Model) state() string {
	switch {
	case m.job == worker.KindSearch:
		return m.spinner.View() + " searching"
	case m.job == worker.KindReload:
		return m.spinner.View() + " reloading folders"
	case m.connLost:
		return "⚠ connection lost, restart to reconnect"
	default:
		return "connected"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "f1 close help | esc back"
	case ViewFolders:
		return "x toggle | / filter | enter save | esc cancel"
	case ViewResults:
		if m.job == worker.KindSearch {
			return "esc cancel search | j/k scroll"
		}
		return "esc back | j/k scroll"
	default:
		return "tab next | enter press | ctrl+s search | ctrl+r reload | ctrl+o folders | f1 help | ctrl+c quit"
	}
}

func (m *Model) refreshSummary() {
	s := m.env.Settings
	m.form.SetSummary(len(s.EnabledFolders()), len(s.Folders), len(s.Subjects))
}

func (m *Model) setInfo(text string) {
	m.notice = text
	m.noticeErr = false
}

func (m *Model) setError(text string) {
	m.notice = text
	m.noticeErr = true
}

func (m *Model) clearNotice() {
	m.notice = ""
	m.noticeErr = false
}
