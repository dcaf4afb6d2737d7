package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailcheck/internal/folders"
	"github.com/nhle/mailcheck/internal/mail"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/search"
	"github.com/nhle/mailcheck/internal/worker"
)

// foldersSavedMsg reports the outcome of saving a new folder selection.
type foldersSavedMsg struct {
	settings *model.Settings
	err      error
}

// startReload rebuilds the folder list on the runner. The job works on a
// copy of the settings; the copy becomes current once it has been saved.
func (m *Model) startReload() {
	settings := m.env.Settings.Clone()
	env := m.env

	_, err := m.runner.Start(worker.Job{
		Kind: worker.KindReload,
		Run: func(ctx context.Context, _ func(any)) (any, error) {
			_, err := folders.Reload(ctx, env.Session, env.Store, settings, env.preserveSelection(), env.Log)
			return settings, err
		},
	})
	if err != nil {
		m.setError(err.Error())
		return
	}
	m.job = worker.KindReload
	m.clearNotice()
}

// startSearch runs a search for date on the runner and switches to the
// results panel, which fills in as folder queries finish.
func (m *Model) startSearch(date time.Time) {
	settings := m.env.Settings.Clone()
	env := m.env

	_, err := m.runner.Start(worker.Job{
		Kind: worker.KindSearch,
		Run: func(ctx context.Context, progress func(any)) (any, error) {
			engine := search.NewEngine(env.Session, env.Location, env.Log)
			engine.Progress = func(o search.FolderOutcome) { progress(o) }
			return engine.Run(ctx, search.Request{
				Date:     date,
				Subjects: settings.Subjects,
				Folders:  settings.Folders,
			})
		},
	})
	if err != nil {
		m.setError(err.Error())
		return
	}

	m.job = worker.KindSearch
	m.clearNotice()
	m.results.Start(date.Format(search.DateLayout))
	m.previousView = m.currentView
	m.currentView = ViewResults
}

// saveSelection writes the picked folders as the new enabled set.
func (m Model) saveSelection(enabled []string) tea.Cmd {
	settings := m.env.Settings.Clone()
	s := m.env.Store
	return func() tea.Msg {
		settings.SetEnabled(enabled)
		if err := s.Save(settings); err != nil {
			return foldersSavedMsg{err: fmt.Errorf("saving folder selection: %w", err)}
		}
		return foldersSavedMsg{settings: settings}
	}
}

// handleResult applies a finished job to the model.
func (m *Model) handleResult(msg worker.ResultMsg) {
	m.job = ""

	switch msg.Kind {
	case worker.KindReload:
		m.handleReloadResult(msg)
	case worker.KindSearch:
		m.handleSearchResult(msg)
	}

	m.refreshSummary()
}

func (m *Model) handleReloadResult(msg worker.ResultMsg) {
	var saveErr *folders.SaveError
	if errors.As(msg.Err, &saveErr) {
		m.setError(saveErr.Error())
		return
	}

	settings, ok := msg.Value.(*model.Settings)
	if ok && settings != nil {
		m.env.Settings = settings
	}

	path := m.env.Store.Path()
	switch {
	case msg.Canceled:
		m.setError("Folder reload cancelled, partial list saved to " + path)
	case msg.Err != nil:
		m.noteSessionError(msg.Err)
		m.setError(fmt.Sprintf("Folder listing failed (%v), partial list saved to %s", msg.Err, path))
	default:
		m.setInfo("Folders loaded and saved to " + path)
	}
}

func (m *Model) handleSearchResult(msg worker.ResultMsg) {
	result, _ := msg.Value.(*search.Result)
	if result == nil {
		m.results.Stop()
		if msg.Err != nil {
			m.setError(msg.Err.Error())
		}
		return
	}

	m.results.SetResult(result)
	for _, s := range result.Subjects {
		for _, o := range s.Failures() {
			m.noteSessionError(o.Err)
		}
	}

	failed := result.FailedFolders()
	switch {
	case msg.Canceled:
		m.setError("Search cancelled, partial results shown")
	case msg.Err != nil:
		m.setError(msg.Err.Error())
	case failed > 0:
		m.setError(fmt.Sprintf("Search finished, %d folder queries failed (marked %s)", failed, search.MarkWarning))
	default:
		m.setInfo(fmt.Sprintf("Search finished in %s", msg.Elapsed.Round(time.Second)))
	}
}

// noteSessionError records that the connection is gone. There is no
// reconnect; the header tells the user to restart.
func (m *Model) noteSessionError(err error) {
	if errors.Is(err, mail.ErrSessionBroken) || mail.IsTimeout(err) {
		m.connLost = true
	}
}
