package folderpicker

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcheck/internal/model"
)

func TestStartPreselectsEnabled(t *testing.T) {
	m := New(80, 20)
	m.Start([]model.Folder{
		{Name: "INBOX", Enabled: true},
		{Name: "Processed"},
		{Name: "Archive/2024", Enabled: true},
	})

	assert.True(t, m.Active())
	assert.Equal(t, []string{"INBOX", "Archive/2024"}, m.pb.selected)
}

func TestEscCancels(t *testing.T) {
	m := New(80, 20)
	m.Start([]model.Folder{{Name: "INBOX"}})

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, CancelMsg{}, cmd())
	assert.False(t, m.Active())
}

func TestEmptyListHint(t *testing.T) {
	m := New(80, 20)
	m.Start(nil)
	assert.Contains(t, m.View(), "Reload folders first")
}
