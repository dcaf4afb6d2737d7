package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailcheck/internal/theme"
)

// Layout holds the terminal dimensions and the fixed bar heights around
// the content area.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	NoticeHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header, notice, and status bars.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		NoticeHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the active panel.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.NoticeHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the title bar with the account on the left and the
// connection state on the right.
func (l Layout) RenderHeader(title, state string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Align(lipgloss.Right).Render(state)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		left,
		l.filler(theme.HeaderStyle, lipgloss.Width(left)+lipgloss.Width(right)),
		right,
	)
}

// RenderNotice renders the one-line notice area. An empty notice keeps
// the line so the layout does not jump.
func (l Layout) RenderNotice(text string, isErr bool) string {
	style := theme.InfoStyle
	if isErr {
		style = theme.ErrorStyle
	}
	return style.
		Width(l.Width).
		MaxHeight(l.NoticeHeight).
		Render(text)
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		rendered,
		l.filler(theme.StatusBarStyle, lipgloss.Width(rendered)),
	)
}

// RenderWithFrame stacks header, content, notice, and status bar.
func (l Layout) RenderWithFrame(header, content, notice, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		notice,
		statusBar,
	)
}

func (l Layout) filler(bar lipgloss.Style, used int) string {
	gap := l.Width - used
	if gap < 0 {
		gap = 0
	}
	return lipgloss.NewStyle().
		Width(gap).
		Background(bar.GetBackground()).
		Render("")
}
