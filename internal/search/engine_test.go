package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcheck/internal/mail"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/tests/testutil"
)

func budapest(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, loc)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestRunEndToEnd(t *testing.T) {
	loc := budapest(t)
	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: "Inbox"}, {Name: "Processed"}},
		Messages: map[string][]mail.Message{
			"Inbox": {
				{From: "a@example.com", Received: at(loc, 1, 9), Subject: "Invoice 1001"},
				{From: "b@example.com", Received: at(loc, 1, 17), Subject: "FW: invoice 1002", Seen: true},
				{From: "c@example.com", Received: at(loc, 2, 9), Subject: "Invoice 1003"},
			},
			"Processed": {
				{From: "d@example.com", Received: at(loc, 1, 11), Subject: "Receipt #7"},
				{From: "e@example.com", Received: time.Date(2024, 2, 29, 23, 30, 0, 0, loc), Subject: "Receipt #6"},
			},
		},
	}

	date, err := ParseDate("2024-03-01", loc)
	require.NoError(t, err)

	engine := NewEngine(session, loc, quietLogger())
	result, err := engine.Run(context.Background(), Request{
		Date:     date,
		Subjects: []string{"Invoice", "Receipt"},
		Folders: []model.Folder{
			{Name: "Inbox", Enabled: true},
			{Name: "Processed", Enabled: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Invoice": 2, "Receipt": 1}, result.Counts())
	assert.Equal(t, at(loc, 1, 0), result.Start)
	assert.Equal(t, at(loc, 2, 0), result.End)
	assert.NotEmpty(t, result.RunID)

	rendered := Render(result)
	assert.Contains(t, rendered, "✔ Invoice (matches: 2)")
	assert.Contains(t, rendered, "✔ Receipt (matches: 1)")
	assert.NotContains(t, rendered, MarkNotFound)
	assert.NotContains(t, rendered, MarkWarning)
}

func TestRunSkipsDisabledFolders(t *testing.T) {
	loc := budapest(t)
	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		Messages: map[string][]mail.Message{
			"A": {{Received: at(loc, 1, 8), Subject: "Invoice"}},
			"B": {
				{Received: at(loc, 1, 8), Subject: "Invoice"},
				{Received: at(loc, 1, 9), Subject: "Invoice"},
			},
			"C": {{Received: at(loc, 1, 8), Subject: "Invoice"}},
		},
	}

	engine := NewEngine(session, loc, quietLogger())
	result, err := engine.Run(context.Background(), Request{
		Date:     at(loc, 1, 15),
		Subjects: []string{"Invoice"},
		Folders: []model.Folder{
			{Name: "A", Enabled: true},
			{Name: "B", Enabled: false},
			{Name: "C", Enabled: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Invoice": 2}, result.Counts())
	for _, call := range session.Calls() {
		assert.NotEqual(t, "B", call.Folder, "disabled folder must not be queried")
	}
}

func TestRunContinuesAfterFolderFailure(t *testing.T) {
	loc := budapest(t)
	timeout := &mail.TimeoutError{Op: "searching Slow", Timeout: 300 * time.Second, Err: errors.New("i/o timeout")}
	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: "Slow"}, {Name: "Fast"}},
		Messages: map[string][]mail.Message{
			"Slow": {{Received: at(loc, 1, 8), Subject: "Invoice"}},
			"Fast": {
				{Received: at(loc, 1, 8), Subject: "Invoice"},
				{Received: at(loc, 1, 9), Subject: "Receipt"},
			},
		},
		QueryErrs: map[string]error{"Slow": timeout},
	}

	var progress []FolderOutcome
	engine := NewEngine(session, loc, quietLogger())
	engine.Progress = func(o FolderOutcome) { progress = append(progress, o) }

	result, err := engine.Run(context.Background(), Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice", "Receipt"},
		Folders: []model.Folder{
			{Name: "Slow", Enabled: true},
			{Name: "Fast", Enabled: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Invoice": 1, "Receipt": 1}, result.Counts())
	assert.Len(t, session.Calls(), 4)
	assert.Len(t, progress, 4)
	assert.Equal(t, 2, result.FailedFolders())

	failures := result.Subjects[0].Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "Slow", failures[0].Folder)
	assert.Zero(t, failures[0].Count)
	assert.True(t, mail.IsTimeout(failures[0].Err))

	assert.Contains(t, Render(result), "⚠ Slow: timed out")
}

func TestRunStaleFolderIsFailure(t *testing.T) {
	loc := budapest(t)
	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: "Processed"}},
	}

	engine := NewEngine(session, loc, quietLogger())
	result, err := engine.Run(context.Background(), Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice"},
		Folders: []model.Folder{
			{Name: "Renamed", Enabled: true},
			{Name: "Processed", Enabled: true},
		},
	})
	require.NoError(t, err)

	failures := result.Subjects[0].Failures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, ErrFolderNotFound)
	assert.Equal(t, []testutil.QueryCall{{Folder: "Processed", Subject: "Invoice"}}, session.Calls())

	rendered := Render(result)
	assert.Contains(t, rendered, "✘ Invoice (no matches)")
	assert.Contains(t, rendered, "⚠ Renamed: folder not found")
}

func TestRunResolvesInboxWithoutListing(t *testing.T) {
	loc := budapest(t)
	session := &testutil.FakeSession{
		Messages: map[string][]mail.Message{
			mail.InboxName: {{Received: at(loc, 1, 8), Subject: "Invoice"}},
		},
	}

	result, err := NewEngine(session, loc, quietLogger()).Run(context.Background(), Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice"},
		Folders:  []model.Folder{{Name: mail.InboxName, Enabled: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts()["Invoice"])
}

func TestRunResolvesInboxCaseInsensitively(t *testing.T) {
	loc := budapest(t)
	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: mail.InboxName}, {Name: "Processed"}},
		Messages: map[string][]mail.Message{
			mail.InboxName: {{Received: at(loc, 1, 8), Subject: "Invoice"}},
		},
	}

	result, err := NewEngine(session, loc, quietLogger()).Run(context.Background(), Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice"},
		Folders:  []model.Folder{{Name: "Inbox", Enabled: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Invoice": 1}, result.Counts())
	assert.Empty(t, result.Subjects[0].Failures())
	assert.Equal(t, []testutil.QueryCall{{Folder: mail.InboxName, Subject: "Invoice"}}, session.Calls())
}

func TestRunCancelledBetweenFolders(t *testing.T) {
	loc := budapest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: "A"}, {Name: "B"}},
		Messages: map[string][]mail.Message{
			"A": {{Received: at(loc, 1, 8), Subject: "Invoice"}},
			"B": {{Received: at(loc, 1, 8), Subject: "Invoice"}},
		},
		BeforeQuery: func(call testutil.QueryCall) {
			if call.Folder == "A" {
				cancel()
			}
		},
	}

	result, err := NewEngine(session, loc, quietLogger()).Run(ctx, Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice", "Receipt"},
		Folders: []model.Folder{
			{Name: "A", Enabled: true},
			{Name: "B", Enabled: true},
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.True(t, result.Canceled)
	assert.Len(t, session.Calls(), 1)
	assert.Equal(t, map[string]int{"Invoice": 1}, result.Counts())
	assert.Contains(t, Render(result), "cancelled")
}

func TestRunWithoutEnabledFolders(t *testing.T) {
	loc := budapest(t)
	session := &testutil.FakeSession{}

	result, err := NewEngine(session, loc, quietLogger()).Run(context.Background(), Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice"},
		Folders:  []model.Folder{{Name: "A"}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Invoice": 0}, result.Counts())
	assert.Empty(t, session.Calls())
	assert.Contains(t, Render(result), "✘ Invoice (no matches)")
}

func TestRunLogsMatches(t *testing.T) {
	loc := budapest(t)
	logger, hook := test.NewNullLogger()
	session := &testutil.FakeSession{
		Folders: []mail.Folder{{Name: "A"}},
		Messages: map[string][]mail.Message{
			"A": {{From: "billing@example.com", Received: at(loc, 1, 8), Subject: "Invoice 5", Seen: true}},
		},
	}

	_, err := NewEngine(session, loc, logger).Run(context.Background(), Request{
		Date:     at(loc, 1, 0),
		Subjects: []string{"Invoice"},
		Folders:  []model.Folder{{Name: "A", Enabled: true}},
	})
	require.NoError(t, err)

	var matchEntry *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Invoice 5" {
			matchEntry = e
		}
	}
	require.NotNil(t, matchEntry)
	assert.Equal(t, "billing@example.com", matchEntry.Data["from"])
	assert.Equal(t, "read", matchEntry.Data["state"])
	assert.Equal(t, "2024-03-01 08:00:00", matchEntry.Data["received"])
	assert.Equal(t, "A", matchEntry.Data["folder"])
}

func TestParseDate(t *testing.T) {
	loc := budapest(t)

	got, err := ParseDate(" 2024-03-01 ", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), got)

	_, err = ParseDate("2024/03/01", loc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")

	_, err = ParseDate("2024-02-30", loc)
	require.Error(t, err)
}

func TestDayWindowAcrossDST(t *testing.T) {
	loc := budapest(t)
	start, end := DayWindow(time.Date(2024, 3, 31, 12, 0, 0, 0, loc), loc)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, loc), end)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}
