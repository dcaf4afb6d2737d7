package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailcheck/internal/mail"
	"github.com/nhle/mailcheck/internal/model"
)

// DateLayout is the accepted format of the search day.
const DateLayout = "2006-01-02"

// ErrFolderNotFound is recorded for an enabled folder that no longer
// exists on the server.
var ErrFolderNotFound = errors.New("folder not found")

// Request describes one search run.
type Request struct {
	// Date is the calendar day to search; its clock is ignored.
	Date time.Time

	// Subjects are the substrings to look for, in report order.
	Subjects []string

	// Folders is the configured folder list. Only enabled folders are
	// queried.
	Folders []model.Folder
}

// FolderOutcome is the result of one (subject, folder) query: either a
// count or the reason the folder could not be searched.
type FolderOutcome struct {
	Subject string
	Folder  string
	Count   int
	Err     error
}

// Failed reports whether the folder could not be searched. A failed
// outcome always has a zero count.
func (o FolderOutcome) Failed() bool {
	return o.Err != nil
}

// SubjectResult aggregates the outcomes of one subject.
type SubjectResult struct {
	Subject  string
	Count    int
	Outcomes []FolderOutcome
}

// Failures returns the outcomes that failed.
func (r SubjectResult) Failures() []FolderOutcome {
	var failed []FolderOutcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Result is built fresh for every run and never persisted.
type Result struct {
	RunID    string
	Start    time.Time
	End      time.Time
	Subjects []SubjectResult
	Canceled bool
}

// Counts returns the per-subject totals.
func (r *Result) Counts() map[string]int {
	counts := make(map[string]int, len(r.Subjects))
	for _, s := range r.Subjects {
		counts[s.Subject] = s.Count
	}
	return counts
}

// FailedFolders returns the number of failed (subject, folder) queries.
func (r *Result) FailedFolders() int {
	n := 0
	for _, s := range r.Subjects {
		n += len(s.Failures())
	}
	return n
}

// Engine runs subject searches against one mail session.
type Engine struct {
	session mail.Session
	loc     *time.Location
	log     logrus.FieldLogger

	// Progress, when set, is called after every folder query.
	Progress func(FolderOutcome)
}

// NewEngine creates an engine whose days are taken in loc.
func NewEngine(session mail.Session, loc *time.Location, log logrus.FieldLogger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{session: session, loc: loc, log: log}
}

// DayWindow returns [00:00, next day 00:00) of date's calendar day in loc.
func DayWindow(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate parses a YYYY-MM-DD day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return t, nil
}

// Run searches every enabled folder for every subject. Folder failures
// are recorded in the result and do not stop the run. Cancellation is
// honored between folder queries; the partial result is returned along
// with the context error.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	start, end := DayWindow(req.Date, e.loc)
	result := &Result{
		RunID: uuid.NewString(),
		Start: start,
		End:   end,
	}

	log := e.log.WithField("run", result.RunID)
	log.WithField("day", start.Format(DateLayout)).
		WithField("subjects", len(req.Subjects)).
		Info("Search started")

	var enabled []model.Folder
	for _, f := range req.Folders {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}

	resolve := e.resolver(ctx, enabled, log)

	for _, subject := range req.Subjects {
		sr := SubjectResult{Subject: subject}

		for _, f := range enabled {
			if err := ctx.Err(); err != nil {
				result.Subjects = append(result.Subjects, sr)
				result.Canceled = true
				log.WithError(err).Warn("Search cancelled")
				return result, err
			}

			outcome := e.searchFolder(ctx, resolve, f.Name, mail.Query{
				Start:   start,
				End:     end,
				Subject: subject,
			}, log)

			sr.Count += outcome.Count
			sr.Outcomes = append(sr.Outcomes, outcome)

			if e.Progress != nil {
				e.Progress(outcome)
			}
		}

		result.Subjects = append(result.Subjects, sr)
	}

	log.WithField("failed_folders", result.FailedFolders()).Info("Search finished")

	return result, nil
}

// resolver lists the folder tree once and returns an exact-name lookup.
// It is skipped when nothing is enabled.
func (e *Engine) resolver(
	ctx context.Context, enabled []model.Folder, log logrus.FieldLogger,
) func(string) (mail.Folder, error) {
	if len(enabled) == 0 {
		return func(name string) (mail.Folder, error) {
			return mail.Folder{}, fmt.Errorf("%w: %s", ErrFolderNotFound, name)
		}
	}

	tree, walkErr := e.session.Walk(ctx)
	if walkErr != nil {
		log.WithError(walkErr).Warn("Folder listing incomplete")
	}

	byName := make(map[string]mail.Folder, len(tree)+1)
	inbox := e.session.Inbox()
	byName[inbox.Name] = inbox
	for _, f := range tree {
		byName[f.Name] = f
	}

	return func(name string) (mail.Folder, error) {
		if f, ok := byName[name]; ok {
			return f, nil
		}
		// INBOX is case-insensitive on every server.
		if (mail.Folder{Name: name}).IsInbox() {
			return inbox, nil
		}
		if walkErr != nil {
			return mail.Folder{}, fmt.Errorf("%w: %s (listing failed: %v)", ErrFolderNotFound, name, walkErr)
		}
		return mail.Folder{}, fmt.Errorf("%w: %s", ErrFolderNotFound, name)
	}
}

func (e *Engine) searchFolder(
	ctx context.Context,
	resolve func(string) (mail.Folder, error),
	name string,
	q mail.Query,
	log logrus.FieldLogger,
) FolderOutcome {
	outcome := FolderOutcome{Subject: q.Subject, Folder: name}
	flog := log.WithField("subject", q.Subject).WithField("folder", name)

	folder, err := resolve(name)
	if err != nil {
		flog.WithError(err).Warn("Folder search failed")
		outcome.Err = err
		return outcome
	}

	messages, err := e.session.Query(ctx, folder, q)
	if err != nil {
		if mail.IsTimeout(err) {
			flog.WithError(err).Warn("Folder search timed out")
		} else {
			flog.WithError(err).Warn("Folder search failed")
		}
		outcome.Err = err
		return outcome
	}

	outcome.Count = len(messages)
	flog.WithField("matches", outcome.Count).Info("Folder searched")

	for _, m := range messages {
		state := "unread"
		if m.Seen {
			state = "read"
		}
		flog.WithFields(logrus.Fields{
			"from":     m.From,
			"received": m.Received.In(e.loc).Format(time.DateTime),
			"state":    state,
		}).Info(m.Subject)
	}

	return outcome
}
