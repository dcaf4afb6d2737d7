package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/nhle/mailcheck/internal/mail"
)

// QueryCall records one Query made against a FakeSession.
type QueryCall struct {
	Folder  string
	Subject string
}

// FakeSession is an in-memory mail.Session. Messages are keyed by folder
// name; Query applies the subject and date window like the server would.
type FakeSession struct {
	Login    string
	Folders  []mail.Folder
	Messages map[string][]mail.Message

	// WalkErr is returned by Walk after listing the first WalkLimit folders.
	WalkErr   error
	WalkLimit int

	// QueryErrs fails every query against the named folder.
	QueryErrs map[string]error

	// BeforeQuery runs before each query; tests use it to cancel a run.
	BeforeQuery func(call QueryCall)

	mu     sync.Mutex
	calls  []QueryCall
	closed bool
}

var _ mail.Session = (*FakeSession)(nil)

// Account returns the configured login.
func (f *FakeSession) Account() string {
	return f.Login
}

// Inbox returns the INBOX folder.
func (f *FakeSession) Inbox() mail.Folder {
	return mail.Folder{Name: mail.InboxName}
}

// Walk returns the configured folders.
func (f *FakeSession) Walk(_ context.Context) ([]mail.Folder, error) {
	if f.WalkErr != nil {
		n := f.WalkLimit
		if n > len(f.Folders) {
			n = len(f.Folders)
		}
		return append([]mail.Folder(nil), f.Folders[:n]...), f.WalkErr
	}
	return append([]mail.Folder(nil), f.Folders...), nil
}

// Query returns the stored messages of folder that match q.
func (f *FakeSession) Query(
	_ context.Context, folder mail.Folder, q mail.Query,
) ([]mail.Message, error) {
	call := QueryCall{Folder: folder.Name, Subject: q.Subject}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.BeforeQuery != nil {
		f.BeforeQuery(call)
	}

	if err, ok := f.QueryErrs[folder.Name]; ok {
		return nil, err
	}

	var out []mail.Message
	for _, m := range f.Messages[folder.Name] {
		if !q.Start.IsZero() && m.Received.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && !m.Received.Before(q.End) {
			continue
		}
		if !mail.ContainsFold(m.Subject, q.Subject) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Close marks the session closed.
func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("session already closed")
	}
	f.closed = true
	return nil
}

// Calls returns the queries made so far, in order.
func (f *FakeSession) Calls() []QueryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QueryCall(nil), f.calls...)
}

// Closed reports whether Close has been called.
func (f *FakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
