package mail

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"
)

// InboxName is the reserved IMAP name of the inbox.
const InboxName = "INBOX"

// Folder describes one mailbox of the server's folder tree.
type Folder struct {
	Name  string
	Delim rune
	Attrs []imap.MailboxAttr
}

// HasAttr reports whether the folder carries the given LIST attribute.
func (f Folder) HasAttr(attr imap.MailboxAttr) bool {
	for _, a := range f.Attrs {
		if equalFoldASCII(string(a), string(attr)) {
			return true
		}
	}
	return false
}

// Selectable reports whether messages can be queried in the folder.
func (f Folder) Selectable() bool {
	return !f.HasAttr(imap.MailboxAttrNoSelect) && !f.HasAttr(imap.MailboxAttrNonExistent)
}

// IsInbox reports whether the folder is the inbox. INBOX is case-insensitive.
func (f Folder) IsInbox() bool {
	return equalFoldASCII(f.Name, InboxName)
}

// Message holds the fields of a matched message shown in diagnostics.
type Message struct {
	UID      uint32
	From     string
	Received time.Time
	Seen     bool
	Subject  string
}

// Query selects the messages received in [Start, End) whose subject
// contains Subject, ignoring case. An empty Subject matches every message.
type Query struct {
	Start   time.Time
	End     time.Time
	Subject string
}

// Session is one authenticated connection to a mail server.
type Session interface {
	// Account returns the login the session was opened with.
	Account() string

	// Inbox returns the inbox folder.
	Inbox() Folder

	// Walk lists every folder of the tree. On failure it returns the
	// folders received so far together with the error.
	Walk(ctx context.Context) ([]Folder, error)

	// Query runs q against a single folder.
	Query(ctx context.Context, folder Folder, q Query) ([]Message, error)

	// Close logs out and releases the connection.
	Close() error
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
