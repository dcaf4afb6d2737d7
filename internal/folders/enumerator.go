package folders

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailcheck/internal/mail"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/store"
)

// specialUse lists the RFC 6154 attributes that mark a system folder.
var specialUse = []imap.MailboxAttr{
	imap.MailboxAttrAll,
	imap.MailboxAttrArchive,
	imap.MailboxAttrDrafts,
	imap.MailboxAttrFlagged,
	imap.MailboxAttrJunk,
	imap.MailboxAttrSent,
	imap.MailboxAttrTrash,
}

// wellKnown holds lower-cased names of system folders on servers that do
// not advertise SPECIAL-USE, including Exchange defaults.
var wellKnown = map[string]bool{
	"drafts":               true,
	"sent":                 true,
	"sent items":           true,
	"sent messages":        true,
	"sent mail":            true,
	"trash":                true,
	"deleted items":        true,
	"deleted messages":     true,
	"junk":                 true,
	"junk e-mail":          true,
	"junk email":           true,
	"spam":                 true,
	"outbox":               true,
	"archive":              true,
	"conversation history": true,
	"sync issues":          true,
	"calendar":             true,
	"contacts":             true,
	"journal":              true,
	"notes":                true,
	"tasks":                true,
}

// IsDistinguished reports whether f is a system folder that is kept out
// of the user-configurable list.
func IsDistinguished(f mail.Folder) bool {
	if f.IsInbox() || !f.Selectable() {
		return true
	}
	for _, attr := range specialUse {
		if f.HasAttr(attr) {
			return true
		}
	}
	return isTopLevel(f) && wellKnown[strings.ToLower(leafName(f))]
}

// leafName returns the last path component of a hierarchical name.
func leafName(f mail.Folder) string {
	if f.Delim == 0 {
		return f.Name
	}
	if i := strings.LastIndex(f.Name, string(f.Delim)); i >= 0 {
		return f.Name[i+1:]
	}
	return f.Name
}

// isTopLevel reports whether f sits at the root or directly below INBOX,
// where servers such as Courier place their system folders.
func isTopLevel(f mail.Folder) bool {
	if f.Delim == 0 {
		return true
	}
	parts := strings.Split(f.Name, string(f.Delim))
	switch len(parts) {
	case 1:
		return true
	case 2:
		return mail.Folder{Name: parts[0]}.IsInbox()
	default:
		return false
	}
}

// SaveError reports that the folder list could not be written to the
// settings file. Nothing on disk changed.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return "saving folders: " + e.Err.Error()
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Enumerate returns the inbox followed by every non-distinguished folder
// of the session's tree, each disabled. When the traversal fails part way
// it returns what was collected together with the error.
func Enumerate(ctx context.Context, session mail.Session) ([]model.Folder, error) {
	seen := make(map[string]bool)
	out := []model.Folder{}

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, model.Folder{Name: name, Enabled: false})
	}

	add(session.Inbox().Name)

	tree, err := session.Walk(ctx)
	for _, f := range tree {
		if IsDistinguished(f) {
			continue
		}
		add(f.Name)
	}

	if err != nil {
		return out, fmt.Errorf("walking folder tree: %w", err)
	}

	return out, nil
}

// Reload enumerates the session's folders, replaces the folder list of
// settings, and saves the whole document. Enabled flags are reset unless
// preserve is set, in which case folders that survived keep their flag.
// A partial traversal is still saved; its error is returned afterwards.
func Reload(
	ctx context.Context,
	session mail.Session,
	s store.Store,
	settings *model.Settings,
	preserve bool,
	log logrus.FieldLogger,
) ([]model.Folder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	folders, walkErr := Enumerate(ctx, session)
	if walkErr != nil {
		log.WithError(walkErr).WithField("collected", len(folders)).
			Error("Folder listing failed, saving partial list")
	}

	if preserve {
		previous := make(map[string]bool, len(settings.Folders))
		for _, f := range settings.Folders {
			previous[f.Name] = f.Enabled
		}
		for i := range folders {
			folders[i].Enabled = previous[folders[i].Name]
		}
	}

	settings.Folders = folders
	if err := s.Save(settings); err != nil {
		return folders, &SaveError{Err: err}
	}

	log.WithField("count", len(folders)).WithField("path", s.Path()).
		Info("Folders loaded and saved")

	return folders, walkErr
}
