package search

import (
	"fmt"
	"strings"

	"github.com/nhle/mailcheck/internal/mail"
)

// Result markers.
const (
	MarkFound    = "✔"
	MarkNotFound = "✘"
	MarkWarning  = "⚠"
)

// Line renders the summary line of one subject.
func Line(r SubjectResult) string {
	if r.Count > 0 {
		return fmt.Sprintf("%s %s (matches: %d)", MarkFound, r.Subject, r.Count)
	}
	return fmt.Sprintf("%s %s (no matches)", MarkNotFound, r.Subject)
}

// Render returns the read-only result listing: one line per subject, and
// below a subject the folders that could not be searched, so a failure
// is not mistaken for a true zero.
func Render(r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Day: %s\n\n", r.Start.Format(DateLayout))

	if len(r.Subjects) == 0 {
		b.WriteString("No subjects configured.\n")
	}

	for _, s := range r.Subjects {
		b.WriteString(Line(s))
		b.WriteByte('\n')

		for _, f := range s.Failures() {
			fmt.Fprintf(&b, "    %s %s: %s\n", MarkWarning, f.Folder, reason(f.Err))
		}
	}

	if r.Canceled {
		b.WriteString("\nSearch cancelled, results are partial.\n")
	}

	return b.String()
}

func reason(err error) string {
	if mail.IsTimeout(err) {
		return "timed out"
	}
	return err.Error()
}
