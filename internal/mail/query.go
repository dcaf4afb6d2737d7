package mail

import (
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// searchCriteria builds the server-side part of q. IMAP SINCE and BEFORE
// compare whole dates in the server's own zone, so the window is widened
// by one day on each side and narrowed again by matches.
func searchCriteria(q Query) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}

	if !q.Start.IsZero() {
		criteria.Since = calendarDate(q.Start).AddDate(0, 0, -1)
	}
	if !q.End.IsZero() {
		criteria.Before = calendarDate(q.End).AddDate(0, 0, 1)
	}
	if q.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "Subject",
			Value: q.Subject,
		})
	}

	return criteria
}

// calendarDate drops the clock of t while keeping its local date.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// matches applies q exactly to a fetched message.
func matches(q Query, msg Message) bool {
	if !q.Start.IsZero() && msg.Received.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !msg.Received.Before(q.End) {
		return false
	}
	return ContainsFold(msg.Subject, q.Subject)
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// messageFromBuffer extracts a Message from a FetchMessageBuffer.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	msg := Message{
		UID:      uint32(buf.UID),
		Received: buf.InternalDate,
	}

	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		if msg.Received.IsZero() {
			msg.Received = buf.Envelope.Date
		}
		if len(buf.Envelope.Sender) > 0 {
			msg.From = buf.Envelope.Sender[0].Addr()
		} else if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			msg.Seen = true
		}
	}

	return msg
}

// collectMatches drains next and keeps the messages matching q. Reading
// continues past a broken message so the command is fully consumed; the
// first such error is returned with whatever matched.
func collectMatches(
	q Query, next func() (*imapclient.FetchMessageBuffer, bool, error),
) ([]Message, error) {
	var (
		messages []Message
		firstErr error
	)
	for {
		buf, ok, err := next()
		if !ok {
			break
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		msg := messageFromBuffer(buf)
		if matches(q, msg) {
			messages = append(messages, msg)
		}
	}
	return messages, firstErr
}
