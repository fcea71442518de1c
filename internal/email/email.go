// Package email reads IMAP mailboxes for the mail actions: listing
// recent messages, searching, and fetching a single message as text.
// Several named accounts may be configured; requests pick one by name.
package email

import (
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
)

// DefaultFolder is used when a request names no folder.
const DefaultFolder = "INBOX"

// drainLiteral discards an unread IMAP literal so the stream stays in
// sync.
func drainLiteral(r imap.LiteralReader) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

// Envelope is list-view metadata for one message.
type Envelope struct {
	UID     uint32    `json:"id"`
	Folder  string    `json:"folder"`
	Date    time.Time `json:"date"`
	From    string    `json:"from"`
	To      []string  `json:"to,omitempty"`
	Subject string    `json:"subject"`
	Unread  bool      `json:"unread"`
	Size    uint32    `json:"size"`
}

// Message is a fetched message with its body reduced to plain text.
type Message struct {
	Envelope
	MessageID string   `json:"message_id,omitempty"`
	Cc        []string `json:"cc,omitempty"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	// Body is the text/plain part, or the text/html part rendered to
	// text when no plain part exists.
	Body string `json:"body"`
}

// ListOptions selects recent messages. Folders, when set, are searched
// in turn and the results merged newest first.
type ListOptions struct {
	Folders []string
	Query   string
	Unseen  bool
	Limit   int
}

// SearchOptions drives a free-text search.
type SearchOptions struct {
	Folder string
	Query  string
	From   string
	Since  time.Time
	Before time.Time
	Limit  int
}
