package actions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nugget/hearth/internal/email"
)

func (d *Dispatcher) registerMail() {
	d.register(&Definition{
		Name:        "list_emails",
		Domain:      DomainMail,
		Description: "List recent emails, newest first",
		Parameters: schema(map[string]any{
			"maxResults": prop("integer", "Maximum messages (default 10)"),
			"q":          prop("string", "Text the message must contain"),
			"labelIds":   prop("array", `Folders to read; "UNREAD" restricts to unread mail (default INBOX)`),
		}),
		handler: d.listEmails,
	})
	d.register(&Definition{
		Name:        "search_emails",
		Domain:      DomainMail,
		Description: "Search email by text",
		Parameters: schema(map[string]any{
			"query":      prop("string", "Search text"),
			"from":       prop("string", "Sender name or address"),
			"folder":     prop("string", "Folder to search (default INBOX)"),
			"maxResults": prop("integer", "Maximum messages (default 10)"),
		}, "query"),
		handler: d.searchEmails,
	})
	d.register(&Definition{
		Name:        "get_email",
		Domain:      DomainMail,
		Description: "Read one email as text",
		Parameters: schema(map[string]any{
			"messageId": prop("string", "Message id from list_emails or search_emails"),
			"folder":    prop("string", "Folder the message is in (default INBOX)"),
		}, "messageId"),
		handler: d.getEmail,
	})
}

func (d *Dispatcher) listEmails(ctx context.Context, params map[string]any, rc *RequestContext) (any, error) {
	if d.p.Mail == nil {
		return nil, ErrNotConfigured
	}
	opts := email.ListOptions{Query: str(params, "q")}
	n, ok, err := num(params, "maxResults")
	if err != nil {
		return nil, err
	}
	if ok {
		opts.Limit = n
	}
	for _, label := range strList(params, "labelIds") {
		switch strings.ToUpper(label) {
		case "UNREAD":
			opts.Unseen = true
		case "INBOX":
			opts.Folders = append(opts.Folders, email.DefaultFolder)
		default:
			opts.Folders = append(opts.Folders, label)
		}
	}
	return d.p.Mail.ListMessages(ctx, rc.MailAccount(), opts)
}

func (d *Dispatcher) searchEmails(ctx context.Context, params map[string]any, rc *RequestContext) (any, error) {
	if d.p.Mail == nil {
		return nil, ErrNotConfigured
	}
	query, err := requireStr(params, "query")
	if err != nil {
		return nil, err
	}
	opts := email.SearchOptions{Query: query, From: str(params, "from"), Folder: str(params, "folder")}
	if n, ok, err := num(params, "maxResults"); err != nil {
		return nil, err
	} else if ok {
		opts.Limit = n
	}
	return d.p.Mail.SearchMessages(ctx, rc.MailAccount(), opts)
}

func (d *Dispatcher) getEmail(ctx context.Context, params map[string]any, rc *RequestContext) (any, error) {
	if d.p.Mail == nil {
		return nil, ErrNotConfigured
	}
	raw, err := requireStr(params, "messageId")
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || uid == 0 {
		return nil, fmt.Errorf("messageId %q is not a valid message id", raw)
	}
	return d.p.Mail.ReadMessage(ctx, rc.MailAccount(), str(params, "folder"), uint32(uid))
}
