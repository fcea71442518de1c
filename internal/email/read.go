package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

const (
	// maxBodySize caps the text handed to the model.
	maxBodySize = 32 * 1024
	// maxRawMessageSize caps how much of the literal is buffered; the
	// rest is drained.
	maxRawMessageSize = 5 * 1024 * 1024
)

// ReadMessage fetches one message by UID and reduces its body to text.
// The message is fetched with PEEK so its \Seen flag is untouched.
func (c *Client) ReadMessage(ctx context.Context, folder string, uid uint32) (*Message, error) {
	if folder == "" {
		folder = DefaultFolder
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	var set imap.UIDSet
	set.AddNum(imap.UID(uid))
	cmd := c.conn.Fetch(set, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	})

	msg := cmd.Next()
	if msg == nil {
		_ = cmd.Close()
		return nil, fmt.Errorf("message %d not found in %s", uid, folder)
	}

	out := &Message{Envelope: Envelope{Folder: folder, Unread: true}}
	var raw []byte
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			out.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				if f == imap.FlagSeen {
					out.Unread = false
				}
			}
		case imapclient.FetchItemDataRFC822Size:
			out.Size = uint32(data.Size)
		case imapclient.FetchItemDataEnvelope:
			fillEnvelope(&out.Envelope, data.Envelope)
			if e := data.Envelope; e != nil {
				out.MessageID = e.MessageID
				for _, a := range e.Cc {
					out.Cc = append(out.Cc, formatAddress(a))
				}
				if len(e.ReplyTo) > 0 {
					out.ReplyTo = formatAddress(e.ReplyTo[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			// The literal must be consumed before the next item.
			if data.Literal == nil {
				continue
			}
			b, err := io.ReadAll(io.LimitReader(data.Literal, maxRawMessageSize))
			drainLiteral(data.Literal)
			if err != nil {
				c.logger.Debug("reading body literal", "uid", uid, "error", err)
				continue
			}
			raw = b
		}
	}
	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch message %d: %w", uid, err)
	}

	if raw != nil {
		body, err := extractBody(bytes.NewReader(raw), c.logger)
		if err != nil {
			c.logger.Debug("body parse error", "uid", uid, "error", err)
		}
		out.Body = body
	}
	return out, nil
}

// extractBody walks the MIME tree and returns the first text/plain
// part, falling back to the first text/html part rendered as text.
// Unknown charsets are tolerated: the part is still read.
func extractBody(r io.Reader, logger *slog.Logger) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return "", fmt.Errorf("create mail reader: %w", err)
	}

	var plain, rich string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return pickBody(plain, rich), fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "text/plain" && ct != "text/html" {
			continue
		}

		b, err := io.ReadAll(io.LimitReader(part.Body, maxBodySize*4))
		if err != nil {
			logger.Debug("reading MIME part", "content_type", ct, "error", err)
			continue
		}
		switch {
		case ct == "text/plain" && plain == "":
			plain = string(b)
		case ct == "text/html" && rich == "":
			rich = htmlToText(string(b))
		}
	}
	return pickBody(plain, rich), nil
}

func pickBody(plain, rich string) string {
	body := strings.TrimSpace(plain)
	if body == "" {
		body = rich
	}
	if len(body) > maxBodySize {
		body = body[:maxBodySize] + "\n\n[truncated: message exceeds 32KB]"
	}
	return body
}
