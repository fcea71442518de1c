package email

import (
	"context"
	"fmt"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const defaultLimit = 10

// ListMessages returns the newest messages across opts.Folders
// (INBOX when empty), newest first, at most opts.Limit in total.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) ([]Envelope, error) {
	folders := opts.Folders
	if len(folders) == 0 {
		folders = []string{DefaultFolder}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	criteria := &imap.SearchCriteria{}
	if opts.Unseen {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	if opts.Query != "" {
		criteria.Text = append(criteria.Text, opts.Query)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	var all []Envelope
	for _, folder := range folders {
		envs, err := c.searchLocked(folder, criteria, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, envs...)
	}
	return newestFirst(all, limit), nil
}

// SearchMessages runs a text, sender and date search in one folder.
func (c *Client) SearchMessages(ctx context.Context, opts SearchOptions) ([]Envelope, error) {
	folder := opts.Folder
	if folder == "" {
		folder = DefaultFolder
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	criteria := &imap.SearchCriteria{Since: opts.Since, Before: opts.Before}
	if opts.Query != "" {
		criteria.Text = append(criteria.Text, opts.Query)
	}
	if opts.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: opts.From})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	envs, err := c.searchLocked(folder, criteria, limit)
	if err != nil {
		return nil, err
	}
	return newestFirst(envs, limit), nil
}

// searchLocked selects folder, runs criteria, and fetches envelopes
// for the newest limit hits. Caller holds mu.
func (c *Client) searchLocked(folder string, criteria *imap.SearchCriteria, limit int) ([]Envelope, error) {
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}
	data, err := c.conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", folder, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return []Envelope{}, nil
	}

	cmd := c.conn.Fetch(newest(uids, limit), &imap.FetchOptions{
		UID:        true,
		Envelope:   true,
		Flags:      true,
		RFC822Size: true,
	})
	var out []Envelope
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		env := collectEnvelope(msg)
		if env.UID == 0 {
			c.logger.Debug("skipping message without UID", "folder", folder)
			continue
		}
		env.Folder = folder
		out = append(out, env)
	}
	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes from %s: %w", folder, err)
	}
	return out, nil
}

// collectEnvelope drains msg into an Envelope.
func collectEnvelope(msg *imapclient.FetchMessageData) Envelope {
	env := Envelope{Unread: true}
	for {
		item := msg.Next()
		if item == nil {
			return env
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			env.Unread = !slices.Contains(data.Flags, imap.FlagSeen)
		case imapclient.FetchItemDataRFC822Size:
			env.Size = uint32(data.Size)
		case imapclient.FetchItemDataEnvelope:
			fillEnvelope(&env, data.Envelope)
		case imapclient.FetchItemDataBodySection:
			drainLiteral(data.Literal)
		}
	}
}

func fillEnvelope(env *Envelope, e *imap.Envelope) {
	if e == nil {
		return
	}
	env.Date = e.Date
	env.Subject = e.Subject
	if len(e.From) > 0 {
		env.From = formatAddress(e.From[0])
	}
	for _, a := range e.To {
		env.To = append(env.To, formatAddress(a))
	}
}

// newestFirst orders by date descending, UID as tiebreak, and trims to
// limit. The result is never nil so an empty search encodes as [].
func newestFirst(envs []Envelope, limit int) []Envelope {
	if envs == nil {
		return []Envelope{}
	}
	slices.SortStableFunc(envs, func(a, b Envelope) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return int(int64(b.UID) - int64(a.UID))
	})
	if limit > 0 && len(envs) > limit {
		envs = envs[:limit]
	}
	return envs
}

// formatAddress renders "Name <user@host>" or the bare address.
func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}
