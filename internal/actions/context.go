package actions

import (
	"context"
	"net/http"
)

// Names under which a client selects the mail account to read.
const (
	MailAccountCookie = "hearth_mail_account"
	MailAccountHeader = "X-Hearth-Mail-Account"
)

// RequestContext is the per-connection snapshot of handshake headers and
// cookies. It is captured once at connect and never refreshed. Handlers
// get their own copy.
type RequestContext struct {
	SessionID string
	Header    http.Header
	Cookies   map[string]string
}

// NewRequestContext snapshots r. A nil request yields an empty context.
func NewRequestContext(sessionID string, r *http.Request) *RequestContext {
	rc := &RequestContext{
		SessionID: sessionID,
		Header:    http.Header{},
		Cookies:   map[string]string{},
	}
	if r == nil {
		return rc
	}
	rc.Header = r.Header.Clone()
	for _, c := range r.Cookies() {
		rc.Cookies[c.Name] = c.Value
	}
	return rc
}

// Clone returns a deep copy. Cloning nil returns an empty context.
func (rc *RequestContext) Clone() *RequestContext {
	if rc == nil {
		return NewRequestContext("", nil)
	}
	out := &RequestContext{
		SessionID: rc.SessionID,
		Header:    rc.Header.Clone(),
		Cookies:   make(map[string]string, len(rc.Cookies)),
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	for k, v := range rc.Cookies {
		out.Cookies[k] = v
	}
	return out
}

// Cookie returns the named cookie value, or "".
func (rc *RequestContext) Cookie(name string) string {
	if rc == nil {
		return ""
	}
	return rc.Cookies[name]
}

// Get returns the first value of the named header, or "".
func (rc *RequestContext) Get(name string) string {
	if rc == nil {
		return ""
	}
	return rc.Header.Get(name)
}

// MailAccount returns the account the client asked for. The cookie
// takes precedence over the header; empty means the primary account.
func (rc *RequestContext) MailAccount() string {
	if v := rc.Cookie(MailAccountCookie); v != "" {
		return v
	}
	return rc.Get(MailAccountHeader)
}

type contextKey string

const conversationIDKey contextKey = "conversation_id"

// WithConversationID tags ctx with the conversation an action runs for.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFromContext returns the tagged conversation id, or "".
func ConversationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(conversationIDKey).(string)
	return id
}
