package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Manager routes requests to named accounts. The first configured
// account is the primary and serves requests that name none.
type Manager struct {
	clients map[string]*Client
	primary string
	logger  *slog.Logger
}

// NewManager builds a lazily connected Client per account.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		clients: make(map[string]*Client, len(cfg.Accounts)),
		logger:  logger,
	}
	for i, acct := range cfg.Accounts {
		m.clients[acct.Name] = NewClient(acct.IMAP, logger.With("email_account", acct.Name))
		if i == 0 {
			m.primary = acct.Name
		}
	}
	return m
}

// Account returns the named client, or the primary when name is empty.
func (m *Manager) Account(name string) (*Client, error) {
	if name == "" {
		name = m.primary
	}
	if name == "" {
		return nil, fmt.Errorf("no email accounts configured")
	}
	c, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("email account %q not found", name)
	}
	return c, nil
}

// Primary returns the default account name.
func (m *Manager) Primary() string { return m.primary }

// AccountNames returns the configured names, sorted.
func (m *Manager) AccountNames() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListMessages lists recent messages in account.
func (m *Manager) ListMessages(ctx context.Context, account string, opts ListOptions) ([]Envelope, error) {
	c, err := m.Account(account)
	if err != nil {
		return nil, err
	}
	return c.ListMessages(ctx, opts)
}

// SearchMessages searches account.
func (m *Manager) SearchMessages(ctx context.Context, account string, opts SearchOptions) ([]Envelope, error) {
	c, err := m.Account(account)
	if err != nil {
		return nil, err
	}
	return c.SearchMessages(ctx, opts)
}

// ReadMessage fetches one message from account.
func (m *Manager) ReadMessage(ctx context.Context, account, folder string, uid uint32) (*Message, error) {
	c, err := m.Account(account)
	if err != nil {
		return nil, err
	}
	return c.ReadMessage(ctx, folder, uid)
}

// Close closes every connection.
func (m *Manager) Close() {
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Warn("closing email client", "account", name, "error", err)
		}
	}
}
