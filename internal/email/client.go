package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Client is one IMAP account. The connection is opened lazily,
// checked with NOOP before each command, and redialed when stale.
// Commands are serialized by mu.
type Client struct {
	cfg    IMAPConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *imapclient.Client
}

// NewClient returns an unconnected client for cfg.
func NewClient(cfg IMAPConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) dialLocked(ctx context.Context) error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	c.logger.Debug("dialing IMAP", "addr", addr, "tls", c.cfg.TLS)

	var (
		conn *imapclient.Client
		err  error
	)
	if c.cfg.TLS {
		conn, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: c.cfg.Host},
		})
	} else {
		conn, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := conn.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("login as %s: %w", c.cfg.Username, err)
	}

	c.conn = conn
	c.logger.Info("IMAP connected", "host", c.cfg.Host, "user", c.cfg.Username)
	return nil
}

// ready makes sure conn is usable. Caller holds mu.
func (c *Client) ready(ctx context.Context) error {
	if c.conn != nil {
		if err := c.conn.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("IMAP connection stale, redialing", "host", c.cfg.Host)
	}
	return c.dialLocked(ctx)
}

// Ping connects if needed and verifies the session.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready(ctx)
}

// Close closes the connection. The client may be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// selectFolder opens folder read-only. Caller holds mu.
func (c *Client) selectFolder(folder string) error {
	if _, err := c.conn.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", folder, err)
	}
	return nil
}

// newest keeps the last n UIDs, which are the most recent.
func newest(uids []imap.UID, n int) imap.UIDSet {
	if n > 0 && len(uids) > n {
		uids = uids[len(uids)-n:]
	}
	var set imap.UIDSet
	for _, uid := range uids {
		set.AddNum(uid)
	}
	return set
}
