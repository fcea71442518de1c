// Package transport serves chat sessions over WebSocket. Each
// connection is a Session holding a snapshot of its handshake headers
// and cookies plus two event subscriptions: interim messages from the
// orchestrator and fired alarms from the scheduler. Both are detached
// when the connection closes.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nugget/hearth/internal/actions"
	"github.com/nugget/hearth/internal/config"
	"github.com/nugget/hearth/internal/events"
	"github.com/nugget/hearth/internal/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 16
	// alarmBuffer covers a burst of alarms firing while a write is
	// stalled for up to writeWait.
	alarmBuffer = 64
	inboxBuffer    = 8
)

// Chatter is the orchestrator surface sessions drive.
type Chatter interface {
	Chat(ctx context.Context, req orchestrator.Request) orchestrator.Result
	Clear(ctx context.Context, conversationID string) error
	Forget(conversationID string)
}

// Options configures a Manager.
type Options struct {
	Chatter Chatter
	// ChatEvents carries interim messages from the orchestrator.
	ChatEvents *events.Bus
	// AlarmEvents carries fired alarms.
	AlarmEvents *events.Bus
	// Mode is config.ConversationShared or config.ConversationPerSession.
	Mode string
	// SharedID names the household conversation in shared mode.
	SharedID string
	// CheckOrigin overrides the upgrader's same-origin check.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger
}

// Manager accepts WebSocket connections and owns the live sessions.
type Manager struct {
	chat        Chatter
	chatEvents  *events.Bus
	alarmEvents *events.Bus
	perSession  bool
	sharedID    string
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SharedID == "" {
		opts.SharedID = "household"
	}
	return &Manager{
		chat:        opts.Chatter,
		chatEvents:  opts.ChatEvents,
		alarmEvents: opts.AlarmEvents,
		perSession:  opts.Mode == config.ConversationPerSession,
		sharedID:    opts.SharedID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// ServeHTTP upgrades the request and runs the session until the client
// goes away.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	rc := actions.NewRequestContext(id, r)

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		m.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	convID := m.sharedID
	if m.perSession {
		convID = id
	}

	s := newSession(id, convID, conn, rc, m)
	m.add(s)
	m.wg.Add(1)
	defer m.wg.Done()

	s.logger.Info("session opened", "remote", r.RemoteAddr)
	s.run()
	m.remove(s)
	s.logger.Info("session closed")
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close disconnects every session and waits for them to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, s := range m.sessions {
		s.conn.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	if m.perSession {
		m.chat.Forget(s.ConversationID)
	}
}
