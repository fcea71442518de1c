package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/hearth/internal/actions"
	"github.com/nugget/hearth/internal/alarm"
	"github.com/nugget/hearth/internal/events"
	"github.com/nugget/hearth/internal/orchestrator"
)

// Session is one live connection.
type Session struct {
	ID             string
	ConversationID string

	conn   *websocket.Conn
	rc     *actions.RequestContext
	chat   Chatter
	logger *slog.Logger

	chatBus    *events.Bus
	alarmBus   *events.Bus
	chatSub    <-chan events.Event
	alarmSub   <-chan events.Event
	send       chan Outbound
	inbox      chan Inbound
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}

	// alarmDropped is the drop count last reported. Writer only.
	alarmDropped uint64
}

func newSession(id, convID string, conn *websocket.Conn, rc *actions.RequestContext, m *Manager) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:             id,
		ConversationID: convID,
		conn:           conn,
		rc:             rc,
		chat:           m.chat,
		logger:         m.logger.With("session_id", id, "conversation_id", convID),
		chatBus:        m.chatEvents,
		alarmBus:       m.alarmEvents,
		send:           make(chan Outbound, sendBuffer),
		inbox:          make(chan Inbound, inboxBuffer),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		writerDone:     make(chan struct{}),
	}
	if s.chatBus != nil {
		s.chatSub = s.chatBus.Subscribe(sendBuffer)
	}
	if s.alarmBus != nil {
		s.alarmSub = s.alarmBus.Subscribe(alarmBuffer)
	}
	return s
}

// run starts the writer and worker and reads until the connection
// fails, then tears the session down.
func (s *Session) run() {
	go s.writeLoop()

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		s.work()
	}()

	s.readLoop()

	close(s.done)
	s.cancel()
	if s.chatSub != nil {
		s.chatBus.Unsubscribe(s.chatSub)
	}
	if s.alarmSub != nil {
		s.alarmBus.Unsubscribe(s.alarmSub)
	}
	workers.Wait()
	<-s.writerDone
	s.conn.Close()
}

// readLoop decodes frames and queues them for the worker. Decode
// failures are answered with an error frame and the connection stays
// open.
func (s *Session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		in, err := decodeInbound(data)
		if err != nil {
			s.logger.Debug("rejected frame", "error", err)
			s.enqueue(errorFrame(err.Error()))
			continue
		}
		select {
		case s.inbox <- in:
		default:
			s.enqueue(errorFrame("too many requests in flight"))
		}
	}
}

// work handles queued frames one at a time so replies keep request
// order.
func (s *Session) work() {
	for {
		select {
		case in := <-s.inbox:
			s.handle(in)
		case <-s.done:
			return
		}
	}
}

func (s *Session) handle(in Inbound) {
	switch in.Type {
	case TypeMessage:
		res := s.chat.Chat(s.ctx, orchestrator.Request{
			ConversationID: s.ConversationID,
			SessionID:      s.ID,
			Text:           in.Content,
			Context:        s.rc,
			Interim: func(msg string) {
				s.enqueue(Outbound{Type: TypeResponse, Content: msg})
			},
		})
		s.enqueue(Outbound{Type: res.Type, Content: res.Content})
	case TypeClear:
		if err := s.chat.Clear(s.ctx, s.ConversationID); err != nil {
			s.enqueue(errorFrame(err.Error()))
			return
		}
		s.enqueue(Outbound{Type: TypeResponse, Content: ClearedMessage})
	}
}

// enqueue hands a frame to the writer. Frames for a closed session are
// dropped.
func (s *Session) enqueue(f Outbound) {
	select {
	case s.send <- f:
	case <-s.done:
	}
}

// writeLoop owns every write to the connection.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	chatSub, alarmSub := s.chatSub, s.alarmSub
	for {
		var f Outbound
		select {
		case f = <-s.send:
		case e, ok := <-chatSub:
			if !ok {
				chatSub = nil
				continue
			}
			var fwd bool
			if f, fwd = s.forwardInterim(e); !fwd {
				continue
			}
		case e, ok := <-alarmSub:
			if !ok {
				alarmSub = nil
				continue
			}
			s.reportAlarmDrops()
			n, fired := alarm.NoticeFromEvent(e)
			if !fired {
				continue
			}
			f = Outbound{Type: TypeAlarm, Content: n}
		case <-ticker.C:
			s.reportAlarmDrops()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
			continue
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(f); err != nil {
			s.logger.Debug("websocket write failed", "type", f.Type, "error", err)
			// Unblock the reader; run() handles teardown.
			s.conn.Close()
			return
		}
	}
}

// reportAlarmDrops logs alarms this session missed since the last
// report because its subscription buffer was full.
func (s *Session) reportAlarmDrops() {
	if s.alarmSub == nil {
		return
	}
	total := s.alarmBus.DroppedFor(s.alarmSub)
	if total <= s.alarmDropped {
		return
	}
	s.logger.Warn("alarm notices dropped for slow session",
		"dropped", total-s.alarmDropped,
		"total_dropped", total,
	)
	s.alarmDropped = total
}

// forwardInterim turns another session's interim message on this
// session's conversation into a response frame.
func (s *Session) forwardInterim(e events.Event) (Outbound, bool) {
	if e.Kind != events.KindInterim {
		return Outbound{}, false
	}
	if e.String("conversation_id") != s.ConversationID || e.String("session_id") == s.ID {
		return Outbound{}, false
	}
	return Outbound{Type: TypeResponse, Content: e.String("content")}, true
}
