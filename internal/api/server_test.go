package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nugget/hearth/internal/actions"
	"github.com/nugget/hearth/internal/alarm"
	"github.com/nugget/hearth/internal/hue"
	"github.com/nugget/hearth/internal/journal"
	"github.com/nugget/hearth/internal/lighting"
	"github.com/nugget/hearth/internal/orchestrator"
)

type fakeChat struct {
	got orchestrator.Request
	res orchestrator.Result
}

func (f *fakeChat) Chat(_ context.Context, req orchestrator.Request) orchestrator.Result {
	f.got = req
	return f.res
}

type fakeAlarms []alarm.Alarm

func (f fakeAlarms) List() []alarm.Alarm { return f }

type fakeJournal struct {
	limit   int
	entries []journal.Entry
	err     error
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

type fakeSessions struct{ n int }

func (f fakeSessions) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}
func (f fakeSessions) Count() int { return f.n }

type fakeStats map[string]any

func (f fakeStats) Stats() map[string]any { return f }

type fakeHue struct {
	bridges  []hue.Bridge
	discErr  error
	linkErr  error
	lights   []lighting.Light
	bridgeIP string
}

func (f *fakeHue) Discover(context.Context) ([]hue.Bridge, error) { return f.bridges, f.discErr }
func (f *fakeHue) SetBridgeIP(ip string)                          { f.bridgeIP = ip }
func (f *fakeHue) Link(context.Context) (string, error) {
	if f.linkErr != nil {
		return "", f.linkErr
	}
	return "app-key", nil
}
func (f *fakeHue) Lights(context.Context) ([]lighting.Light, error) { return f.lights, nil }
func (f *fakeHue) Credentials() (string, string)                    { return f.bridgeIP, "app-key" }

func newTestServer(chat Chatter) *Server {
	return NewServer("127.0.0.1", 0, chat, "household", slog.New(slog.DiscardHandler))
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, out
}

func TestHandleChat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     orchestrator.Result
		wantStatus int
		wantConv   string
	}{
		{
			name:       "shared default",
			body:       `{"message":"hello"}`,
			result:     orchestrator.Result{Type: orchestrator.TypeResponse, Content: "Hi!"},
			wantStatus: http.StatusOK,
			wantConv:   "household",
		},
		{
			name:       "explicit conversation",
			body:       `{"message":"hello","conversation_id":"kitchen"}`,
			result:     orchestrator.Result{Type: orchestrator.TypeResponse, Content: "Hi!"},
			wantStatus: http.StatusOK,
			wantConv:   "kitchen",
		},
		{
			name:       "inference failure",
			body:       `{"message":"hello"}`,
			result:     orchestrator.Result{Type: orchestrator.TypeError, Content: "model unavailable"},
			wantStatus: http.StatusBadGateway,
			wantConv:   "household",
		},
		{
			name: "failed actions still 200",
			body: `{"message":"hello"}`,
			result: orchestrator.Result{
				Type:          orchestrator.TypeError,
				Content:       "Sorry, that didn't work.",
				ActionResults: &actions.Combined{Summary: "0 of 1 actions succeeded"},
			},
			wantStatus: http.StatusOK,
			wantConv:   "household",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{res: tt.result}
			rec, out := do(t, newTestServer(chat), http.MethodPost, "/v1/chat", tt.body)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if chat.got.ConversationID != tt.wantConv {
				t.Errorf("conversation = %q, want %q", chat.got.ConversationID, tt.wantConv)
			}
			if chat.got.Context == nil {
				t.Error("request context not set")
			}
			if out["type"] != tt.result.Type || out["content"] != tt.result.Content {
				t.Errorf("body = %v", out)
			}
		})
	}
}

func TestHandleChatRejectsBadBody(t *testing.T) {
	for _, body := range []string{`nope`, `{}`, `{"message":""}`} {
		rec, out := do(t, newTestServer(&fakeChat{}), http.MethodPost, "/v1/chat", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
		e, _ := out["error"].(map[string]any)
		if e["type"] != "invalid_request_error" {
			t.Errorf("%s: error = %v", body, out)
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeChat{})
	s.SetSessions(fakeSessions{n: 2})
	s.SetAlarms(fakeAlarms{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	s.SetConversations(fakeStats{"conversations": 1})

	rec, out := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["status"] != "healthy" || out["sessions"] != float64(2) || out["alarms"] != float64(3) || out["conversations"] != float64(1) {
		t.Errorf("body = %v", out)
	}
}

func TestVersion(t *testing.T) {
	_, out := do(t, newTestServer(&fakeChat{}), http.MethodGet, "/v1/version", "")
	if _, ok := out["version"]; !ok {
		t.Errorf("body = %v", out)
	}
}

func TestAlarms(t *testing.T) {
	s := newTestServer(&fakeChat{})
	rec, _ := do(t, s, http.MethodGet, "/v1/alarms", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unset alarms status = %d", rec.Code)
	}

	at := time.Date(2025, 6, 1, 19, 5, 0, 0, time.UTC)
	s.SetAlarms(fakeAlarms{{ID: "a1", Time: at, Message: "tea", Active: true}})
	rec, out := do(t, s, http.MethodGet, "/v1/alarms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list, _ := out["alarms"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["message"] != "tea" {
		t.Errorf("alarms = %v", out)
	}
}

func TestJournal(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", nil, http.StatusOK, 50},
		{"explicit limit", "?limit=5", nil, http.StatusOK, 5},
		{"bad limit", "?limit=abc", nil, http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", nil, http.StatusBadRequest, 0},
		{"store error", "", errors.New("disk full"), http.StatusInternalServerError, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &fakeJournal{err: tt.err}
			s := newTestServer(&fakeChat{})
			s.SetJournal(j)

			rec, out := do(t, s, http.MethodGet, "/v1/journal"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if j.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", j.limit, tt.wantLimit)
			}
			if tt.wantStatus == http.StatusOK {
				if entries, ok := out["entries"].([]any); !ok || len(entries) != 0 {
					t.Errorf("entries = %v, want empty list", out["entries"])
				}
			}
		})
	}

	rec, _ := do(t, newTestServer(&fakeChat{}), http.MethodGet, "/v1/journal", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unset journal status = %d", rec.Code)
	}
}

func TestWebSocketRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeChat{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no sessions status = %d", rec.Code)
	}

	s := newTestServer(&fakeChat{})
	s.SetSessions(fakeSessions{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("mounted sessions status = %d", rec.Code)
	}
}

func TestHueDiscover(t *testing.T) {
	s := newTestServer(&fakeChat{})
	s.SetHue(&fakeHue{bridges: []hue.Bridge{{ID: "001788", InternalIPAddress: "192.168.1.20"}}})

	rec, out := do(t, s, http.MethodGet, "/hue/bridge/discover", "")
	if rec.Code != http.StatusOK || out["success"] != true || out["bridgeIp"] != "192.168.1.20" {
		t.Errorf("status %d body %v", rec.Code, out)
	}

	s.SetHue(&fakeHue{discErr: hue.ErrNoBridge})
	rec, out = do(t, s, http.MethodGet, "/hue/bridge/discover", "")
	e, _ := out["error"].(map[string]any)
	if rec.Code != http.StatusInternalServerError || e["message"] != "Failed to discover Hue bridge" {
		t.Errorf("status %d body %v", rec.Code, out)
	}
}

func TestHueLink(t *testing.T) {
	h := &fakeHue{}
	s := newTestServer(&fakeChat{})
	s.SetHue(h)

	rec, out := do(t, s, http.MethodPost, "/hue/bridge/link", `{"ip":"192.168.1.20"}`)
	if rec.Code != http.StatusOK || out["username"] != "app-key" {
		t.Fatalf("status %d body %v", rec.Code, out)
	}
	env, _ := out["env"].(map[string]any)
	if env["HUE_USERNAME"] != "app-key" || env["HUE_BRIDGE_IP"] != "192.168.1.20" {
		t.Errorf("env = %v", env)
	}

	h.linkErr = &hue.APIError{Type: 101, Address: "", Description: "link button not pressed"}
	rec, out = do(t, s, http.MethodPost, "/hue/bridge/link", `{}`)
	if rec.Code != http.StatusBadRequest || out["success"] != false || out["details"] == nil {
		t.Errorf("status %d body %v", rec.Code, out)
	}

	h.linkErr = errors.New("connection refused")
	rec, _ = do(t, s, http.MethodPost, "/hue/bridge/link", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHueTest(t *testing.T) {
	s := newTestServer(&fakeChat{})
	rec, _ := do(t, s, http.MethodGet, "/hue/test", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no hue status = %d", rec.Code)
	}

	s.SetHue(&fakeHue{lights: []lighting.Light{{ID: "1", Name: "Lamp"}, {ID: "2", Name: "Desk"}}})
	rec, out := do(t, s, http.MethodGet, "/hue/test", "")
	if rec.Code != http.StatusOK || out["message"] != "Connected to Hue bridge, found 2 lights" {
		t.Errorf("status %d body %v", rec.Code, out)
	}
}
