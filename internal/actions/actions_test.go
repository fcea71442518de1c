package actions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nugget/hearth/internal/alarm"
	"github.com/nugget/hearth/internal/calendar"
	"github.com/nugget/hearth/internal/email"
	"github.com/nugget/hearth/internal/lighting"
)

type lightCall struct {
	kind string // light, group, all
	id   string
	st   lighting.State
}

type fakeLights struct {
	mu    sync.Mutex
	calls []lightCall
	err   error
	panic bool
}

func (f *fakeLights) ListLights(context.Context) ([]lighting.Light, error) {
	if f.panic {
		panic("bridge exploded")
	}
	return []lighting.Light{{ID: "1", Name: "Desk", On: true, Brightness: 40}}, f.err
}

func (f *fakeLights) record(c lightCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeLights) SetLight(_ context.Context, id string, st lighting.State) error {
	return f.record(lightCall{"light", id, st})
}

func (f *fakeLights) SetGroup(_ context.Context, id string, st lighting.State) error {
	return f.record(lightCall{"group", id, st})
}

func (f *fakeLights) SetAll(_ context.Context, st lighting.State) error {
	return f.record(lightCall{"all", "", st})
}

type fakeCalendar struct {
	created []calendar.Event
	query   calendar.Query
}

func (f *fakeCalendar) ListEvents(_ context.Context, q calendar.Query) ([]calendar.Event, error) {
	f.query = q
	return nil, nil
}

func (f *fakeCalendar) GetEvent(_ context.Context, id string) (*calendar.Event, error) {
	return nil, calendar.ErrNotFound
}

func (f *fakeCalendar) CreateEvent(_ context.Context, ev calendar.Event) (*calendar.Event, error) {
	f.created = append(f.created, ev)
	return &ev, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, id string, p calendar.Patch) (*calendar.Event, error) {
	ev := p.Apply(calendar.Event{ID: id})
	return &ev, nil
}

func (f *fakeCalendar) DeleteEvent(context.Context, string) error { return nil }

type fakeMail struct {
	account string
	opts    email.ListOptions
}

func (f *fakeMail) ListMessages(_ context.Context, account string, opts email.ListOptions) ([]email.Envelope, error) {
	f.account, f.opts = account, opts
	return []email.Envelope{{UID: 7, Subject: "hi"}}, nil
}

func (f *fakeMail) SearchMessages(_ context.Context, account string, _ email.SearchOptions) ([]email.Envelope, error) {
	f.account = account
	return nil, nil
}

func (f *fakeMail) ReadMessage(_ context.Context, account, folder string, uid uint32) (*email.Message, error) {
	f.account = account
	return &email.Message{Envelope: email.Envelope{UID: uid, Folder: folder}}, nil
}

func exec(t *testing.T, d *Dispatcher, name string, params map[string]any) Result {
	t.Helper()
	return d.Execute(context.Background(), Action{Name: name, Parameters: params}, nil)
}

func TestUnknownAction(t *testing.T) {
	d := New(Providers{}, nil)
	res := exec(t, d, "launch_rocket", nil)

	if res.Succeeded {
		t.Fatal("unknown action succeeded")
	}
	if !errors.Is(res.Err, ErrUnknownAction) {
		t.Errorf("Err = %v, want ErrUnknownAction", res.Err)
	}
	if res.Error != "Handler for action launch_rocket not implemented" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestProviderNotConfigured(t *testing.T) {
	d := New(Providers{}, nil)
	for _, def := range d.Definitions() {
		res := exec(t, d, def.Name, map[string]any{})
		if res.Succeeded || !errors.Is(res.Err, ErrNotConfigured) {
			t.Errorf("%s: got %+v, want not configured", def.Name, res)
		}
	}
}

func TestProviderPanicRecovered(t *testing.T) {
	d := New(Providers{Lighting: &fakeLights{panic: true}}, nil)
	res := exec(t, d, "list_lights", nil)

	var pe *ProviderError
	if res.Succeeded || !errors.As(res.Err, &pe) {
		t.Fatalf("got %+v, want ProviderError", res)
	}
	if !strings.Contains(res.Error, "bridge exploded") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	d := New(Providers{Lighting: &fakeLights{err: errors.New("light 9 not found")}}, nil)
	res := exec(t, d, "turn_on", map[string]any{"lightId": "9"})
	if res.Succeeded || res.Error != "light 9 not found" {
		t.Errorf("got %+v", res)
	}
}

func TestRejected(t *testing.T) {
	res := Rejected(&MalformedActionError{Name: "turn_on", Reason: "data must be an object"})
	if res.Succeeded || res.Action != "turn_on" || res.Payload != nil {
		t.Fatalf("Rejected() = %+v", res)
	}
	if res.Error != "malformed action turn_on: data must be an object" {
		t.Errorf("Error = %q", res.Error)
	}
	var me *MalformedActionError
	if !errors.As(res.Err, &me) {
		t.Errorf("Err = %v", res.Err)
	}

	res = Rejected(&MalformedActionError{Reason: "action must be a JSON object"})
	if res.Action != "" || res.Error != "malformed action: action must be a JSON object" {
		t.Errorf("unnamed Rejected() = %+v", res)
	}
}

func TestLightingActions(t *testing.T) {
	tests := []struct {
		name   string
		action string
		params map[string]any
		want   string
		call   lightCall
	}{
		{"on light", "turn_on", map[string]any{"lightId": "3"}, "Turned on light 3", lightCall{kind: "light", id: "3"}},
		{"on group", "turn_on", map[string]any{"groupId": "2"}, "Turned on lights in group 2", lightCall{kind: "group", id: "2"}},
		{"off", "turn_off", map[string]any{"lightId": "3"}, "Turned off light 3", lightCall{kind: "light", id: "3"}},
		{"brightness", "adjust_brightness", map[string]any{"lightId": "1", "brightness": float64(40)}, "Set brightness to 40% for light 1", lightCall{kind: "light", id: "1"}},
		{"brightness string", "adjust_brightness", map[string]any{"groupId": "4", "brightness": "75%"}, "Set brightness to 75% for lights in group 4", lightCall{kind: "group", id: "4"}},
		{"color", "change_color", map[string]any{"lightId": "1", "color": "Blue"}, "Changed color to blue for light 1", lightCall{kind: "light", id: "1"}},
		{"group on", "control_group", map[string]any{"groupId": "1", "action": "on"}, "Turned on lights in group 1", lightCall{kind: "group", id: "1"}},
		{"all on", "turn_all_on", nil, "Turned on all lights", lightCall{kind: "all"}},
		{"all off", "turn_all_off", nil, "Turned off all lights", lightCall{kind: "all"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl := &fakeLights{}
			d := New(Providers{Lighting: fl}, nil)
			res := exec(t, d, tt.action, tt.params)
			if !res.Succeeded {
				t.Fatalf("failed: %s", res.Error)
			}
			if res.Payload != tt.want {
				t.Errorf("payload = %q, want %q", res.Payload, tt.want)
			}
			if len(fl.calls) != 1 || fl.calls[0].kind != tt.call.kind || fl.calls[0].id != tt.call.id {
				t.Errorf("calls = %+v", fl.calls)
			}
		})
	}
}

func TestLightingValidation(t *testing.T) {
	d := New(Providers{Lighting: &fakeLights{}}, nil)
	for _, tc := range []struct {
		action string
		params map[string]any
	}{
		{"turn_on", map[string]any{}},
		{"adjust_brightness", map[string]any{"lightId": "1"}},
		{"adjust_brightness", map[string]any{"lightId": "1", "brightness": "bright"}},
		{"control_group", map[string]any{"groupId": "1", "action": "dim"}},
	} {
		if res := exec(t, d, tc.action, tc.params); res.Succeeded {
			t.Errorf("%s %v succeeded", tc.action, tc.params)
		}
	}
}

func TestListLights(t *testing.T) {
	d := New(Providers{Lighting: &fakeLights{}}, nil)
	res := exec(t, d, "list_lights", nil)
	want := "Found 1 lights:\n- Desk (1): On, Brightness: 40%"
	if res.Payload != want {
		t.Errorf("payload = %q, want %q", res.Payload, want)
	}
}

func TestAlarmActions(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 6, 1, 14, 0, 0, 0, loc))
	sched := alarm.New(mock, nil)
	defer sched.Stop()

	d := New(Providers{Alarms: sched, Location: loc}, nil)

	res := exec(t, d, "set_alarm", map[string]any{"time": "in 5 minutes", "message": "tea"})
	if !res.Succeeded {
		t.Fatalf("set_alarm: %s", res.Error)
	}
	set := res.Payload.(AlarmSet)
	if !strings.HasPrefix(set.Summary, "Alarm set for 5 minutes and 0 seconds from now (2025-06-01T14:05:00-05:00) with message: tea") {
		t.Errorf("summary = %q", set.Summary)
	}

	res = exec(t, d, "list_alarms", nil)
	if list := res.Payload.([]alarm.Alarm); len(list) != 1 || list[0].ID != set.ID {
		t.Errorf("list = %+v", res.Payload)
	}

	if res := exec(t, d, "cancel_alarm", map[string]any{"alarmId": set.ID}); !res.Succeeded {
		t.Errorf("cancel: %s", res.Error)
	}
	res = exec(t, d, "cancel_alarm", map[string]any{"alarmId": set.ID})
	if res.Succeeded || res.Error != "alarm "+set.ID+" not found" {
		t.Errorf("second cancel = %+v", res)
	}

	res = exec(t, d, "set_alarm", map[string]any{"time": "2025-06-01T13:00"})
	if res.Succeeded || !errors.Is(res.Err, alarm.ErrInvalidTime) {
		t.Errorf("past alarm = %+v", res)
	}
}

func TestCalendarActions(t *testing.T) {
	fc := &fakeCalendar{}
	d := New(Providers{Calendar: fc, Location: time.UTC}, nil)

	res := exec(t, d, "create_event", map[string]any{
		"summary": "Dentist",
		"start":   map[string]any{"dateTime": "2025-03-10T15:00:00Z"},
	})
	if !res.Succeeded {
		t.Fatalf("create: %s", res.Error)
	}
	res = exec(t, d, "create_event", map[string]any{"event": map[string]any{
		"summary": "Holiday",
		"start":   map[string]any{"date": "2025-03-17"},
	}})
	if !res.Succeeded {
		t.Fatalf("create wrapped: %s", res.Error)
	}
	if len(fc.created) != 2 {
		t.Fatalf("created = %+v", fc.created)
	}
	if ev := fc.created[1]; !ev.AllDay || !ev.End.Equal(ev.Start.AddDate(0, 0, 1)) {
		t.Errorf("all-day event = %+v", ev)
	}

	if res := exec(t, d, "create_event", map[string]any{"summary": "No start"}); res.Succeeded {
		t.Error("create without start succeeded")
	}

	exec(t, d, "list_events", map[string]any{"maxResults": float64(3), "q": "dentist", "timeMin": "2025-03-01T00:00:00Z"})
	if fc.query.Limit != 3 || fc.query.Text != "dentist" || fc.query.From.IsZero() {
		t.Errorf("query = %+v", fc.query)
	}

	res = exec(t, d, "update_event", map[string]any{"eventId": "x", "event": map[string]any{"location": "Room 4"}})
	if ev := res.Payload.(*calendar.Event); ev.Location != "Room 4" {
		t.Errorf("update = %+v", res)
	}

	res = exec(t, d, "get_event", map[string]any{"eventId": "missing"})
	if res.Succeeded || !errors.Is(res.Err, calendar.ErrNotFound) {
		t.Errorf("get missing = %+v", res)
	}
}

func TestMailActionsUseRequestContext(t *testing.T) {
	fm := &fakeMail{}
	d := New(Providers{Mail: fm}, nil)

	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: MailAccountCookie, Value: "work"})
	rc := NewRequestContext("s1", r)

	res := d.Execute(context.Background(), Action{Name: "list_emails", Parameters: map[string]any{
		"maxResults": float64(5),
		"labelIds":   []any{"INBOX", "UNREAD"},
	}}, rc)
	if !res.Succeeded {
		t.Fatal(res.Error)
	}
	if fm.account != "work" || fm.opts.Limit != 5 || !fm.opts.Unseen || len(fm.opts.Folders) != 1 {
		t.Errorf("account=%q opts=%+v", fm.account, fm.opts)
	}

	res = d.Execute(context.Background(), Action{Name: "get_email", Parameters: map[string]any{"messageId": "abc"}}, rc)
	if res.Succeeded {
		t.Error("non-numeric messageId accepted")
	}
	res = d.Execute(context.Background(), Action{Name: "get_email", Parameters: map[string]any{"messageId": float64(42)}}, rc)
	if msg := res.Payload.(*email.Message); !res.Succeeded || msg.UID != 42 {
		t.Errorf("get_email = %+v", res)
	}
}

func TestRequestContext(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set(MailAccountHeader, "home")
	rc := NewRequestContext("abc", r)

	if rc.MailAccount() != "home" {
		t.Errorf("MailAccount() = %q", rc.MailAccount())
	}

	cp := rc.Clone()
	cp.Header.Set(MailAccountHeader, "other")
	cp.Cookies["x"] = "y"
	if rc.Get(MailAccountHeader) != "home" || rc.Cookie("x") != "" {
		t.Error("Clone shares state with the original")
	}

	var nilRC *RequestContext
	if nilRC.MailAccount() != "" || nilRC.Clone() == nil {
		t.Error("nil RequestContext not handled")
	}
}

func TestActionJSON(t *testing.T) {
	tests := []struct {
		in   string
		name string
		key  string
	}{
		{`{"type":"lighting","action":"turn_on","data":{"lightId":"1"}}`, "turn_on", "lightId"},
		{`{"name":"set_alarm","parameters":{"time":"10m"}}`, "set_alarm", "time"},
	}
	for _, tt := range tests {
		var a Action
		if err := json.Unmarshal([]byte(tt.in), &a); err != nil {
			t.Fatal(err)
		}
		if a.Name != tt.name || a.Parameters[tt.key] == nil {
			t.Errorf("%s -> %+v", tt.in, a)
		}
	}
}

func TestCombine(t *testing.T) {
	c := Combine([]Result{{Succeeded: true}, {Succeeded: false, Error: "boom"}})
	if c.Succeeded || c.Summary != "1 of 2 actions succeeded" {
		t.Errorf("Combine = %+v", c)
	}
	if !Combine(nil).Succeeded {
		t.Error("empty batch should succeed")
	}
}

func TestDescribe(t *testing.T) {
	out := New(Providers{}, nil).Describe()
	for _, want := range []string{
		"calendar:\n- list_events(",
		"lighting:\n",
		"- set_alarm(message?, time): ",
		"- cancel_alarm(alarmId): Cancel a pending alarm",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe() missing %q:\n%s", want, out)
		}
	}
	if n := len(New(Providers{}, nil).Definitions()); n != 19 {
		t.Errorf("%d definitions, want 19", n)
	}
}
