package orchestrator

import "testing"

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		structured bool
		message    string
		actions    []string
		malformed  map[int]string // step index to expected error text
	}{
		{name: "prose", raw: "Hello there"},
		{name: "json string", raw: `"Hello there"`},
		{name: "json array", raw: `[{"action":"list_lights"}]`},
		{name: "broken json", raw: `{"message": "hi"`},
		{name: "message only", raw: `{"message": "Hi!"}`, structured: true, message: "Hi!"},
		{name: "empty object", raw: `{}`, structured: true},
		{
			name:       "single action",
			raw:        `{"message":"Checking...","action":{"type":"lighting","action":"list_lights","data":{}}}`,
			structured: true, message: "Checking...", actions: []string{"list_lights"},
		},
		{
			name:       "actions list",
			raw:        `{"actions":[{"action":"turn_on","data":{"lightId":"1"}},{"action":"turn_off","data":{"lightId":"2"}}]}`,
			structured: true, actions: []string{"turn_on", "turn_off"},
		},
		{
			name:       "actions wins over action",
			raw:        `{"action":{"action":"turn_all_off"},"actions":[{"action":"list_lights"}]}`,
			structured: true, actions: []string{"list_lights"},
		},
		{
			name:       "empty actions falls back to action",
			raw:        `{"action":{"action":"turn_all_off"},"actions":[]}`,
			structured: true, actions: []string{"turn_all_off"},
		},
		{
			name:       "name alias",
			raw:        `{"action":{"name":"list_alarms","parameters":{}}}`,
			structured: true, actions: []string{"list_alarms"},
		},
		{
			name:       "fenced",
			raw:        "```json\n{\"message\":\"ok\",\"action\":{\"action\":\"list_lights\"}}\n```",
			structured: true, message: "ok", actions: []string{"list_lights"},
		},
		{
			name:       "flat action with top-level data",
			raw:        `{"message":"Checking","action":"list_lights","data":{}}`,
			structured: true, message: "Checking", actions: []string{"list_lights"},
		},
		{
			name:       "flat action with parameters",
			raw:        `{"action":"turn_on","parameters":{"lightId":"3"}}`,
			structured: true, actions: []string{"turn_on"},
		},
		{
			name:       "malformed data beside a valid action",
			raw:        `{"message":"Checking","actions":[{"action":"list_lights","data":{}},{"action":"turn_on","data":"light 3"}]}`,
			structured: true, message: "Checking", actions: []string{"list_lights", "turn_on"},
			malformed: map[int]string{1: "malformed action turn_on: data must be an object"},
		},
		{
			name:       "non-object element",
			raw:        `{"actions":["list_lights",{"action":"turn_all_off"}]}`,
			structured: true, actions: []string{"", "turn_all_off"},
			malformed: map[int]string{0: "malformed action: action must be a JSON object"},
		},
		{
			name:       "non-string name",
			raw:        `{"action":{"action":7}}`,
			structured: true, actions: []string{""},
			malformed: map[int]string{0: "malformed action: action name must be a string"},
		},
		{
			name:       "missing name",
			raw:        `{"actions":[{"data":{}}]}`,
			structured: true, actions: []string{""},
			malformed: map[int]string{0: "malformed action: action name is missing"},
		},
		{
			name:       "flat action with bad data",
			raw:        `{"action":"set_brightness","data":[50]}`,
			structured: true, actions: []string{"set_brightness"},
			malformed: map[int]string{0: "malformed action set_brightness: data must be an object"},
		},
		{
			name:       "non-string message is ignored",
			raw:        `{"message":42,"action":"list_lights"}`,
			structured: true, actions: []string{"list_lights"},
		},
		{
			name:       "bare fence",
			raw:        "```\n{\"message\":\"ok\"}\n```",
			structured: true, message: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parseReply(tt.raw)
			if r.structured != tt.structured || r.message != tt.message {
				t.Fatalf("parseReply() = %+v", r)
			}
			if len(r.steps) != len(tt.actions) {
				t.Fatalf("steps = %+v, want %v", r.steps, tt.actions)
			}
			for i, name := range tt.actions {
				st := r.steps[i]
				want, bad := tt.malformed[i]
				switch {
				case bad && st.err == nil:
					t.Errorf("steps[%d] decoded, want error %q", i, want)
				case bad && st.err.Error() != want:
					t.Errorf("steps[%d] error = %q, want %q", i, st.err.Error(), want)
				case !bad && st.err != nil:
					t.Errorf("steps[%d] error = %v", i, st.err)
				}
				got := st.action.Name
				if st.err != nil {
					got = st.err.Name
				}
				if got != name {
					t.Errorf("steps[%d] = %q, want %q", i, got, name)
				}
			}
		})
	}
}

func TestParseReplyFlatParameters(t *testing.T) {
	r := parseReply(`{"action":"turn_on","type":"lighting","data":{"lightId":"3"}}`)
	if len(r.steps) != 1 || r.steps[0].err != nil {
		t.Fatalf("steps = %+v", r.steps)
	}
	a := r.steps[0].action
	if a.Type != "lighting" || a.Parameters["lightId"] != "3" {
		t.Errorf("action = %+v", a)
	}
}

func TestReplyText(t *testing.T) {
	if got := parseReply("plain").text("plain"); got != "plain" {
		t.Errorf("prose text = %q", got)
	}
	raw := `{"note":"no message"}`
	if got := parseReply(raw).text(raw); got != raw {
		t.Errorf("structured without message = %q, want raw", got)
	}
	raw = `{"message":"Hi"}`
	if got := parseReply(raw).text(raw); got != "Hi" {
		t.Errorf("message text = %q", got)
	}
}
