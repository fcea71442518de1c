package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/nugget/hearth/internal/actions"
)

// reply is the parsed form of a model response.
type reply struct {
	// structured is true when the output decoded as a JSON object.
	structured bool
	message    string
	steps      []step
}

// step is one proposed action in request order. Exactly one of action
// and err is meaningful: err is set when the element could not be
// decoded and must be reported without reaching a handler.
type step struct {
	action actions.Action
	err    *actions.MalformedActionError
}

// text is what the user sees for a reply without actions: the message
// when there is one, otherwise the raw output.
func (r reply) text(raw string) string {
	if r.structured && r.message != "" {
		return r.message
	}
	return raw
}

// parseReply decodes {message?, action?, actions?, data?}. Anything that
// is not a JSON object is plain prose and yields an unstructured reply.
// Elements are decoded one at a time so a malformed action does not
// discard the rest. A non-empty "actions" list wins over "action". A
// string "action" is the flat form, taking its parameters from the
// top-level "data" or "parameters".
func parseReply(raw string) reply {
	body := stripFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(body, "{") {
		return reply{}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return reply{}
	}

	r := reply{structured: true}
	var message string
	if json.Unmarshal(fields["message"], &message) == nil {
		r.message = strings.TrimSpace(message)
	}

	if list := fields["actions"]; present(list) {
		var elems []json.RawMessage
		if err := json.Unmarshal(list, &elems); err == nil {
			for _, e := range elems {
				r.steps = append(r.steps, decodeStep(e))
			}
		} else {
			r.steps = append(r.steps, decodeStep(list))
		}
		if len(r.steps) > 0 {
			return r
		}
	}

	single := fields["action"]
	if !present(single) {
		return r
	}
	var name string
	if json.Unmarshal(single, &name) == nil {
		r.steps = append(r.steps, flatStep(name, fields))
		return r
	}
	r.steps = append(r.steps, decodeStep(single))
	return r
}

// decodeStep decodes one {type?, action|name, data|parameters?} element.
func decodeStep(b json.RawMessage) step {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		return step{err: &actions.MalformedActionError{Reason: "action must be a JSON object"}}
	}

	var a actions.Action
	_ = json.Unmarshal(fields["type"], &a.Type)

	nameField := fields["action"]
	if !present(nameField) {
		nameField = fields["name"]
	}
	if !present(nameField) {
		return step{err: &actions.MalformedActionError{Reason: "action name is missing"}}
	}
	if err := json.Unmarshal(nameField, &a.Name); err != nil {
		return step{err: &actions.MalformedActionError{Reason: "action name must be a string"}}
	}

	params, err := decodeParams(fields)
	if err != nil {
		return step{err: err.withName(a.Name)}
	}
	a.Parameters = params
	return step{action: a}
}

// flatStep builds the step for {"action": "name", "data": {...}}.
func flatStep(name string, fields map[string]json.RawMessage) step {
	params, err := decodeParams(fields)
	if err != nil {
		return step{err: err.withName(name)}
	}
	a := actions.Action{Name: name, Parameters: params}
	_ = json.Unmarshal(fields["type"], &a.Type)
	return step{action: a}
}

type paramsError struct{ reason string }

func (e paramsError) withName(name string) *actions.MalformedActionError {
	return &actions.MalformedActionError{Name: name, Reason: e.reason}
}

// decodeParams reads "data", falling back to "parameters". Absent or
// null parameters are nil.
func decodeParams(fields map[string]json.RawMessage) (map[string]any, *paramsError) {
	key := "data"
	b := fields[key]
	if !present(b) {
		key = "parameters"
		b = fields[key]
	}
	if !present(b) {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, &paramsError{reason: key + " must be an object"}
	}
	return params, nil
}

func present(b json.RawMessage) bool {
	return len(b) > 0 && string(b) != "null"
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:i]), "{") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
