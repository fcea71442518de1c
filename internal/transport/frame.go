package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types.
const (
	TypeMessage  = "message"
	TypeClear    = "clear"
	TypeResponse = "response"
	TypeError    = "error"
	TypeAlarm    = "alarm"
)

// ClearedMessage acknowledges a clear frame.
const ClearedMessage = "Conversation cleared"

// Inbound is a frame received from a client.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Outbound is a frame sent to a client. Content is a string for
// response and error frames and an alarm.Notice for alarm frames.
type Outbound struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// decodeInbound parses and validates a client frame.
func decodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("invalid frame: %w", err)
	}
	switch in.Type {
	case TypeMessage:
		if in.Content == "" {
			return Inbound{}, errors.New("message frame requires content")
		}
	case TypeClear:
	case "":
		return Inbound{}, errors.New("frame type is required")
	default:
		return Inbound{}, fmt.Errorf("unknown frame type %q", in.Type)
	}
	return in, nil
}

func errorFrame(msg string) Outbound {
	return Outbound{Type: TypeError, Content: msg}
}
