package prompts

import (
	"strings"
	"testing"
	"time"
)

func TestSystem(t *testing.T) {
	caps := "lighting:\n- list_lights(): List all lights"

	got := System(caps, "Found 1 lights:\n- Desk (1): On, Brightness: 50%")
	for _, want := range []string{caps, "## Lights right now", "Desk (1)", `"actions"`, "valid JSON"} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(got, "%!") {
		t.Error("system prompt has a formatting error")
	}

	bare := System(caps, "  ")
	if strings.Contains(bare, "Lights right now") {
		t.Error("empty lights summary should omit the section")
	}
}

func TestCurrentTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, loc)

	got := CurrentTime(now)
	want := "Current local time: 2025-06-01T14:00:00-05:00 (America/Chicago, Sunday)"
	if got != want {
		t.Errorf("CurrentTime() = %q, want %q", got, want)
	}
}

func TestActionPrompts(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want []string
	}{
		{"result", ActionResult(`{"succeeded":true}`), []string{`{"succeeded":true}`, "not JSON"}},
		{"error", ActionError(`light "9" not found`), []string{`"light \"9\" not found"`, "went wrong"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				if !strings.Contains(tt.got, w) {
					t.Errorf("prompt missing %q:\n%s", w, tt.got)
				}
			}
		})
	}
}
