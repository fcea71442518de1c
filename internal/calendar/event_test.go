package calendar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Test//Test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:dentist-1\r\n" +
	"DTSTAMP:20250301T120000Z\r\n" +
	"DTSTART:20250310T150000Z\r\n" +
	"DTEND:20250310T160000Z\r\n" +
	"SUMMARY:Dentist\r\n" +
	"LOCATION:Main St\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday-1\r\n" +
	"DTSTAMP:20250301T120000Z\r\n" +
	"DTSTART;VALUE=DATE:20250317\r\n" +
	"DTEND;VALUE=DATE:20250318\r\n" +
	"SUMMARY:St Patrick's Day\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestDecodeEvents(t *testing.T) {
	cal, err := ical.NewDecoder(strings.NewReader(sampleICS)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	evs, err := decodeEvents(cal, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}

	d := evs[0]
	if d.ID != "dentist-1" || d.Summary != "Dentist" || d.Location != "Main St" || d.AllDay {
		t.Errorf("dentist = %+v", d)
	}
	if want := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC); !d.Start.Equal(want) {
		t.Errorf("start = %v, want %v", d.Start, want)
	}
	if !evs[1].AllDay {
		t.Errorf("holiday should be all-day: %+v", evs[1])
	}
}

func TestEncodeEvent(t *testing.T) {
	start := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	ev := Event{
		ID:          "abc",
		Summary:     "Standup",
		Description: "daily",
		Start:       start,
		End:         start.Add(15 * time.Minute),
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(encodeEvent(ev, start)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"UID:abc", "SUMMARY:Standup", "DESCRIPTION:daily", "DTSTART:20250401T093000Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded calendar missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "LOCATION") {
		t.Errorf("empty location should be omitted:\n%s", out)
	}
}

func TestFilterEvents(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ev := func(id string, startH, endH int, summary string) Event {
		return Event{ID: id, Summary: summary, Start: base.Add(time.Duration(startH) * time.Hour), End: base.Add(time.Duration(endH) * time.Hour)}
	}
	events := []Event{
		ev("c", 30, 31, "Gym"),
		ev("a", 2, 3, "Breakfast meeting"),
		ev("b", 10, 11, "Lunch"),
		ev("old", -5, -4, "Yesterday"),
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"window", Query{From: base, To: base.Add(24 * time.Hour)}, []string{"a", "b"}},
		{"open ended", Query{From: base}, []string{"a", "b", "c"}},
		{"text", Query{From: base, Text: "LUNCH"}, []string{"b"}},
		{"limit", Query{From: base, Limit: 1}, []string{"a"}},
		{"no bounds", Query{}, []string{"old", "a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterEvents(events, tt.q)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestPatchApply(t *testing.T) {
	loc := "Room 2"
	orig := Event{ID: "x", Summary: "Sync", Location: "Room 1"}
	got := Patch{Location: &loc}.Apply(orig)
	if got.Location != "Room 2" || got.Summary != "Sync" {
		t.Errorf("Apply = %+v", got)
	}
}
