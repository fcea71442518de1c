// Package calendar implements the calendar capability against a CalDAV
// server. Events are addressed by their iCalendar UID.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const productID = "-//Hearth//Hearth Calendar//EN"

// Event is the projection of a VEVENT used by actions and prompts.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
}

// Patch holds optional changes for UpdateEvent. Nil fields are kept.
type Patch struct {
	Summary     *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
}

// Apply returns ev with p's fields overlaid.
func (p Patch) Apply(ev Event) Event {
	if p.Summary != nil {
		ev.Summary = *p.Summary
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	return ev
}

// Query restricts ListEvents.
type Query struct {
	From  time.Time
	To    time.Time
	Text  string
	Limit int
}

// encodeEvent builds a single-event VCALENDAR.
func encodeEvent(ev Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, ev.ID)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	vevent.Props.SetText(ical.PropSummary, ev.Summary)
	if ev.AllDay {
		vevent.Props.SetDate(ical.PropDateTimeStart, ev.Start)
		vevent.Props.SetDate(ical.PropDateTimeEnd, ev.End)
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
	}
	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		vevent.Props.SetText(ical.PropLocation, ev.Location)
	}

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

// decodeEvents extracts every VEVENT in cal. Floating times are read in
// loc.
func decodeEvents(cal *ical.Calendar, loc *time.Location) ([]Event, error) {
	var out []Event
	for _, ve := range cal.Events() {
		uid, err := ve.Props.Text(ical.PropUID)
		if err != nil {
			return nil, fmt.Errorf("event UID: %w", err)
		}
		start, err := ve.DateTimeStart(loc)
		if err != nil {
			return nil, fmt.Errorf("event %s DTSTART: %w", uid, err)
		}
		end, err := ve.DateTimeEnd(loc)
		if err != nil {
			return nil, fmt.Errorf("event %s DTEND: %w", uid, err)
		}

		ev := Event{ID: uid, Start: start, End: end}
		ev.Summary, _ = ve.Props.Text(ical.PropSummary)
		ev.Description, _ = ve.Props.Text(ical.PropDescription)
		ev.Location, _ = ve.Props.Text(ical.PropLocation)
		if p := ve.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
			ev.AllDay = true
		}
		out = append(out, ev)
	}
	return out, nil
}

// filterEvents applies the window, text match and limit, ordering by
// start time.
func filterEvents(events []Event, q Query) []Event {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	var out []Event
	for _, ev := range events {
		if !q.From.IsZero() && !ev.End.After(q.From) {
			continue
		}
		if !q.To.IsZero() && !ev.Start.Before(q.To) {
			continue
		}
		if text != "" {
			hay := strings.ToLower(ev.Summary + "\n" + ev.Description + "\n" + ev.Location)
			if !strings.Contains(hay, text) {
				continue
			}
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
