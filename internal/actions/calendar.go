package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/hearth/internal/calendar"
)

var eventProps = map[string]any{
	"summary":     prop("string", "Event title"),
	"description": prop("string", "Event notes"),
	"location":    prop("string", "Where the event takes place"),
	"start":       prop("object", `{"dateTime": RFC 3339, "timeZone"?} or {"date": "YYYY-MM-DD"} for all-day`),
	"end":         prop("object", "Same shape as start; defaults to one hour after start"),
}

func (d *Dispatcher) registerCalendar() {
	d.register(&Definition{
		Name:        "list_events",
		Domain:      DomainCalendar,
		Description: "List upcoming calendar events",
		Parameters: schema(map[string]any{
			"timeMin":    prop("string", "Start of window, RFC 3339 (default now)"),
			"timeMax":    prop("string", "End of window, RFC 3339"),
			"maxResults": prop("integer", "Maximum events to return (default 10)"),
			"q":          prop("string", "Free-text filter"),
		}),
		handler: d.listEvents,
	})
	d.register(&Definition{
		Name:        "create_event",
		Domain:      DomainCalendar,
		Description: "Create a calendar event",
		Parameters:  schema(eventProps, "summary", "start"),
		handler:     d.createEvent,
	})
	d.register(&Definition{
		Name:        "update_event",
		Domain:      DomainCalendar,
		Description: "Change fields of an existing event",
		Parameters: schema(map[string]any{
			"eventId": prop("string", "Event id from list_events"),
			"event":   prop("object", "Fields to change, same shape as create_event"),
		}, "eventId", "event"),
		handler: d.updateEvent,
	})
	d.register(&Definition{
		Name:        "delete_event",
		Domain:      DomainCalendar,
		Description: "Delete a calendar event",
		Parameters:  schema(map[string]any{"eventId": prop("string", "Event id")}, "eventId"),
		handler:     d.deleteEvent,
	})
	d.register(&Definition{
		Name:        "get_event",
		Domain:      DomainCalendar,
		Description: "Fetch one calendar event",
		Parameters:  schema(map[string]any{"eventId": prop("string", "Event id")}, "eventId"),
		handler:     d.getEvent,
	})
}

func (d *Dispatcher) listEvents(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Calendar == nil {
		return nil, ErrNotConfigured
	}
	q := calendar.Query{Text: str(params, "q"), Limit: 10}
	if n, ok, err := num(params, "maxResults"); err != nil {
		return nil, err
	} else if ok && n > 0 {
		q.Limit = n
	}
	var err error
	if s := str(params, "timeMin"); s != "" {
		if q.From, err = d.parseInstant(s, ""); err != nil {
			return nil, fmt.Errorf("timeMin: %w", err)
		}
	}
	if s := str(params, "timeMax"); s != "" {
		if q.To, err = d.parseInstant(s, ""); err != nil {
			return nil, fmt.Errorf("timeMax: %w", err)
		}
	}
	return d.p.Calendar.ListEvents(ctx, q)
}

func (d *Dispatcher) createEvent(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Calendar == nil {
		return nil, ErrNotConfigured
	}
	// Both {"event": {...}} and the bare event object are seen in practice.
	fields := params
	if inner := obj(params, "event"); inner != nil {
		fields = inner
	}
	patch, err := d.eventPatch(fields)
	if err != nil {
		return nil, err
	}
	if patch.Summary == nil || *patch.Summary == "" {
		return nil, errors.New("summary is required")
	}
	if patch.Start == nil {
		return nil, errors.New("start is required")
	}
	ev := patch.Apply(calendar.Event{})
	ev.AllDay = isAllDay(fields["start"])
	if ev.AllDay && patch.End == nil {
		ev.End = ev.Start.AddDate(0, 0, 1)
	}
	return d.p.Calendar.CreateEvent(ctx, ev)
}

func (d *Dispatcher) updateEvent(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Calendar == nil {
		return nil, ErrNotConfigured
	}
	id, err := requireStr(params, "eventId")
	if err != nil {
		return nil, err
	}
	fields := obj(params, "event")
	if fields == nil {
		return nil, errors.New("event is required")
	}
	patch, err := d.eventPatch(fields)
	if err != nil {
		return nil, err
	}
	return d.p.Calendar.UpdateEvent(ctx, id, patch)
}

func (d *Dispatcher) deleteEvent(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Calendar == nil {
		return nil, ErrNotConfigured
	}
	id, err := requireStr(params, "eventId")
	if err != nil {
		return nil, err
	}
	if err := d.p.Calendar.DeleteEvent(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": id}, nil
}

func (d *Dispatcher) getEvent(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Calendar == nil {
		return nil, ErrNotConfigured
	}
	id, err := requireStr(params, "eventId")
	if err != nil {
		return nil, err
	}
	return d.p.Calendar.GetEvent(ctx, id)
}

func (d *Dispatcher) eventPatch(fields map[string]any) (calendar.Patch, error) {
	var p calendar.Patch
	for key, dst := range map[string]**string{
		"summary":     &p.Summary,
		"description": &p.Description,
		"location":    &p.Location,
	} {
		if _, ok := fields[key]; ok {
			v := str(fields, key)
			*dst = &v
		}
	}
	for key, dst := range map[string]**time.Time{"start": &p.Start, "end": &p.End} {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		t, err := d.eventTime(raw)
		if err != nil {
			return p, fmt.Errorf("%s: %w", key, err)
		}
		*dst = &t
	}
	return p, nil
}

// eventTime reads {"dateTime","timeZone"}, {"date"} or a bare string.
func (d *Dispatcher) eventTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		return d.parseInstant(v, "")
	case map[string]any:
		if s := str(v, "dateTime"); s != "" {
			return d.parseInstant(s, str(v, "timeZone"))
		}
		if s := str(v, "date"); s != "" {
			return d.parseInstant(s, str(v, "timeZone"))
		}
	}
	return time.Time{}, errors.New("expected dateTime or date")
}

func isAllDay(raw any) bool {
	switch v := raw.(type) {
	case map[string]any:
		return str(v, "dateTime") == "" && str(v, "date") != ""
	case string:
		return len(strings.TrimSpace(v)) == len("2006-01-02")
	}
	return false
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseInstant parses RFC 3339, or a zone-less layout in tz (an IANA
// name) or the dispatcher's location.
func (d *Dispatcher) parseInstant(s, tz string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc := d.p.Location
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown time zone %q", tz)
		}
		loc = l
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
