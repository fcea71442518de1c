package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/nugget/hearth/internal/config"
	"github.com/nugget/hearth/internal/httpkit"
)

// ErrNotFound is returned when no event has the requested UID.
var ErrNotFound = errors.New("event not found")

// Client is a CalDAV calendar client. The calendar collection is
// resolved on first use and cached.
type Client struct {
	dav    *caldav.Client
	cfg    config.CalendarConfig
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	path string
}

// NewClient connects lazily to the configured CalDAV endpoint. Times
// without a zone are interpreted in loc.
func NewClient(cfg config.CalendarConfig, loc *time.Location, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	var hc webdav.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(30*time.Second), httpkit.WithLogger(logger))
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}
	dav, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}

	return &Client{
		dav:    dav,
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}, nil
}

// calendarPath returns the collection path, discovering it through the
// principal's calendar home set when the config does not give a path.
func (c *Client) calendarPath(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		return c.path, nil
	}

	if strings.HasPrefix(c.cfg.Calendar, "/") {
		c.path = ensureSlash(c.cfg.Calendar)
		return c.path, nil
	}

	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := c.dav.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("list calendars: %w", err)
	}

	for _, cal := range cals {
		if c.cfg.Calendar != "" && !strings.EqualFold(cal.Name, c.cfg.Calendar) {
			continue
		}
		if !supportsEvents(cal) {
			continue
		}
		c.path = ensureSlash(cal.Path)
		c.logger.Info("calendar selected", "path", c.path, "name", cal.Name)
		return c.path, nil
	}
	if c.cfg.Calendar != "" {
		return "", fmt.Errorf("calendar %q not found in %s", c.cfg.Calendar, home)
	}
	return "", fmt.Errorf("no event calendar found in %s", home)
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == ical.CompEvent {
			return true
		}
	}
	return false
}

func ensureSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func eventQuery(start, end time.Time, props []caldav.PropFilter) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
				Props: props,
			}},
		},
	}
}

// ListEvents returns events overlapping [q.From, q.To). A zero From
// starts now; a zero To means no upper bound. Default limit is 10.
func (c *Client) ListEvents(ctx context.Context, q Query) ([]Event, error) {
	path, err := c.calendarPath(ctx)
	if err != nil {
		return nil, err
	}
	if q.From.IsZero() {
		q.From = c.now()
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	objs, err := c.dav.QueryCalendar(ctx, path, eventQuery(q.From, q.To, nil))
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var all []Event
	for _, obj := range objs {
		evs, err := decodeEvents(obj.Data, c.loc)
		if err != nil {
			c.logger.Debug("skipping undecodable calendar object", "path", obj.Path, "error", err)
			continue
		}
		all = append(all, evs...)
	}
	return filterEvents(all, q), nil
}

// find locates the object holding uid.
func (c *Client) find(ctx context.Context, uid string) (*caldav.CalendarObject, error) {
	if uid == "" {
		return nil, errors.New("event id is required")
	}
	path, err := c.calendarPath(ctx)
	if err != nil {
		return nil, err
	}

	if obj, err := c.dav.GetCalendarObject(ctx, path+uid+".ics"); err == nil {
		return obj, nil
	}

	props := []caldav.PropFilter{{Name: ical.PropUID, TextMatch: &caldav.TextMatch{Text: uid}}}
	objs, err := c.dav.QueryCalendar(ctx, path, eventQuery(time.Time{}, time.Time{}, props))
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	return &objs[0], nil
}

// GetEvent fetches one event by UID.
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	obj, err := c.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.pick(obj, id)
}

func (c *Client) pick(obj *caldav.CalendarObject, id string) (*Event, error) {
	evs, err := decodeEvents(obj.Data, c.loc)
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		if ev.ID == id {
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// CreateEvent stores a new event. A missing ID is generated; a missing
// End defaults to one hour after Start.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (*Event, error) {
	if ev.Summary == "" {
		return nil, errors.New("event summary is required")
	}
	if ev.Start.IsZero() {
		return nil, errors.New("event start is required")
	}
	if ev.End.IsZero() {
		ev.End = ev.Start.Add(time.Hour)
	}
	if !ev.End.After(ev.Start) {
		return nil, errors.New("event end must be after start")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	path, err := c.calendarPath(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.dav.PutCalendarObject(ctx, path+ev.ID+".ics", encodeEvent(ev, c.now())); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	c.logger.Info("calendar event created", "uid", ev.ID, "start", ev.Start)
	return &ev, nil
}

// UpdateEvent applies patch to the event with the given UID.
func (c *Client) UpdateEvent(ctx context.Context, id string, patch Patch) (*Event, error) {
	obj, err := c.find(ctx, id)
	if err != nil {
		return nil, err
	}
	cur, err := c.pick(obj, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*cur)
	if !next.End.After(next.Start) {
		return nil, errors.New("event end must be after start")
	}
	if _, err := c.dav.PutCalendarObject(ctx, obj.Path, encodeEvent(next, c.now())); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	c.logger.Info("calendar event updated", "uid", id)
	return &next, nil
}

// DeleteEvent removes the event with the given UID.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	obj, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	if err := c.dav.RemoveAll(ctx, obj.Path); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	c.logger.Info("calendar event deleted", "uid", id)
	return nil
}
