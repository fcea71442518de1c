package alarm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nugget/hearth/internal/events"
)

// Scheduler manages alarm timers. Fire and Cancel on the same id are
// serialized by mu; whichever removes the entry first wins.
type Scheduler struct {
	clock  clock.Clock
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.Mutex
	alarms  map[string]*entry
	stopped bool
}

type entry struct {
	alarm Alarm
	timer *clock.Timer
}

// New creates a scheduler. A nil clk uses the wall clock.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clk,
		bus:    events.New(),
		logger: logger,
		alarms: make(map[string]*entry),
	}
}

// Events returns the bus on which alarm-fired events are published.
func (s *Scheduler) Events() *events.Bus {
	return s.bus
}

// Now returns the scheduler clock's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Create schedules an alarm for at. It fails with ErrInvalidTime when at
// is not after the current time.
func (s *Scheduler) Create(at time.Time, message string) (Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Alarm{}, ErrStopped
	}

	now := s.clock.Now()
	if !at.After(now) {
		return Alarm{}, fmt.Errorf("%w: %s", ErrInvalidTime, at.Format(time.RFC3339))
	}

	a := Alarm{
		ID:      NewID(),
		Time:    at,
		Message: message,
		Active:  true,
	}
	id := a.ID
	e := &entry{alarm: a}
	e.timer = s.clock.AfterFunc(at.Sub(now), func() { s.fire(id) })
	s.alarms[id] = e

	s.logger.Info("alarm scheduled", "alarm_id", id, "at", at, "delay", at.Sub(now).Round(time.Second))
	return a, nil
}

// Cancel stops and removes a pending alarm. It reports false when the
// id is unknown or the alarm has already fired.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.alarms[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.alarms, id)

	s.logger.Info("alarm cancelled", "alarm_id", id)
	return true
}

// List returns the active alarms ordered by firing time.
func (s *Scheduler) List() []Alarm {
	s.mu.Lock()
	out := make([]Alarm, 0, len(s.alarms))
	for _, e := range s.alarms {
		out = append(out, e.alarm)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// Stop cancels every pending timer. Later Create calls fail.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for id, e := range s.alarms {
		e.timer.Stop()
		delete(s.alarms, id)
	}
	s.logger.Debug("alarm scheduler stopped")
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.alarms[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.alarms, id)
	e.alarm.Active = false
	snap := e.alarm
	s.mu.Unlock()

	s.logger.Info("alarm fired", "alarm_id", id, "scheduled", snap.Time, "late", s.clock.Since(snap.Time).Round(time.Millisecond))

	s.bus.Publish(events.Event{
		Timestamp: s.clock.Now(),
		Source:    events.SourceAlarm,
		Kind:      events.KindAlarmFired,
		Data: map[string]any{
			"id":      snap.ID,
			"time":    snap.Time.Format(time.RFC3339),
			"message": snap.Message,
		},
	})
}
