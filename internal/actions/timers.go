package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/hearth/internal/alarm"
)

// AlarmScheduler is the timers capability.
type AlarmScheduler interface {
	Create(at time.Time, message string) (alarm.Alarm, error)
	Cancel(id string) bool
	List() []alarm.Alarm
	Now() time.Time
}

// AlarmSet is the set_alarm payload.
type AlarmSet struct {
	alarm.Alarm
	Summary string `json:"summary"`
}

func (d *Dispatcher) registerTimers() {
	d.register(&Definition{
		Name:        "set_alarm",
		Domain:      DomainTimers,
		Description: "Set a one-shot alarm that notifies every open session when it fires",
		Parameters: schema(map[string]any{
			"time":    prop("string", `RFC 3339, "YYYY-MM-DDTHH:MM", "HH:MM" (today, local), "in 10 minutes" or "10m"`),
			"message": prop("string", "What to say when it fires"),
		}, "time"),
		handler: d.setAlarm,
	})
	d.register(&Definition{
		Name:        "cancel_alarm",
		Domain:      DomainTimers,
		Description: "Cancel a pending alarm",
		Parameters:  schema(map[string]any{"alarmId": prop("string", "Alarm id")}, "alarmId"),
		handler:     d.cancelAlarm,
	})
	d.register(&Definition{
		Name:        "list_alarms",
		Domain:      DomainTimers,
		Description: "List pending alarms",
		Parameters:  schema(map[string]any{}),
		handler:     d.listAlarms,
	})
}

func (d *Dispatcher) setAlarm(_ context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Alarms == nil {
		return nil, ErrNotConfigured
	}
	when, err := requireStr(params, "time")
	if err != nil {
		return nil, err
	}
	now := d.p.Alarms.Now().In(d.p.Location)
	at, err := alarm.ParseWhen(when, now)
	if err != nil {
		return nil, err
	}
	msg := str(params, "message")
	if msg == "" {
		msg = "Alarm"
	}

	a, err := d.p.Alarms.Create(at, msg)
	if err != nil {
		return nil, err
	}
	return AlarmSet{
		Alarm: a,
		Summary: fmt.Sprintf("Alarm set for %s from now (%s) with message: %s",
			alarm.FormatUntil(at.Sub(now)), at.Format(time.RFC3339), msg),
	}, nil
}

func (d *Dispatcher) cancelAlarm(_ context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Alarms == nil {
		return nil, ErrNotConfigured
	}
	id, err := requireStr(params, "alarmId")
	if err != nil {
		return nil, err
	}
	if !d.p.Alarms.Cancel(id) {
		return nil, fmt.Errorf("alarm %s not found", id)
	}
	return map[string]any{"cancelled": id}, nil
}

func (d *Dispatcher) listAlarms(context.Context, map[string]any, *RequestContext) (any, error) {
	if d.p.Alarms == nil {
		return nil, ErrNotConfigured
	}
	return d.p.Alarms.List(), nil
}
