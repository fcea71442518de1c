// Package alarm owns pending one-shot notifications. An alarm lives in
// the scheduler from creation until it fires or is cancelled; firing
// publishes a snapshot on the scheduler's event bus. Alarms are held in
// memory only and do not survive a restart.
package alarm

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/hearth/internal/events"
)

// ErrInvalidTime is returned by Create when the firing time is not
// strictly in the future.
var ErrInvalidTime = errors.New("alarm time must be in the future")

// ErrStopped is returned by Create after Stop.
var ErrStopped = errors.New("alarm scheduler stopped")

// Alarm is the public projection of a pending or fired alarm.
type Alarm struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Active  bool      `json:"active"`
}

// NewID generates a UUIDv7, falling back to v4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Notice is the announcement of a fired alarm as sent to sessions and
// the MQTT broker.
type Notice struct {
	ID      string `json:"id"`
	Time    string `json:"time"`
	Message string `json:"message"`
}

// NoticeFromEvent extracts a Notice from an alarm-fired event.
func NoticeFromEvent(e events.Event) (Notice, bool) {
	if e.Source != events.SourceAlarm || e.Kind != events.KindAlarmFired {
		return Notice{}, false
	}
	return Notice{ID: e.String("id"), Time: e.String("time"), Message: e.String("message")}, true
}
