package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AlarmHandler is invoked when a scheduled alarm fires. It is called with
// no internal Timer lock held, so handlers may call CancelAlarm or
// ScheduleAlarmIn from within themselves.
type AlarmHandler func(AlarmID)

// Timer schedules and cancels one-shot alarms and exposes the monotonic
// clock repowerd's state machines reason about. A Timer has exactly one
// registered AlarmHandler at a time; registering a new one replaces it.
type Timer interface {
	// RegisterAlarmHandler installs the callback invoked when any alarm
	// scheduled by this Timer fires. Replaces any previously registered
	// handler.
	RegisterAlarmHandler(AlarmHandler)

	// ScheduleAlarmIn schedules a new alarm to fire after d and returns
	// its id. A non-positive d still fires asynchronously rather than
	// synchronously, so callers never reenter their own call stack.
	ScheduleAlarmIn(d time.Duration) AlarmID

	// CancelAlarm cancels a pending alarm. Cancelling an already-fired or
	// unknown id is a no-op.
	CancelAlarm(AlarmID)

	// Now returns the timer's current monotonic time.
	Now() time.Time
}

// ClockworkTimer implements Timer on top of a clockwork.Clock, so
// production code runs against the wall clock and tests run against a
// clockwork.FakeClock that can be advanced deterministically.
type ClockworkTimer struct {
	clock clockwork.Clock
	log   *slog.Logger
	ids   *alarmIDAllocator

	mu      sync.Mutex
	handler AlarmHandler
	pending map[AlarmID]clockwork.Timer
}

// NewClockworkTimer constructs a Timer backed by clock. Pass
// clockwork.NewRealClock() in production and clockwork.NewFakeClock() in
// tests.
func NewClockworkTimer(clock clockwork.Clock, log *slog.Logger) *ClockworkTimer {
	if log == nil {
		log = slog.Default()
	}
	return &ClockworkTimer{
		clock:   clock,
		log:     log,
		ids:     newAlarmIDAllocator(),
		pending: make(map[AlarmID]clockwork.Timer),
	}
}

func (t *ClockworkTimer) RegisterAlarmHandler(h AlarmHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *ClockworkTimer) ScheduleAlarmIn(d time.Duration) AlarmID {
	id := t.ids.Allocate()
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	ct := t.clock.AfterFunc(d, func() { t.fire(id) })
	t.pending[id] = ct
	t.mu.Unlock()

	t.log.Debug("alarm scheduled", "alarm_id", id, "delay", d)
	metricAlarmsTotal.WithLabelValues(labelAlarmOutcomeScheduled).Inc()
	return id
}

func (t *ClockworkTimer) fire(id AlarmID) {
	t.mu.Lock()
	_, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	handler := t.handler
	t.mu.Unlock()

	if !ok {
		return
	}
	t.log.Debug("alarm fired", "alarm_id", id)
	metricAlarmsTotal.WithLabelValues(labelAlarmOutcomeFired).Inc()
	if handler != nil {
		handler(id)
	}
}

func (t *ClockworkTimer) CancelAlarm(id AlarmID) {
	t.mu.Lock()
	ct, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok {
		ct.Stop()
		t.log.Debug("alarm cancelled", "alarm_id", id)
		metricAlarmsTotal.WithLabelValues(labelAlarmOutcomeCancelled).Inc()
	}
}

func (t *ClockworkTimer) Now() time.Time {
	return t.clock.Now()
}
