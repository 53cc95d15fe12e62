package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DaemonConfig carries daemon-wide startup behavior (spec §4.4).
type DaemonConfig struct {
	// TurnOnDisplayAtStartup, if true, enqueues an activity event for the
	// active session before the loop starts processing external events.
	TurnOnDisplayAtStartup bool
}

// DaemonDeps bundles every external event source the daemon registers
// against at startup, plus the shared Timer driving all sessions' alarms.
type DaemonDeps struct {
	Timer          Timer
	UserActivity   UserActivitySource
	PowerButton    PowerButtonSource
	Proximity      ProximitySource
	PowerSource    PowerSource
	VoiceCall      VoiceCallService
	Notifications  NotificationService
	ClientRequests ClientRequests
	SessionTracker SessionTracker
	Lid            LidSource
}

// action is a unit of work run on the daemon's single loop goroutine. All
// session-table mutation and all StateMachine/EventAdapter calls happen
// only from inside an action, so calls into those types are serialized on
// that goroutine (spec §5).
type action struct {
	fn   func()
	done chan struct{} // non-nil for Flush markers
}

// Daemon is repowerd's single-threaded event loop: a FIFO queue of
// actions fed by registered external event sources, drained by one
// goroutine that owns the session table and every session's StateMachine.
// Queue mechanics grounded on original_source/src/core/daemon.cpp
// (enqueue_event / enqueue_priority_event / dequeue_event / flush);
// dispatch-to-session structure grounded on
// client/doublezerod/internal/liveness/manager.go's HandleRx.
type Daemon struct {
	cfg  DaemonConfig
	deps DaemonDeps
	log  *slog.Logger

	qmu     sync.Mutex
	qcond   *sync.Cond
	queue   []action
	stopped bool

	mu              sync.Mutex
	sessions        map[string]*Session
	sessionOrder    []string
	activeSessionID string

	registrations []*Registration

	wg sync.WaitGroup
}

// NewDaemon constructs a Daemon. Call Run to start processing.
func NewDaemon(cfg DaemonConfig, deps DaemonDeps, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	d := &Daemon{
		cfg:             cfg,
		deps:            deps,
		log:             log,
		sessions:        make(map[string]*Session),
		activeSessionID: InvalidSessionID,
	}
	d.qcond = sync.NewCond(&d.qmu)
	return d
}

// --- queue ---

func (d *Daemon) enqueue(fn func()) {
	d.qmu.Lock()
	d.queue = append(d.queue, action{fn: fn})
	metricActionQueueDepth.Set(float64(len(d.queue)))
	d.qmu.Unlock()
	d.qcond.Signal()
}

func (d *Daemon) enqueuePriority(fn func()) {
	d.qmu.Lock()
	d.queue = append([]action{{fn: fn}}, d.queue...)
	metricActionQueueDepth.Set(float64(len(d.queue)))
	d.qmu.Unlock()
	d.qcond.Signal()
}

// Flush blocks until every action enqueued before this call has been
// processed. Test helper, grounded on daemon.cpp's flush().
func (d *Daemon) Flush() {
	done := make(chan struct{})
	d.qmu.Lock()
	d.queue = append(d.queue, action{done: done})
	metricActionQueueDepth.Set(float64(len(d.queue)))
	d.qmu.Unlock()
	d.qcond.Signal()
	<-done
}

// Stop enqueues a priority action that ends the loop once processed. Run
// returns shortly after.
func (d *Daemon) Stop() {
	d.enqueuePriority(func() {
		d.qmu.Lock()
		d.stopped = true
		d.qmu.Unlock()
	})
	d.qcond.Signal()
}

func (d *Daemon) dequeue() (action, bool) {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	for len(d.queue) == 0 && !d.stopped {
		d.qcond.Wait()
	}
	if d.stopped {
		return action{}, false
	}
	a := d.queue[0]
	d.queue = d.queue[1:]
	metricActionQueueDepth.Set(float64(len(d.queue)))
	return a, true
}

// --- startup ---

// Run registers the daemon's external handlers, starts the sources that
// need explicit StartProcessing, and then runs the FIFO loop until ctx is
// cancelled or Stop is called. Startup order matches spec §4.4: register
// handlers, start external sources, apply TurnOnDisplayAtStartup, then
// loop.
func (d *Daemon) Run(ctx context.Context) error {
	d.registerHandlers()

	if d.deps.SessionTracker != nil {
		d.deps.SessionTracker.StartProcessing()
	}
	if d.deps.PowerSource != nil {
		d.deps.PowerSource.StartProcessing()
	}
	if d.deps.ClientRequests != nil {
		d.deps.ClientRequests.StartProcessing()
	}
	if d.deps.Lid != nil {
		d.deps.Lid.StartProcessing()
	}

	if d.cfg.TurnOnDisplayAtStartup {
		d.enqueue(func() {
			d.dispatchActive(func(s *Session) {
				s.Machine.HandleUserActivityChangingPowerState()
			})
		})
	}

	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			d.Stop()
		case <-stopCh:
		}
	}()

	d.log.Info("daemon loop starting")
	d.loop()
	d.log.Info("daemon loop stopped")

	close(stopCh)
	d.closeRegistrations()
	return nil
}

func (d *Daemon) loop() {
	for {
		a, ok := d.dequeue()
		if !ok {
			return
		}
		if a.done != nil {
			close(a.done)
			continue
		}
		a.fn()
		metricActionsProcessedTotal.Inc()
	}
}

func (d *Daemon) closeRegistrations() {
	for _, r := range d.registrations {
		r.Close()
	}
	d.registrations = nil
}

func (d *Daemon) registerHandlers() {
	reg := func(r *Registration) {
		if r != nil {
			d.registrations = append(d.registrations, r)
		}
	}

	if d.deps.Timer != nil {
		d.deps.Timer.RegisterAlarmHandler(func(id AlarmID) {
			d.enqueue(func() { d.dispatchAlarm(id) })
		})
	}
	if d.deps.UserActivity != nil {
		reg(d.deps.UserActivity.RegisterUserActivityHandler(func(t UserActivityType) {
			d.enqueue(func() {
				d.dispatchActive(func(s *Session) {
					if t == UserActivityChangingPowerState {
						s.Machine.HandleUserActivityChangingPowerState()
					} else {
						s.Machine.HandleUserActivityExtendingPowerState()
					}
				})
			})
		}))
	}
	if d.deps.PowerButton != nil {
		reg(d.deps.PowerButton.RegisterPowerButtonPressHandler(func() {
			d.enqueue(func() { d.dispatchActive(func(s *Session) { s.Machine.HandlePowerButtonPress() }) })
		}))
		reg(d.deps.PowerButton.RegisterPowerButtonReleaseHandler(func() {
			d.enqueue(func() { d.dispatchActive(func(s *Session) { s.Machine.HandlePowerButtonRelease() }) })
		}))
	}
	if d.deps.Proximity != nil {
		reg(d.deps.Proximity.RegisterProximityHandler(func(p ProximityState) {
			d.enqueue(func() {
				d.dispatchActive(func(s *Session) {
					if p == ProximityNear {
						s.Machine.HandleProximityNear()
					} else {
						s.Machine.HandleProximityFar()
					}
				})
			})
		}))
	}
	if d.deps.PowerSource != nil {
		// spec §4.4 lists power source change/critical among the
		// active-session-only events, not the system-global ones.
		reg(d.deps.PowerSource.RegisterPowerSourceChangeHandler(func() {
			d.enqueue(func() { d.dispatchActive(func(s *Session) { s.Machine.HandlePowerSourceChange() }) })
		}))
		reg(d.deps.PowerSource.RegisterPowerSourceCriticalHandler(func() {
			d.enqueue(func() { d.dispatchActive(func(s *Session) { s.Machine.HandlePowerSourceCritical() }) })
		}))
	}
	if d.deps.Lid != nil {
		reg(d.deps.Lid.RegisterLidHandler(func(state LidState) {
			d.enqueue(func() {
				d.dispatchActive(func(s *Session) {
					if state == LidClosed {
						s.Machine.HandleLidClosed()
					} else {
						s.Machine.HandleLidOpen()
					}
				})
			})
		}))
	}
	if d.deps.VoiceCall != nil {
		reg(d.deps.VoiceCall.RegisterActiveCallHandler(func() {
			d.enqueue(func() { d.dispatchActive(func(s *Session) { s.Machine.HandleActiveCall() }) })
		}))
		reg(d.deps.VoiceCall.RegisterNoActiveCallHandler(func() {
			d.enqueue(func() { d.dispatchActive(func(s *Session) { s.Machine.HandleNoActiveCall() }) })
		}))
	}
	if d.deps.Notifications != nil {
		reg(d.deps.Notifications.RegisterNotificationHandler(func() {
			d.enqueue(func() {
				d.dispatchActive(func(s *Session) { s.Adapter.HandleNotification("notification-service") })
			})
		}))
		reg(d.deps.Notifications.RegisterNoNotificationHandler(func() {
			d.enqueue(func() {
				d.dispatchActive(func(s *Session) { s.Adapter.HandleNoNotification("notification-service") })
			})
		}))
	}
	if d.deps.ClientRequests != nil {
		cr := d.deps.ClientRequests
		reg(cr.RegisterEnableInactivityTimeoutHandler(func(sessionID string) {
			d.enqueue(func() {
				d.dispatchNamed(sessionID, func(s *Session) { s.Adapter.HandleEnableInactivityTimeout(sessionID) })
			})
		}))
		reg(cr.RegisterDisableInactivityTimeoutHandler(func(sessionID string) {
			d.enqueue(func() {
				d.dispatchNamed(sessionID, func(s *Session) { s.Adapter.HandleDisableInactivityTimeout(sessionID) })
			})
		}))
		reg(cr.RegisterSetInactivityTimeoutHandler(func(timeout time.Duration, sessionID string) {
			d.enqueue(func() {
				d.dispatchNamed(sessionID, func(s *Session) { s.Machine.HandleSetInactivityTimeout(timeout) })
			})
		}))
		reg(cr.RegisterSetNormalBrightnessValueHandler(func(value float64, sessionID string) {
			d.enqueue(func() {
				d.dispatchNamed(sessionID, func(s *Session) { s.Machine.HandleSetNormalBrightnessValue(value) })
			})
		}))
		reg(cr.RegisterEnableAutobrightnessHandler(func(sessionID string) {
			d.enqueue(func() {
				d.dispatchNamed(sessionID, func(s *Session) { s.Machine.HandleEnableAutobrightness() })
			})
		}))
		reg(cr.RegisterDisableAutobrightnessHandler(func(sessionID string) {
			d.enqueue(func() {
				d.dispatchNamed(sessionID, func(s *Session) { s.Machine.HandleDisableAutobrightness() })
			})
		}))
	}
	if d.deps.SessionTracker != nil {
		st := d.deps.SessionTracker
		reg(st.RegisterActiveSessionChangedHandler(func(sessionID string, typ SessionType) {
			d.enqueue(func() { d.handleActiveSessionChanged(sessionID, typ) })
		}))
		reg(st.RegisterSessionRemovedHandler(func(sessionID string) {
			d.enqueue(func() { d.handleSessionRemoved(sessionID) })
		}))
	}
}

// --- dispatch policies (spec §4.4) ---

// dispatchable reports whether a session has a live StateMachine/EventAdapter
// pair to dispatch into. Incompatible sessions, and sessions the tracker has
// announced but that haven't been wired via AddSession yet, have neither and
// must be skipped rather than dispatched into.
func dispatchable(s *Session) bool {
	return s != nil && s.Type == SessionTypeCompatible && s.Machine != nil && s.Adapter != nil
}

// dispatchActive routes fn to the currently active session only.
func (d *Daemon) dispatchActive(fn func(*Session)) {
	d.mu.Lock()
	s, ok := d.sessions[d.activeSessionID]
	d.mu.Unlock()
	if ok && dispatchable(s) {
		fn(s)
	}
}

// dispatchNamed routes fn to a single session identified explicitly by a
// client request, regardless of which session is active.
func (d *Daemon) dispatchNamed(sessionID string, fn func(*Session)) {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if ok && dispatchable(s) {
		fn(s)
	}
}

// dispatchAll routes fn to every compatible session. Its only caller is
// dispatchAlarm.
func (d *Daemon) dispatchAll(fn func(*Session)) {
	d.mu.Lock()
	sessions := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()
	for _, s := range sessions {
		if dispatchable(s) {
			fn(s)
		}
	}
}

// dispatchAlarm broadcasts an alarm id to every session's state machine;
// only the one that actually scheduled it reacts (spec §4.4 "alarm
// broadcast" policy), since AlarmIDs are drawn from one shared Timer.
func (d *Daemon) dispatchAlarm(id AlarmID) {
	d.dispatchAll(func(s *Session) { s.Machine.HandleAlarm(id) })
}

// --- session lifecycle ---

// AddSession inserts a new session into the table. For a Compatible
// session, machine and adapter must be non-nil and already wired to this
// session's sinks.
func (d *Daemon) AddSession(s *Session) error {
	if s == nil || s.ID == InvalidSessionID {
		return fmt.Errorf("core: session must have a non-empty id")
	}
	if s.Type == SessionTypeCompatible && (s.Machine == nil || s.Adapter == nil) {
		return fmt.Errorf("core: compatible session %q requires a machine and adapter", s.ID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.sessions[s.ID]; exists {
		return fmt.Errorf("core: session %q already exists", s.ID)
	}
	d.sessions[s.ID] = s
	d.sessionOrder = append(d.sessionOrder, s.ID)
	metricSessionsTotal.Set(float64(len(d.sessions)))
	d.log.Info("session added", "session_id", s.ID, "type", s.Type.String())
	return nil
}

func (d *Daemon) handleActiveSessionChanged(sessionID string, typ SessionType) {
	d.mu.Lock()
	if _, ok := d.sessions[sessionID]; !ok {
		d.sessions[sessionID] = &Session{ID: sessionID, Type: typ}
		d.sessionOrder = append(d.sessionOrder, sessionID)
		metricSessionsTotal.Set(float64(len(d.sessions)))
	}
	prevID := d.activeSessionID
	prev, hadPrev := d.sessions[prevID]
	d.activeSessionID = sessionID
	d.mu.Unlock()

	if hadPrev && prevID != sessionID && prev.Machine != nil {
		prev.Machine.Pause()
	}
	d.mu.Lock()
	s := d.sessions[sessionID]
	d.mu.Unlock()
	if s != nil && s.Machine != nil {
		s.Machine.Resume()
	}
}

func (d *Daemon) handleSessionRemoved(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
	for i, id := range d.sessionOrder {
		if id == sessionID {
			d.sessionOrder = append(d.sessionOrder[:i], d.sessionOrder[i+1:]...)
			break
		}
	}
	if d.activeSessionID == sessionID {
		d.activeSessionID = InvalidSessionID
	}
	metricSessionsTotal.Set(float64(len(d.sessions)))
}

// DaemonSnapshot is a read-only view of the daemon's session table, used
// by metrics endpoints and tests.
type DaemonSnapshot struct {
	SessionCount    int
	ActiveSessionID string
}

// Snapshot returns a point-in-time view of the session table.
func (d *Daemon) Snapshot() DaemonSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DaemonSnapshot{
		SessionCount:    len(d.sessions),
		ActiveSessionID: d.activeSessionID,
	}
}
