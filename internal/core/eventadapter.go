package core

import "sync"

// idSet is a set of opaque request ids. It reports whether an Add/Remove
// call crossed the empty/non-empty boundary. EventAdapter forwards the
// releasing side (enable, no-notification, allow) only when the set
// becomes empty, so several clients holding the same thing release it in
// one state transition; the disallowing side is forwarded on every call
// (spec §4.2).
type idSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{ids: make(map[string]struct{})}
}

// add returns true the first time the set becomes non-empty.
func (s *idSet) add(id string) (becameNonEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasEmpty := len(s.ids) == 0
	s.ids[id] = struct{}{}
	return wasEmpty && len(s.ids) > 0
}

// remove returns true the moment the set becomes empty. Removing an id
// that was never added is a no-op.
func (s *idSet) remove(id string) (becameEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return len(s.ids) == 0
}

// inactivityTimeoutTarget and notificationTarget are the slices of
// *StateMachine's API that EventAdapter forwards to. Declaring them as
// interfaces (rather than depending on *StateMachine directly) lets tests
// exercise EventAdapter's de-dup logic with a lightweight spy instead of a
// fully-wired state machine.
type inactivityTimeoutTarget interface {
	HandleEnableInactivityTimeout()
	HandleDisableInactivityTimeout()
}

type notificationTarget interface {
	HandleNotification()
	HandleNoNotification()
}

// EventAdapter sits between a session's raw, per-client-request event
// sources and its StateMachine, collapsing concurrent multi-client
// requests into the single edge-triggered calls the StateMachine expects.
// Grounded on original_source/src/core/state_event_adapter.cpp.
type EventAdapter struct {
	machine inactivityTimeoutTarget
	notify  notificationTarget
	power   SystemPowerControl

	inactivityTimeoutDisallowances *idSet
	activeNotifications            *idSet
	suspendDisallowances            *idSet
}

// NewEventAdapter constructs an EventAdapter forwarding de-duplicated
// edges to machine, and (for suspend disallowances, which are actioned
// directly rather than routed through state-machine logic) to power.
func NewEventAdapter(machine *StateMachine, power SystemPowerControl) *EventAdapter {
	return &EventAdapter{
		machine:                        machine,
		notify:                         machine,
		power:                          power,
		inactivityTimeoutDisallowances: newIDSet(),
		activeNotifications:            newIDSet(),
		suspendDisallowances:           newIDSet(),
	}
}

// newEventAdapterForTest builds an EventAdapter against lightweight spies
// instead of a real *StateMachine; used only by this package's tests.
func newEventAdapterForTest(machine inactivityTimeoutTarget, notify notificationTarget, power SystemPowerControl) *EventAdapter {
	return &EventAdapter{
		machine:                        machine,
		notify:                         notify,
		power:                          power,
		inactivityTimeoutDisallowances: newIDSet(),
		activeNotifications:            newIDSet(),
		suspendDisallowances:           newIDSet(),
	}
}

// HandleDisableInactivityTimeout records that id no longer wants the
// inactivity timeout active and forwards unconditionally: every
// disallowance call reaches the state machine, not just the first
// (original_source/src/core/state_event_adapter.cpp).
func (a *EventAdapter) HandleDisableInactivityTimeout(id string) {
	becameNonEmpty := a.inactivityTimeoutDisallowances.add(id)
	a.machine.HandleDisableInactivityTimeout()
	if becameNonEmpty {
		metricInactivityDisallowancesTotal.WithLabelValues(labelEdgeDisallow).Inc()
	}
}

// HandleEnableInactivityTimeout removes id's disallowance. Once no
// disallowance remains, forwards HandleEnableInactivityTimeout.
func (a *EventAdapter) HandleEnableInactivityTimeout(id string) {
	if a.inactivityTimeoutDisallowances.remove(id) {
		a.machine.HandleEnableInactivityTimeout()
		metricInactivityDisallowancesTotal.WithLabelValues(labelEdgeAllow).Inc()
	}
}

// HandleNotification records notification id as active and forwards
// HandleNotification to the state machine unconditionally, on every call
// (state_event_adapter.cpp).
func (a *EventAdapter) HandleNotification(id string) {
	a.activeNotifications.add(id)
	a.notify.HandleNotification()
}

// HandleNoNotification clears notification id. Once no notification
// remains active, forwards HandleNoNotification.
func (a *EventAdapter) HandleNoNotification(id string) {
	if a.activeNotifications.remove(id) {
		a.notify.HandleNoNotification()
	}
}

// HandleDisallowSuspend records a client's suspend disallowance and calls
// through to the SystemPowerControl sink unconditionally, on every call
// (state_event_adapter.cpp) — only HandleAllowSuspend is edge-triggered.
func (a *EventAdapter) HandleDisallowSuspend(id string) {
	becameNonEmpty := a.suspendDisallowances.add(id)
	a.power.DisallowSuspend(id, SuspendTypeAny)
	if becameNonEmpty {
		metricSuspendDisallowancesTotal.WithLabelValues(labelEdgeDisallow).Inc()
	}
}

// HandleAllowSuspend clears a client's suspend disallowance. Once no
// disallowance remains, calls through to allow suspend again.
func (a *EventAdapter) HandleAllowSuspend(id string) {
	if a.suspendDisallowances.remove(id) {
		a.power.AllowSuspend(id, SuspendTypeAny)
		metricSuspendDisallowancesTotal.WithLabelValues(labelEdgeAllow).Inc()
	}
}
