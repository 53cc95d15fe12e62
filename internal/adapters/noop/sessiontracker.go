package noop

import "github.com/ubports/repowerd/internal/core"

// StaticSessionTracker reports a single fixed Compatible session as active
// as soon as StartProcessing runs. Real login-session tracking (logind,
// systemd-logind D-Bus) is explicitly out of the core's scope; this stand-in
// is enough to run the daemon standalone against one session.
type StaticSessionTracker struct {
	SessionID string

	activeHandler  core.ActiveSessionChangedHandler
	removedHandler core.SessionRemovedHandler
}

var _ core.SessionTracker = (*StaticSessionTracker)(nil)

func (t *StaticSessionTracker) StartProcessing() {
	if t.activeHandler != nil {
		t.activeHandler(t.SessionID, core.SessionTypeCompatible)
	}
}

func (t *StaticSessionTracker) RegisterActiveSessionChangedHandler(h core.ActiveSessionChangedHandler) *core.Registration {
	t.activeHandler = h
	return core.NewNoopRegistration()
}

func (t *StaticSessionTracker) RegisterSessionRemovedHandler(h core.SessionRemovedHandler) *core.Registration {
	t.removedHandler = h
	return core.NewNoopRegistration()
}

func (t *StaticSessionTracker) SessionForPID(pid int) (string, bool) {
	return t.SessionID, true
}
