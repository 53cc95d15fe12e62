package core

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeUserActivitySource struct {
	handler UserActivityHandler
}

func (f *fakeUserActivitySource) RegisterUserActivityHandler(h UserActivityHandler) *Registration {
	f.handler = h
	return NewNoopRegistration()
}

func (f *fakeUserActivitySource) fire(t UserActivityType) {
	if f.handler != nil {
		f.handler(t)
	}
}

type fakeSessionTracker struct {
	activeHandler  ActiveSessionChangedHandler
	removedHandler SessionRemovedHandler
}

func (f *fakeSessionTracker) StartProcessing() {}

func (f *fakeSessionTracker) RegisterActiveSessionChangedHandler(h ActiveSessionChangedHandler) *Registration {
	f.activeHandler = h
	return NewNoopRegistration()
}

func (f *fakeSessionTracker) RegisterSessionRemovedHandler(h SessionRemovedHandler) *Registration {
	f.removedHandler = h
	return NewNoopRegistration()
}

func (f *fakeSessionTracker) SessionForPID(pid int) (string, bool) { return "", false }

type fakeLidSource struct {
	handler LidHandler
}

func (f *fakeLidSource) StartProcessing() {}

func (f *fakeLidSource) RegisterLidHandler(h LidHandler) *Registration {
	f.handler = h
	return NewNoopRegistration()
}

func (f *fakeLidSource) fire(s LidState) {
	if f.handler != nil {
		f.handler(s)
	}
}

// daemonFixture bundles a Daemon wired against one compatible session,
// sharing a single real Timer between the daemon and the session's
// StateMachine, matching how alarms are broadcast in production (spec
// §4.4's "alarm broadcast" policy depends on one shared Timer).
type daemonFixture struct {
	display    *displaySpy
	brightness *brightnessSpy
	displayEvt *displayEventSpy
	modem      *modemSpy
	perf       *perfSpy
	button     *buttonSpy
	proximity  *proximitySpy
	power      *powerSpy
	machine    *StateMachine
}

func newDaemonFixture(t *testing.T) (*Daemon, *fakeUserActivitySource, *fakeSessionTracker, *daemonFixture) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	timer := NewClockworkTimer(clock, nil)

	ua := &fakeUserActivitySource{}
	tracker := &fakeSessionTracker{}

	daemon := NewDaemon(DaemonConfig{}, DaemonDeps{
		Timer:          timer,
		UserActivity:   ua,
		SessionTracker: tracker,
	}, nil)

	f := &daemonFixture{
		display:    &displaySpy{},
		brightness: &brightnessSpy{},
		displayEvt: &displayEventSpy{},
		modem:      &modemSpy{},
		perf:       &perfSpy{},
		button:     &buttonSpy{},
		proximity:  &proximitySpy{state: ProximityFar},
		power:      newPowerSpy(),
	}
	cfg := StateMachineConfig{}
	require.NoError(t, cfg.Validate())
	f.machine = NewStateMachine("sess-1", cfg, StateMachineDeps{
		Timer: timer, Display: f.display, Brightness: f.brightness, DisplaySink: f.displayEvt,
		Modem: f.modem, Perf: f.perf, ButtonSink: f.button, Proximity: f.proximity, Power: f.power,
	}, nil)
	f.machine.Start()

	require.NoError(t, daemon.AddSession(&Session{
		ID:      "sess-1",
		Type:    SessionTypeCompatible,
		Machine: f.machine,
		Adapter: NewEventAdapter(f.machine, f.power),
	}))

	return daemon, ua, tracker, f
}

func TestCore_Daemon_DispatchesUserActivityOnlyToActiveSession(t *testing.T) {
	t.Parallel()
	daemon, ua, tracker, f := newDaemonFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = daemon.Run(ctx)
		close(runDone)
	}()
	time.Sleep(20 * time.Millisecond) // let Run finish registering handlers

	// Before any session is active, activity must be dropped silently.
	ua.fire(UserActivityChangingPowerState)
	daemon.Flush()
	require.Empty(t, f.display.onCalls)

	tracker.activeHandler("sess-1", SessionTypeCompatible)
	daemon.Flush()
	require.Equal(t, "sess-1", daemon.Snapshot().ActiveSessionID)

	ua.fire(UserActivityChangingPowerState)
	daemon.Flush()
	require.Len(t, f.display.onCalls, 1)

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after context cancellation")
	}
}

func TestCore_Daemon_AddSession_RejectsDuplicateAndInvalid(t *testing.T) {
	t.Parallel()
	daemon := NewDaemon(DaemonConfig{}, DaemonDeps{}, nil)

	require.Error(t, daemon.AddSession(&Session{ID: ""}))
	require.Error(t, daemon.AddSession(&Session{ID: "s1", Type: SessionTypeCompatible}))

	require.NoError(t, daemon.AddSession(&Session{ID: "s2", Type: SessionTypeIncompatible}))
	require.Error(t, daemon.AddSession(&Session{ID: "s2", Type: SessionTypeIncompatible}))
}

func TestCore_Daemon_SessionRemoved_ClearsActiveSession(t *testing.T) {
	t.Parallel()
	daemon, _, tracker, _ := newDaemonFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = daemon.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	tracker.activeHandler("sess-1", SessionTypeCompatible)
	daemon.Flush()
	require.Equal(t, "sess-1", daemon.Snapshot().ActiveSessionID)

	tracker.removedHandler("sess-1")
	daemon.Flush()
	require.Equal(t, InvalidSessionID, daemon.Snapshot().ActiveSessionID)
}

func TestCore_Daemon_LidAndPowerSourceCritical_DispatchToActiveSessionOnly(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timer := NewClockworkTimer(clock, nil)
	tracker := &fakeSessionTracker{}
	lid := &fakeLidSource{}

	daemon := NewDaemon(DaemonConfig{}, DaemonDeps{
		Timer:          timer,
		SessionTracker: tracker,
		Lid:            lid,
	}, nil)

	power := newPowerSpy()
	machine := NewStateMachine("sess-1", StateMachineConfig{}, StateMachineDeps{
		Timer: timer, Display: &displaySpy{}, Brightness: &brightnessSpy{}, DisplaySink: &displayEventSpy{},
		Modem: &modemSpy{}, Perf: &perfSpy{}, ButtonSink: &buttonSpy{}, Proximity: &proximitySpy{state: ProximityFar},
		Power: power,
	}, nil)
	machine.Start()
	require.NoError(t, daemon.AddSession(&Session{
		ID: "sess-1", Type: SessionTypeCompatible, Machine: machine, Adapter: NewEventAdapter(machine, power),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = daemon.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	lid.fire(LidClosed)
	daemon.Flush()
	require.Equal(t, 0, power.suspendWhenAllowedCalls[machine.suspendID()], "lid events must be dropped with no active session")

	tracker.activeHandler("sess-1", SessionTypeCompatible)
	daemon.Flush()

	lid.fire(LidClosed)
	daemon.Flush()
	require.Equal(t, 1, power.suspendWhenAllowedCalls[machine.suspendID()])
}
