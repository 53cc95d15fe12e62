package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTimer is a deterministic Timer: it never actually schedules anything
// on a real clock. Tests drive alarms by reading the AlarmID a call leaves
// on the machine's (unexported, same-package-visible) state and calling
// HandleAlarm directly.
type fakeTimer struct {
	mu        sync.Mutex
	now       time.Time
	nextID    AlarmID
	scheduled map[AlarmID]time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{now: time.Unix(1700000000, 0), nextID: 1, scheduled: map[AlarmID]time.Duration{}}
}

func (f *fakeTimer) RegisterAlarmHandler(AlarmHandler) {}

func (f *fakeTimer) ScheduleAlarmIn(d time.Duration) AlarmID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.scheduled[id] = d
	return id
}

func (f *fakeTimer) CancelAlarm(id AlarmID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, id)
}

func (f *fakeTimer) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTimer) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type displaySpy struct {
	onCalls  []DisplayFilter
	offCalls []DisplayFilter
}

func (s *displaySpy) TurnOn(f DisplayFilter)  { s.onCalls = append(s.onCalls, f) }
func (s *displaySpy) TurnOff(f DisplayFilter) { s.offCalls = append(s.offCalls, f) }

type brightnessSpy struct {
	normalCalls           int
	dimCalls              int
	offCalls              int
	normalValue           float64
	autobrightnessEnabled bool
}

func (s *brightnessSpy) SetNormalBrightness()               { s.normalCalls++ }
func (s *brightnessSpy) SetDimBrightness()                  { s.dimCalls++ }
func (s *brightnessSpy) SetOffBrightness()                  { s.offCalls++ }
func (s *brightnessSpy) SetNormalBrightnessValue(v float64) { s.normalValue = v }
func (s *brightnessSpy) EnableAutobrightness()              { s.autobrightnessEnabled = true }
func (s *brightnessSpy) DisableAutobrightness()              { s.autobrightnessEnabled = false }

type displayEventSpy struct {
	onReasons  []DisplayPowerChangeReason
	offReasons []DisplayPowerChangeReason
}

func (s *displayEventSpy) NotifyDisplayPowerOn(r DisplayPowerChangeReason) {
	s.onReasons = append(s.onReasons, r)
}
func (s *displayEventSpy) NotifyDisplayPowerOff(r DisplayPowerChangeReason) {
	s.offReasons = append(s.offReasons, r)
}

type modemSpy struct {
	lowPowerCalls, normalPowerCalls int
}

func (s *modemSpy) SetLowPowerMode()    { s.lowPowerCalls++ }
func (s *modemSpy) SetNormalPowerMode() { s.normalPowerCalls++ }

type perfSpy struct {
	enableCalls, disableCalls int
}

func (s *perfSpy) EnableInteractiveMode()  { s.enableCalls++ }
func (s *perfSpy) DisableInteractiveMode() { s.disableCalls++ }

type buttonSpy struct {
	longPressCalls int
}

func (s *buttonSpy) NotifyLongPress() { s.longPressCalls++ }

type proximitySpy struct {
	state                      ProximityState
	enableCalls, disableCalls int
}

func (s *proximitySpy) ProximityState() ProximityState { return s.state }
func (s *proximitySpy) EnableProximityEvents()         { s.enableCalls++ }
func (s *proximitySpy) DisableProximityEvents()        { s.disableCalls++ }

type externalDisplaySpy struct {
	active bool
}

func (s *externalDisplaySpy) HasActiveExternalDisplays() bool { return s.active }

type testFixture struct {
	timer      *fakeTimer
	display    *displaySpy
	brightness *brightnessSpy
	displayEvt *displayEventSpy
	modem      *modemSpy
	perf       *perfSpy
	button     *buttonSpy
	proximity  *proximitySpy
	power      *powerSpy
	external   *externalDisplaySpy
	machine    *StateMachine
}

func newTestFixture(t *testing.T, cfg StateMachineConfig) *testFixture {
	t.Helper()
	require.NoError(t, cfg.Validate())

	f := &testFixture{
		timer:      newFakeTimer(),
		display:    &displaySpy{},
		brightness: &brightnessSpy{},
		displayEvt: &displayEventSpy{},
		modem:      &modemSpy{},
		perf:       &perfSpy{},
		button:     &buttonSpy{},
		proximity:  &proximitySpy{state: ProximityFar},
		power:      newPowerSpy(),
		external:   &externalDisplaySpy{},
	}
	f.machine = NewStateMachine("session-1", cfg, StateMachineDeps{
		Timer:            f.timer,
		Display:          f.display,
		Brightness:       f.brightness,
		DisplaySink:      f.displayEvt,
		Modem:            f.modem,
		Perf:             f.perf,
		ButtonSink:       f.button,
		Proximity:        f.proximity,
		Power:            f.power,
		ExternalDisplays: f.external,
	}, nil)
	return f
}

func TestCore_StateMachine_Start_DoesNotTurnOnDisplayByDefault(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)
	require.Empty(t, f.display.onCalls)
	require.Equal(t, 1, f.power.defaultHandlersDisallowedCalls)
}

func TestCore_StateMachine_Start_TurnsOnDisplayWhenConfigured(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{TurnOnDisplayAtStartup: true})
	f.machine.Start()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, []DisplayFilter{DisplayFilterAll}, f.display.onCalls)
	require.NotEqual(t, InvalidAlarmID, f.machine.offAlarm)
}

func TestCore_StateMachine_UserActivityChangingPowerState_TurnsOnWhenFar(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.proximity.state = ProximityFar

	f.machine.HandleUserActivityChangingPowerState()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, []DisplayPowerChangeReason{DisplayPowerChangeReasonActivity}, f.displayEvt.onReasons)
}

func TestCore_StateMachine_OffAlarm_TurnsOffDisplayWithActivityReason(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	offID := f.machine.offAlarm
	require.NotEqual(t, InvalidAlarmID, offID)
	f.machine.HandleAlarm(offID)

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)
	require.Equal(t, []DisplayPowerChangeReason{DisplayPowerChangeReasonActivity}, f.displayEvt.offReasons)
	require.Equal(t, 1, f.modem.lowPowerCalls)
	require.Equal(t, 1, f.power.allowed[f.machine.suspendID()])
}

func TestCore_StateMachine_DimAlarm_DimsWithoutChangingDisplayMode(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()

	dimID := f.machine.dimAlarm
	require.NotEqual(t, InvalidAlarmID, dimID)
	f.machine.HandleAlarm(dimID)

	require.Equal(t, 1, f.brightness.dimCalls)
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
}

func TestCore_StateMachine_PowerButtonPressWhenOff_TurnsOnAndReleaseLeavesItOn(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()

	f.machine.HandlePowerButtonPress()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.NotEqual(t, InvalidAlarmID, f.machine.powerButtonLongPressAlarm)

	f.machine.HandlePowerButtonRelease()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode,
		"releasing after a press that itself turned the display on must not also turn it off")
	require.Equal(t, InvalidAlarmID, f.machine.powerButtonLongPressAlarm)
}

func TestCore_StateMachine_PowerButtonPressRelease_TurnsOffDisplayWhenAlreadyOn(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	f.machine.HandlePowerButtonPress()
	f.machine.HandlePowerButtonRelease()

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)
	require.Equal(t, []DisplayPowerChangeReason{DisplayPowerChangeReasonPowerButton}, f.displayEvt.offReasons)
}

func TestCore_StateMachine_PowerButtonLongPress_SuppressesReleaseTurnOff(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	f.machine.HandlePowerButtonPress()
	longPressID := f.machine.powerButtonLongPressAlarm
	require.NotEqual(t, InvalidAlarmID, longPressID)
	f.machine.HandleAlarm(longPressID)
	require.Equal(t, 1, f.button.longPressCalls)

	f.machine.HandlePowerButtonRelease()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode,
		"a long press must consume the release instead of turning the display off")
	require.Empty(t, f.displayEvt.offReasons)
}

func TestCore_StateMachine_PowerButtonPress_TreatAsActivity_KeepsDisplayOnAcrossRelease(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{TreatPowerButtonAsUserActivity: true})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	f.machine.HandlePowerButtonPress()
	f.machine.HandlePowerButtonRelease()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Empty(t, f.displayEvt.offReasons)
}

func TestCore_StateMachine_ProximityNear_TurnsOffDisplayWhenOn(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	f.proximity.state = ProximityNear
	f.machine.HandleProximityNear()

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)
	require.Equal(t, []DisplayPowerChangeReason{DisplayPowerChangeReasonProximity}, f.displayEvt.offReasons)
	require.Equal(t, 0, f.modem.lowPowerCalls, "turning off for proximity must not drop the modem to low power")
	require.Equal(t, 0, f.power.allowed[f.machine.suspendID()], "turning off for proximity must not allow suspend")
}

func TestCore_StateMachine_ProximityNear_NoOpWhenDisplayAlreadyOff(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()

	f.proximity.state = ProximityNear
	f.machine.HandleProximityNear()

	require.Empty(t, f.displayEvt.offReasons)
}

func TestCore_StateMachine_Notification_EnablesProximityWhenNearAndOff(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.proximity.state = ProximityNear

	f.machine.HandleNotification()

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)
	require.Equal(t, proximityUntilFarEventOrNotificationExpiration, f.machine.proximityBits)
	require.Equal(t, 1, f.proximity.enableCalls)
	require.NotEqual(t, InvalidAlarmID, f.machine.notificationExpirationAlarm)
}

func TestCore_StateMachine_Notification_TurnsOnWithoutTimeoutWhenFarAndOff(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.proximity.state = ProximityFar

	f.machine.HandleNotification()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, scheduledTimeoutNone, f.machine.scheduledTimeoutType)
	require.Equal(t, []DisplayPowerChangeReason{DisplayPowerChangeReasonNotification}, f.displayEvt.onReasons)
}

func TestCore_StateMachine_ProximityFar_UsesReducedTimeoutAfterNotificationOnlyEnablement(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.proximity.state = ProximityNear
	f.machine.HandleNotification()
	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)

	f.proximity.state = ProximityFar
	f.machine.HandleProximityFar()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, scheduledTimeoutReduced, f.machine.scheduledTimeoutType)
	require.Equal(t, proximityEnablement(0), f.machine.proximityBits)
}

func TestCore_StateMachine_ProximityFar_NoOpWhenDisplayAlreadyOn(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	onCallsBefore := len(f.display.onCalls)

	f.machine.HandleProximityFar()

	require.Len(t, f.display.onCalls, onCallsBefore)
}

func TestCore_StateMachine_LidClosed_TurnsOffDisplayAndRequestsSuspend(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	f.machine.HandleLidClosed()

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode)
	require.Equal(t, 1, f.power.suspendWhenAllowedCalls[f.machine.suspendID()])
}

func TestCore_StateMachine_LidClosed_SkipsEverythingWithActiveExternalDisplay(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	f.external.active = true

	f.machine.HandleLidClosed()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, 0, f.power.suspendWhenAllowedCalls[f.machine.suspendID()])
}

func TestCore_StateMachine_LidOpen_CancelsSuspendAndTurnsDisplayOn(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleLidClosed()

	f.machine.HandleLidOpen()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, 1, f.power.cancelSuspendWhenAllowedCalls[f.machine.suspendID()])
}

func TestCore_StateMachine_PowerSourceCritical_PowersOff(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()

	f.machine.HandlePowerSourceCritical()

	require.Equal(t, 1, f.power.powerOffCalls)
}

func TestCore_StateMachine_ActiveCall_EnablesProximityUntilDisabled(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()

	f.machine.HandleActiveCall()

	require.Equal(t, proximityUntilDisabled, f.machine.proximityBits)
	require.Equal(t, 1, f.proximity.enableCalls)
}

func TestCore_StateMachine_NoActiveCall_SchedulesProximityDisableAlarmWhenNear(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.proximity.state = ProximityNear
	f.machine.HandleActiveCall()
	require.Equal(t, proximityUntilDisabled, f.machine.proximityBits)

	f.machine.HandleNoActiveCall()

	require.Equal(t, proximityUntilFarEventOrTimeout, f.machine.proximityBits)
	require.NotEqual(t, InvalidAlarmID, f.machine.proximityDisableAlarm)
}

func TestCore_StateMachine_DisableInactivityTimeout_TurnsOnWithoutTimeoutWhenOff(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()

	f.machine.HandleDisableInactivityTimeout()

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, scheduledTimeoutNone, f.machine.scheduledTimeoutType)
}

func TestCore_StateMachine_DisableInactivityTimeout_SurvivesOffAlarmUntilReenabled(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	offID := f.machine.offAlarm
	require.NotEqual(t, InvalidAlarmID, offID)

	f.machine.HandleDisableInactivityTimeout()
	f.machine.HandleAlarm(offID)

	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode,
		"a pending off alarm must not turn the display off while a client disallows the timeout")

	f.machine.HandleEnableInactivityTimeout()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
}

func TestCore_StateMachine_InactivityApplicationAllowed_DuringCallDespiteClientDisallowance(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.proximity.state = ProximityFar
	f.machine.HandleActiveCall()
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)

	f.machine.HandleDisableInactivityTimeout()
	offID := f.machine.offAlarm
	require.NotEqual(t, InvalidAlarmID, offID)
	f.machine.HandleAlarm(offID)

	require.Equal(t, DisplayPowerModeOff, f.machine.Snapshot().DisplayMode,
		"the call's own display-on reason permits the timeout to apply despite the client disallowance")
}

func TestCore_StateMachine_SetInactivityTimeout_RejectsNonPositive(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	before := f.machine.cfg.InactivityTimeout

	f.machine.HandleSetInactivityTimeout(0)
	f.machine.HandleSetInactivityTimeout(-time.Second)

	require.Equal(t, before, f.machine.cfg.InactivityTimeout)
}

func TestCore_StateMachine_SetInactivityTimeout_ReschedulesWhenNormalTimeoutPending(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleUserActivityChangingPowerState()
	require.Equal(t, scheduledTimeoutNormal, f.machine.scheduledTimeoutType)
	oldOffAlarm := f.machine.offAlarm

	f.machine.HandleSetInactivityTimeout(5 * time.Minute)

	require.Equal(t, 5*time.Minute, f.machine.cfg.InactivityTimeout)
	require.NotEqual(t, oldOffAlarm, f.machine.offAlarm)
	require.Equal(t, scheduledTimeoutNormal, f.machine.scheduledTimeoutType)
}

func TestCore_StateMachine_Pause_DisablesProximityButPreservesBits(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleActiveCall()
	require.NotEqual(t, proximityEnablement(0), f.machine.proximityBits)

	f.machine.Pause()

	require.Equal(t, 1, f.proximity.disableCalls)
	require.NotEqual(t, proximityEnablement(0), f.machine.proximityBits,
		"Pause must not clear the enablement bitmask, only the live sensor subscription")
	require.True(t, f.machine.Snapshot().Paused)
}

func TestCore_StateMachine_Resume_ReenablesProximityAndTurnsDisplayOn(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t, StateMachineConfig{})
	f.machine.Start()
	f.machine.HandleActiveCall()
	f.machine.Pause()

	f.machine.Resume()

	require.False(t, f.machine.Snapshot().Paused)
	require.Equal(t, DisplayPowerModeOn, f.machine.Snapshot().DisplayMode)
	require.Equal(t, 2, f.proximity.enableCalls,
		"enable must be called again on resume: once from HandleActiveCall, once restoring after pause")
}
