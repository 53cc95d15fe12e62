package core

import (
	"log/slog"
	"sync"
	"time"
)

// inactivityTimeoutKind selects how scheduleInactivityTimeout computes and
// applies the next off/dim alarm pair. Grounded on
// original_source/src/core/default_state_machine.cpp's turn_on_display_*
// family and the "only extend, never shorten" comment above
// handle_notification / handle_user_activity_extending_power_state there.
type inactivityTimeoutKind int

const (
	// inactivityNormal cancels and reschedules unconditionally, used for
	// activity that resets the user's "away" clock from zero.
	inactivityNormal inactivityTimeoutKind = iota
	// inactivityReduced only reschedules if doing so would push the off
	// point later than it currently is; otherwise the existing alarms are
	// left untouched.
	inactivityReduced
	// inactivityPostNotification behaves like inactivityReduced but uses
	// the post-notification timeout, applied once a notification stops
	// being shown.
	inactivityPostNotification
	// inactivityImmediate schedules a zero-delay, only-extend off alarm,
	// used once a notification's expiration alarm fires.
	inactivityImmediate
)

// scheduledTimeoutType records which kind of inactivity alarm is currently
// pending, so a later event (HandleSetInactivityTimeout, allowance changes)
// knows whether it's looking at a Normal-kind schedule it should touch.
type scheduledTimeoutType int

const (
	scheduledTimeoutNone scheduledTimeoutType = iota
	scheduledTimeoutNormal
	scheduledTimeoutPostNotification
	scheduledTimeoutReduced
)

// proximityEnablement is one of the four documented reasons the proximity
// sensor may be enabled (spec §4.3); combined as a bitmask. The sensor
// itself is enabled iff any bit is set, but some decisions depend on
// exactly which bit(s): isProximityEnabledOnlyUntilFarEventOrNotificationExpirationLocked
// checks for a single specific bit, not just "exactly one".
type proximityEnablement uint8

const (
	proximityUntilFarEvent proximityEnablement = 1 << iota
	proximityUntilDisabled
	proximityUntilFarEventOrTimeout
	proximityUntilFarEventOrNotificationExpiration
)

// inactivityAllowance is one of the two documented reasons the inactivity
// timeout may be disallowed (spec §3 "inactivity_timeout_allowances").
// The timeout only applies once every bit is set.
type inactivityAllowance uint8

const (
	inactivityAllowanceClient inactivityAllowance = 1 << iota
	inactivityAllowanceNotification

	inactivityAllowanceAll = inactivityAllowanceClient | inactivityAllowanceNotification
)

// StateMachine is the per-session decision engine driving a session's
// display, brightness, modem, performance, and suspend sinks from the
// external events its EventAdapter forwards. Grounded directly on
// original_source/src/core/default_state_machine.cpp.
type StateMachine struct {
	sessionID string
	cfg       StateMachineConfig
	log       *slog.Logger

	timer            Timer
	display          DisplayPowerControl
	brightness       BrightnessControl
	displaySink      DisplayPowerEventSink
	modem            ModemPowerControl
	perf             PerformanceBooster
	buttonSink       PowerButtonEventSink
	proximity        ProximitySensor
	power            SystemPowerControl
	externalDisplays ExternalDisplayProvider

	mu sync.Mutex

	paused bool

	displayMode   DisplayPowerMode
	displayReason DisplayPowerChangeReason

	displayModeAtPowerButtonPress DisplayPowerMode
	powerButtonLongPressDetected bool
	powerButtonLongPressAlarm    AlarmID

	normalBrightnessValue float64
	autobrightnessEnabled bool

	inactivityAllowances inactivityAllowance
	scheduledTimeoutType scheduledTimeoutType

	offAlarm     AlarmID
	dimAlarm     AlarmID
	offTimePoint time.Time

	notificationExpirationAlarm AlarmID
	proximityDisableAlarm       AlarmID

	proximityBits proximityEnablement
}

// StateMachineDeps bundles the sink collaborators a StateMachine drives.
// All fields except ExternalDisplays are required; internal/adapters/noop
// provides inert stand-ins for manual runs and for tests that don't
// exercise a particular sink. ExternalDisplays may be left nil for
// sessions/devices with no attachable external display, in which case the
// lid is always treated as if no external display were active.
type StateMachineDeps struct {
	Timer            Timer
	Display          DisplayPowerControl
	Brightness       BrightnessControl
	DisplaySink      DisplayPowerEventSink
	Modem            ModemPowerControl
	Perf             PerformanceBooster
	ButtonSink       PowerButtonEventSink
	Proximity        ProximitySensor
	Power            SystemPowerControl
	ExternalDisplays ExternalDisplayProvider
}

// NewStateMachine constructs a StateMachine for sessionID. sessionID also
// scopes the suspend-disallowance id passed to deps.Power, so two
// sessions' machines never collide on one suspend inhibitor key (DESIGN.md
// Open Question resolution #4).
func NewStateMachine(sessionID string, cfg StateMachineConfig, deps StateMachineDeps, log *slog.Logger) *StateMachine {
	if log == nil {
		log = slog.Default()
	}
	return &StateMachine{
		sessionID:                     sessionID,
		cfg:                           cfg,
		log:                           log.With("session_id", sessionID),
		timer:                         deps.Timer,
		display:                       deps.Display,
		brightness:                    deps.Brightness,
		displaySink:                   deps.DisplaySink,
		modem:                         deps.Modem,
		perf:                          deps.Perf,
		buttonSink:                    deps.ButtonSink,
		proximity:                     deps.Proximity,
		power:                         deps.Power,
		externalDisplays:              deps.ExternalDisplays,
		displayMode:                   DisplayPowerModeOff,
		displayModeAtPowerButtonPress: DisplayPowerModeUnknown,
		normalBrightnessValue:         1.0,
		inactivityAllowances:          inactivityAllowanceAll,
		offAlarm:                      InvalidAlarmID,
		dimAlarm:                      InvalidAlarmID,
		powerButtonLongPressAlarm:     InvalidAlarmID,
		notificationExpirationAlarm:   InvalidAlarmID,
		proximityDisableAlarm:         InvalidAlarmID,
	}
}

func (m *StateMachine) suspendID() string { return "statemachine:" + m.sessionID }

// --- lifecycle ---

// Start brings the machine out of its initial inert state: repowerd takes
// over from whatever default system handlers the platform has for the
// power button/lid, and if configured the display is turned on.
func (m *StateMachine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.power.DisallowDefaultSystemHandlers()
	if m.cfg.TurnOnDisplayAtStartup {
		m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonUnknown)
	} else {
		m.applyBrightnessLocked()
	}
}

// Pause suspends all sink-driving behavior (the daemon calls it when this
// machine's session stops being the active one): pending alarms are
// cancelled, the proximity sensor and
// autobrightness are disabled, and the platform's default handlers are
// re-allowed to run on their own. The proximity enablement bitmask is left
// untouched so Resume can restore it.
func (m *StateMachine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.cancelAlarmsLocked()
	if m.powerButtonLongPressAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.powerButtonLongPressAlarm)
		m.powerButtonLongPressAlarm = InvalidAlarmID
	}
	if m.notificationExpirationAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.notificationExpirationAlarm)
		m.notificationExpirationAlarm = InvalidAlarmID
	}
	if m.proximityDisableAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.proximityDisableAlarm)
		m.proximityDisableAlarm = InvalidAlarmID
	}
	if m.proximityBits != 0 {
		m.proximity.DisableProximityEvents()
	}
	if m.autobrightnessEnabled {
		m.brightness.DisableAutobrightness()
	}
	m.power.AllowDefaultSystemHandlers()
}

// Resume reverses Pause: default handlers are disallowed again,
// brightness/autobrightness and the proximity sensor are restored from the
// flags persisted across Pause, and the display is turned on with the
// normal inactivity timeout.
func (m *StateMachine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.power.DisallowDefaultSystemHandlers()
	if m.autobrightnessEnabled {
		m.brightness.EnableAutobrightness()
	}
	m.applyBrightnessLocked()
	m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonUnknown)
	if m.proximityBits != 0 {
		m.proximity.EnableProximityEvents()
	}
}

// --- alarms ---

func (m *StateMachine) HandleAlarm(id AlarmID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	switch id {
	case m.dimAlarm:
		m.dimAlarm = InvalidAlarmID
		if m.isInactivityTimeoutApplicationAllowedLocked() {
			m.dimDisplayLocked()
		}
	case m.offAlarm:
		m.offAlarm = InvalidAlarmID
		if m.isInactivityTimeoutApplicationAllowedLocked() {
			m.turnOffDisplayLocked(DisplayPowerChangeReasonActivity)
		}
		m.scheduledTimeoutType = scheduledTimeoutNone
	case m.powerButtonLongPressAlarm:
		m.powerButtonLongPressAlarm = InvalidAlarmID
		m.powerButtonLongPressDetected = true
		if m.buttonSink != nil {
			m.buttonSink.NotifyLongPress()
		}
	case m.notificationExpirationAlarm:
		m.notificationExpirationAlarm = InvalidAlarmID
		if m.displayMode == DisplayPowerModeOn {
			m.scheduleInactivityTimeoutLocked(inactivityImmediate)
		}
		m.allowInactivityTimeoutLocked(inactivityAllowanceNotification)
		m.disableProximityLocked(proximityUntilFarEventOrNotificationExpiration)
	case m.proximityDisableAlarm:
		m.proximityDisableAlarm = InvalidAlarmID
		m.disableProximityLocked(proximityUntilFarEventOrTimeout)
	}
}

// --- notifications ---

func (m *StateMachine) HandleNotification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disallowInactivityTimeoutLocked(inactivityAllowanceNotification)
	if m.paused {
		return
	}
	switch {
	case m.displayMode == DisplayPowerModeOn:
		m.applyBrightnessLocked()
	case m.proximity.ProximityState() == ProximityFar:
		m.turnOnDisplayWithoutTimeoutLocked(DisplayPowerChangeReasonNotification)
	default:
		m.enableProximityLocked(proximityUntilFarEventOrNotificationExpiration)
	}
	m.scheduleNotificationExpirationAlarmLocked()
}

func (m *StateMachine) HandleNoNotification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused && m.displayMode == DisplayPowerModeOn {
		m.scheduleInactivityTimeoutLocked(inactivityPostNotification)
	}
	m.allowInactivityTimeoutLocked(inactivityAllowanceNotification)
	m.disableProximityLocked(proximityUntilFarEventOrNotificationExpiration)
	if m.notificationExpirationAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.notificationExpirationAlarm)
		m.notificationExpirationAlarm = InvalidAlarmID
	}
}

func (m *StateMachine) scheduleNotificationExpirationAlarmLocked() {
	if m.notificationExpirationAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.notificationExpirationAlarm)
	}
	d := m.cfg.NotificationExpirationTimeout
	if m.cfg.InactivityTimeout < d {
		d = m.cfg.InactivityTimeout
	}
	m.notificationExpirationAlarm = m.timer.ScheduleAlarmIn(d)
}

// --- power button ---

func (m *StateMachine) HandlePowerButtonPress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perf != nil {
		m.perf.EnableInteractiveMode()
	}
	if m.paused {
		return
	}
	m.displayModeAtPowerButtonPress = m.displayMode
	if m.displayMode == DisplayPowerModeOn && m.cfg.TreatPowerButtonAsUserActivity {
		m.displayReason = DisplayPowerChangeReasonPowerButton
		m.applyBrightnessLocked()
		m.scheduleInactivityTimeoutLocked(inactivityNormal)
	} else if m.displayMode == DisplayPowerModeOff {
		m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonPowerButton)
	}
	if m.powerButtonLongPressAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.powerButtonLongPressAlarm)
	}
	m.powerButtonLongPressDetected = false
	m.powerButtonLongPressAlarm = m.timer.ScheduleAlarmIn(m.cfg.PowerButtonLongPressTimeout)
}

func (m *StateMachine) HandlePowerButtonRelease() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perf != nil {
		m.perf.DisableInteractiveMode()
	}
	if m.paused {
		return
	}
	if m.powerButtonLongPressAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.powerButtonLongPressAlarm)
		m.powerButtonLongPressAlarm = InvalidAlarmID
	}
	if m.powerButtonLongPressDetected {
		m.powerButtonLongPressDetected = false
	} else if m.displayModeAtPowerButtonPress == DisplayPowerModeOn && !m.cfg.TreatPowerButtonAsUserActivity {
		m.turnOffDisplayLocked(DisplayPowerChangeReasonPowerButton)
	}
	m.displayModeAtPowerButtonPress = DisplayPowerModeUnknown
}

// --- power source ---

func (m *StateMachine) HandlePowerSourceChange() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	switch {
	case m.displayMode == DisplayPowerModeOn:
		m.applyBrightnessLocked()
		m.scheduleInactivityTimeoutLocked(inactivityReduced)
	case m.proximity.ProximityState() == ProximityFar:
		// Resolved Open Question #1: retained quirk. The original labels
		// this wake as "Notification" rather than introducing a dedicated
		// reason; kept for compatibility with existing observers of the
		// reason field.
		m.turnOnDisplayWithReducedTimeoutLocked(DisplayPowerChangeReasonNotification)
	}
}

func (m *StateMachine) HandlePowerSourceCritical() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.power.PowerOff()
}

// --- lid ---

func (m *StateMachine) HandleLidClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	if m.externalDisplays != nil && m.externalDisplays.HasActiveExternalDisplays() {
		return
	}
	if m.displayMode == DisplayPowerModeOn {
		m.turnOffDisplayLocked(DisplayPowerChangeReasonUnknown)
	}
	m.power.SuspendWhenAllowed(m.suspendID())
}

func (m *StateMachine) HandleLidOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.power.CancelSuspendWhenAllowed(m.suspendID())
	if m.paused {
		return
	}
	m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonUnknown)
}

// --- proximity ---

func (m *StateMachine) HandleProximityNear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	if m.displayMode == DisplayPowerModeOn {
		m.turnOffDisplayLocked(DisplayPowerChangeReasonProximity)
	}
}

func (m *StateMachine) HandleProximityFar() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	useReduced := m.isProximityEnabledOnlyUntilFarEventOrNotificationExpirationLocked()
	m.disableProximityLocked(proximityUntilFarEventOrNotificationExpiration)
	m.disableProximityLocked(proximityUntilFarEventOrTimeout)
	if m.displayMode != DisplayPowerModeOff {
		return
	}
	if useReduced {
		m.turnOnDisplayWithReducedTimeoutLocked(DisplayPowerChangeReasonProximity)
	} else {
		m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonProximity)
	}
}

// --- voice call ---

func (m *StateMachine) HandleActiveCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		switch {
		case m.displayMode == DisplayPowerModeOn:
			m.applyBrightnessLocked()
			m.scheduleInactivityTimeoutLocked(inactivityNormal)
		case m.proximity.ProximityState() == ProximityFar:
			m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonCall)
		}
	}
	m.enableProximityLocked(proximityUntilDisabled)
}

func (m *StateMachine) HandleNoActiveCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		switch {
		case m.displayMode == DisplayPowerModeOn:
			m.applyBrightnessLocked()
			m.scheduleInactivityTimeoutLocked(inactivityReduced)
		case m.proximity.ProximityState() == ProximityFar:
			m.turnOnDisplayWithReducedTimeoutLocked(DisplayPowerChangeReasonCallDone)
		default:
			m.enableProximityLocked(proximityUntilFarEventOrTimeout)
			m.scheduleProximityDisableAlarmLocked()
		}
	}
	m.disableProximityLocked(proximityUntilDisabled)
}

func (m *StateMachine) scheduleProximityDisableAlarmLocked() {
	if m.proximityDisableAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.proximityDisableAlarm)
	}
	m.proximityDisableAlarm = m.timer.ScheduleAlarmIn(m.cfg.ReducedInactivityTimeout)
}

// --- user activity ---

func (m *StateMachine) HandleUserActivityChangingPowerState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	switch {
	case m.displayMode == DisplayPowerModeOn:
		m.displayReason = DisplayPowerChangeReasonActivity
		m.applyBrightnessLocked()
		m.scheduleInactivityTimeoutLocked(inactivityNormal)
	case m.proximity.ProximityState() == ProximityFar:
		m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonActivity)
	}
}

func (m *StateMachine) HandleUserActivityExtendingPowerState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	if m.displayMode != DisplayPowerModeOn {
		return
	}
	m.displayReason = DisplayPowerChangeReasonActivity
	m.applyBrightnessLocked()
	m.scheduleInactivityTimeoutLocked(inactivityNormal)
}

// --- inactivity timeout allowance ---

// HandleEnableInactivityTimeout is the client-request slot: it simply
// clears this client's disallowance and lets allowInactivityTimeoutLocked
// decide whether that's enough to re-arm the timeout.
func (m *StateMachine) HandleEnableInactivityTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowInactivityTimeoutLocked(inactivityAllowanceClient)
}

// HandleDisableInactivityTimeout is the client-request slot: unlike
// allowInactivityTimeoutLocked's notification counterpart, disallowing on
// the client's behalf immediately turns the display on (without a
// timeout) if it isn't already.
func (m *StateMachine) HandleDisableInactivityTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disallowInactivityTimeoutLocked(inactivityAllowanceClient)
	if m.paused {
		return
	}
	if m.displayMode == DisplayPowerModeOn {
		m.applyBrightnessLocked()
	} else {
		m.turnOnDisplayWithoutTimeoutLocked(DisplayPowerChangeReasonUnknown)
	}
}

// HandleSetInactivityTimeout replaces the normal inactivity timeout. A
// non-positive timeout is rejected silently (spec §4.3, §7).
func (m *StateMachine) HandleSetInactivityTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timeout <= 0 {
		return
	}
	m.cfg.InactivityTimeout = timeout
	if m.paused {
		return
	}
	if m.scheduledTimeoutType == scheduledTimeoutNormal {
		m.scheduleInactivityTimeoutLocked(inactivityNormal)
	}
}

func (m *StateMachine) isInactivityTimeoutAllowedLocked() bool {
	return m.inactivityAllowances == inactivityAllowanceAll
}

// isInactivityTimeoutApplicationAllowedLocked additionally permits the
// dim/off alarms to apply while the display is on for the Notification or
// Call reason, even if some other allowance bit is currently clear (spec
// §8.4).
func (m *StateMachine) isInactivityTimeoutApplicationAllowedLocked() bool {
	return m.isInactivityTimeoutAllowedLocked() ||
		m.displayReason == DisplayPowerChangeReasonNotification ||
		m.displayReason == DisplayPowerChangeReasonCall
}

func (m *StateMachine) allowInactivityTimeoutLocked(allowance inactivityAllowance) {
	if m.isInactivityTimeoutAllowedLocked() {
		return
	}
	m.inactivityAllowances |= allowance
	if m.paused || !m.isInactivityTimeoutAllowedLocked() || m.displayMode != DisplayPowerModeOn {
		return
	}
	switch {
	case allowance == inactivityAllowanceNotification && m.scheduledTimeoutType == scheduledTimeoutNone:
		m.turnOffDisplayLocked(DisplayPowerChangeReasonActivity)
	case allowance == inactivityAllowanceClient:
		m.scheduleInactivityTimeoutLocked(inactivityNormal)
	}
}

func (m *StateMachine) disallowInactivityTimeoutLocked(allowance inactivityAllowance) {
	m.inactivityAllowances &^= allowance
}

// --- brightness / autobrightness ---

func (m *StateMachine) HandleSetNormalBrightnessValue(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalBrightnessValue = value
	if m.paused {
		return
	}
	m.brightness.SetNormalBrightnessValue(value)
	if m.displayMode == DisplayPowerModeOn {
		m.brightness.SetNormalBrightness()
	}
}

func (m *StateMachine) HandleEnableAutobrightness() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autobrightnessEnabled = true
	if m.paused {
		return
	}
	m.brightness.EnableAutobrightness()
}

func (m *StateMachine) HandleDisableAutobrightness() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autobrightnessEnabled = false
	if m.paused {
		return
	}
	m.brightness.DisableAutobrightness()
	m.applyBrightnessLocked()
}

// --- system resume ---

// HandleSystemResume fires when the kernel reports a suspend/resume cycle
// completed (distinct from Resume, which reverses this machine's own
// Pause and is driven by the daemon, not the kernel).
func (m *StateMachine) HandleSystemResume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	if m.displayMode == DisplayPowerModeOff {
		m.turnOnDisplayWithNormalTimeoutLocked(DisplayPowerChangeReasonActivity)
		return
	}
	m.scheduleInactivityTimeoutLocked(inactivityNormal)
}

// --- display internals ---

// turnOnDisplayWithoutTimeoutLocked is the 5-step turn-on sequence (spec
// §4.3) used whenever the display should come on with no inactivity alarm
// at all (e.g. an active notification, or the client disallowing the
// timeout outright).
func (m *StateMachine) turnOnDisplayWithoutTimeoutLocked(reason DisplayPowerChangeReason) {
	m.power.DisallowSuspend(m.suspendID(), SuspendTypeAutomatic)
	if m.perf != nil {
		m.perf.EnableInteractiveMode()
	}
	m.cancelAlarmsLocked()
	m.display.TurnOn(DisplayFilterAll)
	m.displayMode = DisplayPowerModeOn
	m.displayReason = reason
	m.applyBrightnessLocked()
	m.modem.SetNormalPowerMode()
	if m.displaySink != nil {
		m.displaySink.NotifyDisplayPowerOn(reason)
	}
}

func (m *StateMachine) turnOnDisplayWithNormalTimeoutLocked(reason DisplayPowerChangeReason) {
	m.turnOnDisplayWithoutTimeoutLocked(reason)
	m.scheduleInactivityTimeoutLocked(inactivityNormal)
}

func (m *StateMachine) turnOnDisplayWithReducedTimeoutLocked(reason DisplayPowerChangeReason) {
	m.turnOnDisplayWithoutTimeoutLocked(reason)
	m.scheduleInactivityTimeoutLocked(inactivityReduced)
}

// dimDisplayLocked only ever drops the backlight; there is no separate Dim
// DisplayPowerMode (spec §3).
func (m *StateMachine) dimDisplayLocked() {
	m.brightness.SetDimBrightness()
}

// turnOffDisplayLocked is the 4-step turn-off sequence (spec §4.3). Steps
// 2 and 4 (modem low-power mode, allowing suspend) are skipped when the
// turn-off itself was caused by proximity: a covered sensor during an
// active call must not drop the modem or let the system suspend out from
// under the call (spec §3 invariant 5, §8.7).
func (m *StateMachine) turnOffDisplayLocked(reason DisplayPowerChangeReason) {
	m.brightness.SetOffBrightness()
	m.display.TurnOff(DisplayFilterAll)

	if reason != DisplayPowerChangeReasonProximity {
		m.modem.SetLowPowerMode()
	}

	m.displayMode = DisplayPowerModeOff
	m.displayReason = reason
	m.cancelAlarmsLocked()
	if m.displaySink != nil {
		m.displaySink.NotifyDisplayPowerOff(reason)
	}
	if m.perf != nil {
		m.perf.DisableInteractiveMode()
	}

	if reason != DisplayPowerChangeReasonProximity {
		m.power.AllowSuspend(m.suspendID(), SuspendTypeAutomatic)
	}
}

func (m *StateMachine) applyBrightnessLocked() {
	if m.autobrightnessEnabled {
		return
	}
	m.brightness.SetNormalBrightness()
}

// --- inactivity alarm scheduling ---

func (m *StateMachine) cancelAlarmsLocked() {
	if m.offAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.offAlarm)
		m.offAlarm = InvalidAlarmID
	}
	if m.dimAlarm != InvalidAlarmID {
		m.timer.CancelAlarm(m.dimAlarm)
		m.dimAlarm = InvalidAlarmID
	}
	m.scheduledTimeoutType = scheduledTimeoutNone
}

func (m *StateMachine) scheduleInactivityTimeoutLocked(kind inactivityTimeoutKind) {
	now := m.timer.Now()

	var timeout time.Duration
	var newType scheduledTimeoutType
	switch kind {
	case inactivityNormal:
		timeout = m.cfg.InactivityTimeout
		newType = scheduledTimeoutNormal
	case inactivityReduced:
		timeout = m.cfg.ReducedInactivityTimeout
		newType = scheduledTimeoutReduced
	case inactivityPostNotification:
		timeout = m.cfg.PostNotificationInactivityTimeout
		newType = scheduledTimeoutPostNotification
	case inactivityImmediate:
		timeout = 0
		newType = scheduledTimeoutPostNotification
	}

	proposedOff := now.Add(timeout)

	// Only extend, never shorten: Reduced/PostNotification/Immediate
	// reschedules are dropped if the currently scheduled off point is
	// already at least as late as what this call would produce.
	onlyExtend := kind == inactivityReduced || kind == inactivityPostNotification || kind == inactivityImmediate
	if onlyExtend && (m.offAlarm != InvalidAlarmID || m.dimAlarm != InvalidAlarmID) && !proposedOff.After(m.offTimePoint) {
		return
	}

	m.cancelAlarmsLocked()
	m.offTimePoint = proposedOff
	m.scheduledTimeoutType = newType

	dimAt := timeout - m.cfg.DimBeforeOffDuration
	if kind != inactivityImmediate && dimAt > 0 {
		m.dimAlarm = m.timer.ScheduleAlarmIn(dimAt)
	}
	m.offAlarm = m.timer.ScheduleAlarmIn(timeout)
	m.power.DisallowSuspend(m.suspendID(), SuspendTypeAutomatic)
}

// --- proximity bitmask ---

func (m *StateMachine) enableProximityLocked(reason proximityEnablement) {
	was := m.proximityBits
	m.proximityBits |= reason
	if was == 0 && m.proximityBits != 0 {
		m.proximity.EnableProximityEvents()
	}
}

func (m *StateMachine) disableProximityLocked(reason proximityEnablement) {
	m.proximityBits &^= reason
	if m.proximityBits == 0 {
		m.proximity.DisableProximityEvents()
	}
}

func (m *StateMachine) isProximityEnabledOnlyUntilFarEventOrNotificationExpirationLocked() bool {
	return m.proximityBits == proximityUntilFarEventOrNotificationExpiration
}

// Snapshot returns a point-in-time, lock-protected view of the machine's
// state, used for metrics and tests.
type StateMachineSnapshot struct {
	DisplayMode   DisplayPowerMode
	DisplayReason DisplayPowerChangeReason
	Paused        bool
	OffTimePoint  time.Time
}

func (m *StateMachine) Snapshot() StateMachineSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StateMachineSnapshot{
		DisplayMode:   m.displayMode,
		DisplayReason: m.displayReason,
		Paused:        m.paused,
		OffTimePoint:  m.offTimePoint,
	}
}
