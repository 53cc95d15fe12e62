package core

import "time"

// UserActivityType distinguishes user input that may turn an off display
// on (changing) from input that is ignored while the display is off
// (extending). While the display is on, both brighten it and restart the
// normal inactivity timeout.
type UserActivityType int

const (
	UserActivityChangingPowerState UserActivityType = iota
	UserActivityExtendingPowerState
)

// UserActivityHandler receives every user input event relevant to
// display-on/off decisions (touch, keyboard, pointer motion).
type UserActivityHandler func(UserActivityType)

// UserActivitySource is the external event source for user input.
type UserActivitySource interface {
	RegisterUserActivityHandler(UserActivityHandler) *Registration
}

// PowerButtonHandler receives raw power-button press/release edges.
type PowerButtonHandler func()

// PowerButtonSource is the external event source for the physical power
// button.
type PowerButtonSource interface {
	RegisterPowerButtonPressHandler(PowerButtonHandler) *Registration
	RegisterPowerButtonReleaseHandler(PowerButtonHandler) *Registration
}

// ProximityState reports whether something is covering the sensor.
type ProximityState int

const (
	ProximityFar ProximityState = iota
	ProximityNear
)

// ProximityHandler receives proximity sensor transitions. The source only
// delivers events while ProximitySensor.EnableProximityEvents is active.
type ProximityHandler func(ProximityState)

// ProximitySource is the external event source for the proximity sensor.
type ProximitySource interface {
	RegisterProximityHandler(ProximityHandler) *Registration
}

// PowerSourceChangeHandler fires whenever AC/battery status changes.
type PowerSourceChangeHandler func()

// PowerSourceCriticalHandler fires when the battery reaches a critical
// level.
type PowerSourceCriticalHandler func()

// PowerSource is the external event source for AC/battery status.
type PowerSource interface {
	StartProcessing()
	RegisterPowerSourceChangeHandler(PowerSourceChangeHandler) *Registration
	RegisterPowerSourceCriticalHandler(PowerSourceCriticalHandler) *Registration
}

// VoiceCallHandler fires on voice call start/end.
type VoiceCallHandler func()

// VoiceCallService is the external event source for telephony state.
type VoiceCallService interface {
	RegisterActiveCallHandler(VoiceCallHandler) *Registration
	RegisterNoActiveCallHandler(VoiceCallHandler) *Registration
}

// NotificationHandler fires when a notification is posted or its display
// hold expires.
type NotificationHandler func()

// NotificationService is the external event source for the notification
// shell surface.
type NotificationService interface {
	RegisterNotificationHandler(NotificationHandler) *Registration
	RegisterNoNotificationHandler(NotificationHandler) *Registration
}

// ClientRequestHandlers are the callback shapes a client-request source
// delivers, parameterized by the requesting session id.
type (
	EnableInactivityTimeoutHandler  func(sessionID string)
	DisableInactivityTimeoutHandler func(sessionID string)
	SetInactivityTimeoutHandler     func(timeout time.Duration, sessionID string)
	SetNormalBrightnessValueHandler func(value float64, sessionID string)
	EnableAutobrightnessHandler     func(sessionID string)
	DisableAutobrightnessHandler    func(sessionID string)
)

// ClientRequests is the external event source for requests issued by
// individual client sessions (e.g. over D-Bus), each tagged with the
// originating session id so the daemon can route it (spec §4.4 "named
// session" dispatch policy).
type ClientRequests interface {
	StartProcessing()
	RegisterEnableInactivityTimeoutHandler(EnableInactivityTimeoutHandler) *Registration
	RegisterDisableInactivityTimeoutHandler(DisableInactivityTimeoutHandler) *Registration
	RegisterSetInactivityTimeoutHandler(SetInactivityTimeoutHandler) *Registration
	RegisterSetNormalBrightnessValueHandler(SetNormalBrightnessValueHandler) *Registration
	RegisterEnableAutobrightnessHandler(EnableAutobrightnessHandler) *Registration
	RegisterDisableAutobrightnessHandler(DisableAutobrightnessHandler) *Registration
}

// ActiveSessionChangedHandler fires when the active (foreground) session
// changes.
type ActiveSessionChangedHandler func(sessionID string, sessionType SessionType)

// SessionRemovedHandler fires when a session ends.
type SessionRemovedHandler func(sessionID string)

// SessionTracker is the external event source tracking login sessions
// and which one is active.
type SessionTracker interface {
	StartProcessing()
	RegisterActiveSessionChangedHandler(ActiveSessionChangedHandler) *Registration
	RegisterSessionRemovedHandler(SessionRemovedHandler) *Registration
	// SessionForPID resolves a requesting process to a session id.
	// Returns ("", false) if the pid cannot be resolved to a live session.
	// The daemon does not call it: its "named session" dispatch uses the
	// session id each ClientRequests callback already carries.
	SessionForPID(pid int) (sessionID string, ok bool)
}

// LidState reports whether the device's lid (if it has one) is open or
// closed.
type LidState int

const (
	LidClosed LidState = iota
	LidOpen
)

func (s LidState) String() string {
	if s == LidOpen {
		return "open"
	}
	return "closed"
}

// LidHandler fires whenever the lid is opened or closed.
type LidHandler func(LidState)

// LidSource is the external event source for a lid switch.
type LidSource interface {
	StartProcessing()
	RegisterLidHandler(LidHandler) *Registration
}

// ExternalDisplayProvider reports whether any externally-connected display
// is currently active, used to decide whether closing the lid should turn
// the internal display off (spec §4.3 lid handling).
type ExternalDisplayProvider interface {
	HasActiveExternalDisplays() bool
}
