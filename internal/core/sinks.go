package core

// The sink interfaces below are the core's only way of driving the outside
// world. They are declared infallible by design (spec §7): a sink
// implementation must absorb, retry, or log its own errors rather than
// return them, so the state machine's control flow never branches on
// platform failure. internal/adapters/resilient shows how a fallible
// driver is wrapped to satisfy this boundary.

// DisplayPowerMode is the power state of the display. There is no "dim"
// mode: dimming is purely a brightness operation applied while the display
// stays On (spec §3).
type DisplayPowerMode int

const (
	DisplayPowerModeUnknown DisplayPowerMode = iota
	DisplayPowerModeOn
	DisplayPowerModeOff
)

func (m DisplayPowerMode) String() string {
	switch m {
	case DisplayPowerModeOn:
		return "on"
	case DisplayPowerModeOff:
		return "off"
	default:
		return "unknown"
	}
}

// DisplayPowerChangeReason explains why the display power mode changed,
// mirrored onto DisplayPowerEventSink so observers can distinguish "timed
// out" from "user pressed power button" from "proximity covered".
type DisplayPowerChangeReason int

const (
	DisplayPowerChangeReasonUnknown DisplayPowerChangeReason = iota
	DisplayPowerChangeReasonPowerButton
	DisplayPowerChangeReasonActivity
	DisplayPowerChangeReasonProximity
	DisplayPowerChangeReasonNotification
	DisplayPowerChangeReasonCall
	DisplayPowerChangeReasonCallDone
)

func (r DisplayPowerChangeReason) String() string {
	switch r {
	case DisplayPowerChangeReasonPowerButton:
		return "power_button"
	case DisplayPowerChangeReasonActivity:
		return "activity"
	case DisplayPowerChangeReasonProximity:
		return "proximity"
	case DisplayPowerChangeReasonNotification:
		return "notification"
	case DisplayPowerChangeReasonCall:
		return "call"
	case DisplayPowerChangeReasonCallDone:
		return "call_done"
	default:
		return "unknown"
	}
}

// DisplayFilter selects which physical displays a DisplayPowerControl call
// applies to, mirroring the internal/external display split a device with
// an attached external monitor needs (spec §4.3 lid handling).
type DisplayFilter int

const (
	DisplayFilterAll DisplayFilter = iota
	DisplayFilterInternal
	DisplayFilterExternal
)

func (f DisplayFilter) String() string {
	switch f {
	case DisplayFilterInternal:
		return "internal"
	case DisplayFilterExternal:
		return "external"
	default:
		return "all"
	}
}

// DisplayPowerControl turns the selected displays on or off.
type DisplayPowerControl interface {
	TurnOn(filter DisplayFilter)
	TurnOff(filter DisplayFilter)
}

// BrightnessControl drives the backlight. SetNormalBrightness restores the
// user/autobrightness-selected level; SetDimBrightness drops to the dim
// level ahead of an inactivity-timeout TurnOff; SetOffBrightness is applied
// immediately before the display is turned off entirely.
type BrightnessControl interface {
	SetNormalBrightness()
	SetDimBrightness()
	SetOffBrightness()

	// SetNormalBrightnessValue records the brightness level to use the
	// next time SetNormalBrightness is applied.
	SetNormalBrightnessValue(value float64)

	EnableAutobrightness()
	DisableAutobrightness()
}

// DisplayPowerEventSink is notified of every display power mode change so
// external observers (e.g. a D-Bus service) can mirror state.
type DisplayPowerEventSink interface {
	NotifyDisplayPowerOn(reason DisplayPowerChangeReason)
	NotifyDisplayPowerOff(reason DisplayPowerChangeReason)
}

// ModemPowerControl gates the cellular modem's power state, used so an
// off display doesn't also kill connectivity needed for e.g. an active
// voice call.
type ModemPowerControl interface {
	SetLowPowerMode()
	SetNormalPowerMode()
}

// PerformanceBooster requests or releases a brief CPU/GPU performance
// boost, used around power-button presses so the UI wakes responsively.
type PerformanceBooster interface {
	EnableInteractiveMode()
	DisableInteractiveMode()
}

// PowerButtonEventSink is notified when a power button press is held long
// enough to count as a long press, so external observers can e.g. animate
// a shutdown prompt.
type PowerButtonEventSink interface {
	NotifyLongPress()
}

// ProximitySensor is enabled only while repowerd cares whether something
// is covering it (near a call, or briefly after enabling until a far event
// or timeout), per spec §4.3. ProximityState is queried live at each
// decision point rather than cached, matching original_source's
// default_state_machine.cpp.
type ProximitySensor interface {
	ProximityState() ProximityState
	EnableProximityEvents()
	DisableProximityEvents()
}

// SuspendType distinguishes a suspend that the system would enter on its
// own (Automatic) from any suspend whatsoever (Any), letting a caller
// disallow just the automatic kind while still permitting e.g. a
// user-requested suspend.
type SuspendType int

const (
	SuspendTypeAutomatic SuspendType = iota
	SuspendTypeAny
)

func (t SuspendType) String() string {
	if t == SuspendTypeAny {
		return "any"
	}
	return "automatic"
}

// SystemPowerControl requests or cancels a system suspend/power-off, and
// toggles whether the platform's own default handlers (e.g. a hardware
// power-button shutdown prompt) are allowed to fire independently of
// repowerd. id is an opaque per-disallowance token; AllowSuspend must be
// idempotent for an id that was never disallowed.
type SystemPowerControl interface {
	DisallowSuspend(id string, t SuspendType)
	AllowSuspend(id string, t SuspendType)

	// SuspendWhenAllowed requests a suspend that takes effect as soon as
	// nothing disallows it (possibly immediately).
	SuspendWhenAllowed(id string)
	// CancelSuspendWhenAllowed withdraws a previously requested
	// SuspendWhenAllowed for id.
	CancelSuspendWhenAllowed(id string)

	PowerOff()

	AllowDefaultSystemHandlers()
	DisallowDefaultSystemHandlers()
}
