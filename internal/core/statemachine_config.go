package core

import (
	"fmt"
	"time"
)

// Defaults mirror the inactivity/dim/notification timings a typical
// repowerd install ships (spec §6 "Configuration fields", §8 default-config
// scenarios).
const (
	DefaultInactivityTimeout              = 60 * time.Second
	DefaultReducedInactivityTimeout       = 15 * time.Second
	DefaultDimBeforeOffDuration           = 10 * time.Second
	DefaultPostNotificationInactivityTimeout = 3 * time.Second
	DefaultNotificationExpirationTimeout  = 60 * time.Second
	DefaultPowerButtonLongPressTimeout    = 2 * time.Second
)

// StateMachineConfig carries the timing knobs and behavior flags a
// StateMachine needs. Validate fills in unset fields with the package
// defaults, matching liveness.ManagerConfig.Validate()'s style.
type StateMachineConfig struct {
	// InactivityTimeout is how long the display stays on after the most
	// recent activity-changing event before it turns off.
	InactivityTimeout time.Duration
	// ReducedInactivityTimeout is used after a call ends, after a power
	// source change, and when proximity going far turns the display on
	// while the sensor was enabled only for a pending notification.
	ReducedInactivityTimeout time.Duration
	// PostNotificationInactivityTimeout is used to extend the inactivity
	// timeout once a notification stops being shown.
	PostNotificationInactivityTimeout time.Duration
	// DimBeforeOffDuration is how long before the off alarm the display
	// is dimmed as a warning.
	DimBeforeOffDuration time.Duration
	// NotificationExpirationTimeout bounds how long a notification is
	// allowed to keep the display on for.
	NotificationExpirationTimeout time.Duration
	// PowerButtonLongPressTimeout is how long the power button must be
	// held before it counts as a long press.
	PowerButtonLongPressTimeout time.Duration
	// TreatPowerButtonAsUserActivity makes a power button press on an
	// already-on display behave like ordinary user activity (brighten +
	// reschedule) instead of turning the display off.
	TreatPowerButtonAsUserActivity bool
	// TurnOnDisplayAtStartup turns the display on as part of Start().
	TurnOnDisplayAtStartup bool
}

// Validate fills zero-valued fields with defaults and rejects impossible
// configurations.
func (c *StateMachineConfig) Validate() error {
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.ReducedInactivityTimeout == 0 {
		c.ReducedInactivityTimeout = DefaultReducedInactivityTimeout
	}
	if c.PostNotificationInactivityTimeout == 0 {
		c.PostNotificationInactivityTimeout = DefaultPostNotificationInactivityTimeout
	}
	if c.DimBeforeOffDuration == 0 {
		c.DimBeforeOffDuration = DefaultDimBeforeOffDuration
	}
	if c.NotificationExpirationTimeout == 0 {
		c.NotificationExpirationTimeout = DefaultNotificationExpirationTimeout
	}
	if c.PowerButtonLongPressTimeout == 0 {
		c.PowerButtonLongPressTimeout = DefaultPowerButtonLongPressTimeout
	}
	if c.InactivityTimeout < 0 || c.ReducedInactivityTimeout < 0 || c.DimBeforeOffDuration < 0 ||
		c.PostNotificationInactivityTimeout < 0 || c.NotificationExpirationTimeout < 0 ||
		c.PowerButtonLongPressTimeout < 0 {
		return fmt.Errorf("core: timeouts must be non-negative")
	}
	if c.DimBeforeOffDuration > c.InactivityTimeout {
		return fmt.Errorf("core: dim_before_off_duration (%s) must not exceed inactivity_timeout (%s)",
			c.DimBeforeOffDuration, c.InactivityTimeout)
	}
	return nil
}
