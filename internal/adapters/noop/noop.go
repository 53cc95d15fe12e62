// Package noop provides inert implementations of every internal/core sink
// interface. It exists because the core's Non-goals explicitly keep real
// platform adapters (sysfs backlight, logind, ofono, upower, D-Bus
// surfaces) out of scope: these stand-ins let the daemon run standalone
// for manual testing and give tests a harmless default collaborator for
// the sinks a given test doesn't care about.
package noop

import "github.com/ubports/repowerd/internal/core"

// Sinks bundles a full set of inert core.StateMachineDeps sink
// implementations, sharing Timer separately since that one has real
// substance (see internal/core.NewClockworkTimer).
type Sinks struct{}

var _ core.DisplayPowerControl = Sinks{}
var _ core.BrightnessControl = Sinks{}
var _ core.DisplayPowerEventSink = Sinks{}
var _ core.ModemPowerControl = Sinks{}
var _ core.PerformanceBooster = Sinks{}
var _ core.PowerButtonEventSink = Sinks{}
var _ core.ProximitySensor = Sinks{}
var _ core.SystemPowerControl = Sinks{}
var _ core.ExternalDisplayProvider = Sinks{}

func (Sinks) TurnOn(core.DisplayFilter)  {}
func (Sinks) TurnOff(core.DisplayFilter) {}

func (Sinks) SetNormalBrightness()            {}
func (Sinks) SetDimBrightness()               {}
func (Sinks) SetOffBrightness()               {}
func (Sinks) SetNormalBrightnessValue(float64) {}
func (Sinks) EnableAutobrightness()           {}
func (Sinks) DisableAutobrightness()          {}

func (Sinks) NotifyDisplayPowerOn(core.DisplayPowerChangeReason)  {}
func (Sinks) NotifyDisplayPowerOff(core.DisplayPowerChangeReason) {}

func (Sinks) SetLowPowerMode()    {}
func (Sinks) SetNormalPowerMode() {}

func (Sinks) EnableInteractiveMode()  {}
func (Sinks) DisableInteractiveMode() {}

func (Sinks) NotifyLongPress() {}

func (Sinks) ProximityState() core.ProximityState { return core.ProximityFar }
func (Sinks) EnableProximityEvents()              {}
func (Sinks) DisableProximityEvents()             {}

func (Sinks) DisallowSuspend(string, core.SuspendType) {}
func (Sinks) AllowSuspend(string, core.SuspendType)    {}
func (Sinks) SuspendWhenAllowed(string)                {}
func (Sinks) CancelSuspendWhenAllowed(string)          {}
func (Sinks) PowerOff()                                {}
func (Sinks) AllowDefaultSystemHandlers()              {}
func (Sinks) DisallowDefaultSystemHandlers()           {}

func (Sinks) HasActiveExternalDisplays() bool { return false }
