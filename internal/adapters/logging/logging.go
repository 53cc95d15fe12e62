// Package logging decorates internal/core sink implementations with
// structured call-site logging, matching the teacher's pervasive slog
// usage at every manager/session state transition
// (client/doublezerod/internal/liveness/manager.go).
package logging

import (
	"log/slog"

	"github.com/ubports/repowerd/internal/core"
)

// Display wraps a core.DisplayPowerControl, logging each call.
type Display struct {
	Next core.DisplayPowerControl
	Log  *slog.Logger
}

func (d Display) TurnOn(filter core.DisplayFilter) {
	d.Log.Info("display turn on", "filter", filter.String())
	d.Next.TurnOn(filter)
}

func (d Display) TurnOff(filter core.DisplayFilter) {
	d.Log.Info("display turn off", "filter", filter.String())
	d.Next.TurnOff(filter)
}

// SystemPower wraps a core.SystemPowerControl, logging each allow/disallow
// edge along with its id.
type SystemPower struct {
	Next core.SystemPowerControl
	Log  *slog.Logger
}

func (p SystemPower) DisallowSuspend(id string, t core.SuspendType) {
	p.Log.Info("suspend disallowed", "id", id, "type", t.String())
	p.Next.DisallowSuspend(id, t)
}

func (p SystemPower) AllowSuspend(id string, t core.SuspendType) {
	p.Log.Info("suspend allowed", "id", id, "type", t.String())
	p.Next.AllowSuspend(id, t)
}

func (p SystemPower) SuspendWhenAllowed(id string) {
	p.Log.Info("suspend requested when allowed", "id", id)
	p.Next.SuspendWhenAllowed(id)
}

func (p SystemPower) CancelSuspendWhenAllowed(id string) {
	p.Log.Info("suspend-when-allowed cancelled", "id", id)
	p.Next.CancelSuspendWhenAllowed(id)
}

func (p SystemPower) PowerOff() {
	p.Log.Warn("power off requested")
	p.Next.PowerOff()
}

func (p SystemPower) AllowDefaultSystemHandlers() {
	p.Log.Info("default system handlers allowed")
	p.Next.AllowDefaultSystemHandlers()
}

func (p SystemPower) DisallowDefaultSystemHandlers() {
	p.Log.Info("default system handlers disallowed")
	p.Next.DisallowDefaultSystemHandlers()
}

// DisplayEventSink wraps a core.DisplayPowerEventSink, logging every power
// mode notification.
type DisplayEventSink struct {
	Next core.DisplayPowerEventSink
	Log  *slog.Logger
}

func (s DisplayEventSink) NotifyDisplayPowerOn(reason core.DisplayPowerChangeReason) {
	s.Log.Info("display power on", "reason", reason.String())
	if s.Next != nil {
		s.Next.NotifyDisplayPowerOn(reason)
	}
}

func (s DisplayEventSink) NotifyDisplayPowerOff(reason core.DisplayPowerChangeReason) {
	s.Log.Info("display power off", "reason", reason.String())
	if s.Next != nil {
		s.Next.NotifyDisplayPowerOff(reason)
	}
}
