// Package resilient wraps a fallible SystemPowerControl driver (one whose
// underlying suspend/resume mechanism can transiently fail, e.g. a D-Bus
// call to logind) with bounded retries, presenting the infallible
// interface internal/core requires of its sinks (spec §7: "adapters
// absorb, retry … without surfacing errors to the core").
package resilient

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ubports/repowerd/internal/core"
)

// FallibleSystemPowerControl is the kind of real driver this package
// wraps: unlike core.SystemPowerControl, its calls can fail.
type FallibleSystemPowerControl interface {
	DisallowSuspend(id string, t core.SuspendType) error
	AllowSuspend(id string, t core.SuspendType) error
	SuspendWhenAllowed(id string) error
	CancelSuspendWhenAllowed(id string) error
	PowerOff() error
	AllowDefaultSystemHandlers() error
	DisallowDefaultSystemHandlers() error
}

// SystemPowerControl retries a FallibleSystemPowerControl's calls with
// exponential backoff on a background goroutine, so the calling
// StateMachine never blocks on or observes the underlying failure.
type SystemPowerControl struct {
	next FallibleSystemPowerControl
	log  *slog.Logger

	newBackOff func() backoff.BackOff
}

var _ core.SystemPowerControl = (*SystemPowerControl)(nil)

// New wraps next. maxElapsed bounds how long retries run before giving up
// and logging a failure; zero selects a 30s default.
func New(next FallibleSystemPowerControl, maxElapsed time.Duration, log *slog.Logger) *SystemPowerControl {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &SystemPowerControl{
		next: next,
		log:  log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
}

func (s *SystemPowerControl) DisallowSuspend(id string, t core.SuspendType) {
	go s.retry("disallow_suspend", id, func() error { return s.next.DisallowSuspend(id, t) })
}

func (s *SystemPowerControl) AllowSuspend(id string, t core.SuspendType) {
	go s.retry("allow_suspend", id, func() error { return s.next.AllowSuspend(id, t) })
}

func (s *SystemPowerControl) SuspendWhenAllowed(id string) {
	go s.retry("suspend_when_allowed", id, func() error { return s.next.SuspendWhenAllowed(id) })
}

func (s *SystemPowerControl) CancelSuspendWhenAllowed(id string) {
	go s.retry("cancel_suspend_when_allowed", id, func() error { return s.next.CancelSuspendWhenAllowed(id) })
}

func (s *SystemPowerControl) PowerOff() {
	go s.retry("power_off", "", func() error { return s.next.PowerOff() })
}

func (s *SystemPowerControl) AllowDefaultSystemHandlers() {
	go s.retry("allow_default_system_handlers", "", func() error { return s.next.AllowDefaultSystemHandlers() })
}

func (s *SystemPowerControl) DisallowDefaultSystemHandlers() {
	go s.retry("disallow_default_system_handlers", "", func() error { return s.next.DisallowDefaultSystemHandlers() })
}

func (s *SystemPowerControl) retry(op, id string, fn func() error) {
	err := backoff.Retry(fn, s.newBackOff())
	if err != nil {
		s.log.Error("system power control operation failed permanently",
			"op", op, "id", id, "err", err)
		return
	}
	s.log.Debug("system power control operation succeeded", "op", op, "id", id)
}
