// Package config loads repowerd's YAML configuration file, a file-backed
// Config with Validate() defaulting in the style of the teacher's
// client/doublezerod/internal/liveness.ManagerConfig. cmd/powerguardd's
// flags select the file; they do not override individual values. Parsing a
// file format is explicitly ambient/cmd-level: internal/core never reads
// a byte of configuration itself (spec §2 Non-goals).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ubports/repowerd/internal/core"
)

// Config is the on-disk shape of repowerd's configuration file.
type Config struct {
	InactivityTimeout                 time.Duration `yaml:"inactivity_timeout"`
	ReducedInactivityTimeout          time.Duration `yaml:"reduced_inactivity_timeout"`
	PostNotificationInactivityTimeout time.Duration `yaml:"post_notification_inactivity_timeout"`
	DimBeforeOffDuration              time.Duration `yaml:"dim_before_off_duration"`
	NotificationExpirationTimeout     time.Duration `yaml:"notification_expiration_timeout"`
	PowerButtonLongPressTimeout       time.Duration `yaml:"power_button_long_press_timeout"`
	TreatPowerButtonAsUserActivity    bool          `yaml:"treat_power_button_as_user_activity"`
	TurnOnDisplayAtStartup            bool          `yaml:"turn_on_display_at_startup"`
}

// Load reads and parses the YAML file at path, then validates it.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate runs core.StateMachineConfig.Validate on the projected
// state-machine fields and copies the defaulted timeouts back into c.
func (c *Config) Validate() error {
	sm := c.StateMachineConfig()
	if err := sm.Validate(); err != nil {
		return err
	}
	c.InactivityTimeout = sm.InactivityTimeout
	c.ReducedInactivityTimeout = sm.ReducedInactivityTimeout
	c.PostNotificationInactivityTimeout = sm.PostNotificationInactivityTimeout
	c.DimBeforeOffDuration = sm.DimBeforeOffDuration
	c.NotificationExpirationTimeout = sm.NotificationExpirationTimeout
	c.PowerButtonLongPressTimeout = sm.PowerButtonLongPressTimeout
	return nil
}

// StateMachineConfig projects Config onto the subset internal/core needs.
func (c Config) StateMachineConfig() core.StateMachineConfig {
	return core.StateMachineConfig{
		InactivityTimeout:                 c.InactivityTimeout,
		ReducedInactivityTimeout:          c.ReducedInactivityTimeout,
		PostNotificationInactivityTimeout: c.PostNotificationInactivityTimeout,
		DimBeforeOffDuration:              c.DimBeforeOffDuration,
		NotificationExpirationTimeout:     c.NotificationExpirationTimeout,
		PowerButtonLongPressTimeout:       c.PowerButtonLongPressTimeout,
		TreatPowerButtonAsUserActivity:    c.TreatPowerButtonAsUserActivity,
		TurnOnDisplayAtStartup:            c.TurnOnDisplayAtStartup,
	}
}

// DaemonConfig projects Config onto the subset internal/core.Daemon needs.
func (c Config) DaemonConfig() core.DaemonConfig {
	return core.DaemonConfig{TurnOnDisplayAtStartup: c.TurnOnDisplayAtStartup}
}
