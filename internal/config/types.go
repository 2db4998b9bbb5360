package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qugok/birthday-bot/internal/scheduler"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Catalog   CatalogConfig   `json:"catalog"`
	State     StateConfig     `json:"state"`
	Report    ReportConfig    `json:"report,omitempty"`
}

type TelegramConfig struct {
	// Token is the bot credential. Prefer TokenFile (a local secret file,
	// first line only) or the TELEGRAM_TOKEN env var over inlining it.
	Token     string `json:"token,omitempty"`
	TokenFile string `json:"token_file,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	Greeting    string `json:"greeting,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the drip cadence.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "24h").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "5s"
//   - min_send_interval: "24h"
//   - send_timeout: "30s"
//   - rate_per_sec: 3
//   - exhaust_policy: "idle"
type SchedulerConfig struct {
	PollInterval    string `json:"poll_interval,omitempty"`
	MinSendInterval string `json:"min_send_interval,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	// FirstContact is an optional "HH:MM" wall time for a recipient's first
	// delivery; empty means new recipients are due immediately.
	FirstContact string `json:"first_contact,omitempty"`
	// ExhaustPolicy: "idle" (recheck every interval) or "never" (park).
	ExhaustPolicy string `json:"exhaust_policy,omitempty"`
}

type CatalogConfig struct {
	// Path to the catalog document (JSON list of content items).
	Path string `json:"path"`
}

// StateConfig controls the durable state backend.
//
// Example:
//
//	"state": { "driver": "file", "path": "./data" }
type StateConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReportConfig controls the optional daily stats report.
type ReportConfig struct {
	Enabled bool `json:"enabled"`
	// At is the "HH:MM" wall time (bot timezone) the report is logged at.
	At string `json:"at,omitempty"`
}

// Validate checks the config before it is committed (initial load and every
// hot reload). A rejected file keeps the previous config.
func (c *Config) Validate() error {
	// Token presence is checked at startup (it may come from the
	// environment); hot reloads never swap the credential.
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.poll_interval", c.Scheduler.PollInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.min_send_interval", c.Scheduler.MinSendInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.send_timeout", c.Scheduler.SendTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("state.busy_timeout", c.State.BusyTimeout); err != nil {
		return err
	}
	if fc := strings.TrimSpace(c.Scheduler.FirstContact); fc != "" {
		if _, _, err := scheduler.ParseHHMM(fc); err != nil {
			return fmt.Errorf("scheduler.first_contact: %w", err)
		}
	}
	switch p := strings.TrimSpace(c.Scheduler.ExhaustPolicy); p {
	case "", "idle", "never":
	default:
		return fmt.Errorf("scheduler.exhaust_policy: unknown value %q", p)
	}
	if c.Report.Enabled {
		if _, _, err := scheduler.ParseHHMM(c.Report.At); err != nil {
			return fmt.Errorf("report.at: %w", err)
		}
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return errors.New("catalog.path is required")
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return errors.New("state.path is required")
	}
	return nil
}

// SchedulerSettings converts the raw config block into scheduler tunables.
// Call Validate first; parse errors here fall back to defaults.
func (c *Config) SchedulerSettings() scheduler.Config {
	poll, _ := ParseDurationField("scheduler.poll_interval", c.Scheduler.PollInterval)
	minInt, _ := ParseDurationField("scheduler.min_send_interval", c.Scheduler.MinSendInterval)
	sendTO, _ := ParseDurationField("scheduler.send_timeout", c.Scheduler.SendTimeout)
	return scheduler.Config{
		PollInterval:    poll,
		MinSendInterval: minInt,
		SendTimeout:     sendTO,
		RatePerSec:      c.Scheduler.RatePerSec,
		FirstContact:    strings.TrimSpace(c.Scheduler.FirstContact),
		ExhaustPolicy:   scheduler.ExhaustPolicy(strings.TrimSpace(c.Scheduler.ExhaustPolicy)),
	}
}
