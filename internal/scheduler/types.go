package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExhaustPolicy controls what happens to a recipient's next-eligible time
// when the catalog has nothing left for them.
type ExhaustPolicy string

const (
	// ExhaustIdle sets next-eligible to now: the recipient is re-checked
	// once per interval and picks up new catalog items automatically.
	ExhaustIdle ExhaustPolicy = "idle"
	// ExhaustNever parks the recipient on the never sentinel; only a state
	// edit brings them back.
	ExhaustNever ExhaustPolicy = "never"
)

// Config holds the scheduler tunables. All of them may be re-applied at
// runtime via Apply.
type Config struct {
	// PollInterval bounds worst-case delivery latency: no recipient is
	// served earlier than the next poll boundary.
	PollInterval time.Duration
	// MinSendInterval must elapse between two sends to the same recipient.
	MinSendInterval time.Duration
	// SendTimeout bounds one transport call. Timeouts classify as transient.
	SendTimeout time.Duration
	// RatePerSec paces outbound sends across all recipients (0 = default).
	RatePerSec int
	// FirstContact is an optional "HH:MM" wall time; new registrations are
	// scheduled for its next occurrence instead of being due immediately.
	FirstContact string
	// ExhaustPolicy defaults to ExhaustIdle.
	ExhaustPolicy ExhaustPolicy
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = 5 * time.Second
	}
	if out.MinSendInterval <= 0 {
		out.MinSendInterval = 24 * time.Hour
	}
	if out.SendTimeout <= 0 {
		out.SendTimeout = 30 * time.Second
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = 3
	}
	if out.ExhaustPolicy == "" {
		out.ExhaustPolicy = ExhaustIdle
	}
	return out
}

// Stats is a point-in-time snapshot of the schedule, used by the daily
// report and by tests.
type Stats struct {
	Recipients int `json:"recipients"`
	Blocked    int `json:"blocked"`
	Parked     int `json:"parked"` // on the never sentinel, not blocked
	Due        int `json:"due"`
	Delivered  int `json:"delivered"` // total ledger entries
}

// ParseHHMM parses a compact "HH:MM" wall-time string.
func ParseHHMM(raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}
