package state

import (
	"fmt"
	"time"
)

// Location is the fixed offset used for all persisted timestamps.
// The deployed data files were written with UTC+3; keep it stable so
// restarts parse old state correctly.
var Location = time.FixedZone("UTC+3", 3*60*60)

// TimeLayout is the persisted timestamp format (ISO-8601, no zone suffix;
// the zone is implied by Location).
const TimeLayout = "2006-01-02T15:04:05"

// MinTime marks a recipient as "already due" (first contact).
// Never marks a recipient as "never due again" (blocked, or exhausted under
// the "never" policy). Both are regular NextEligibleAt values, not errors.
var (
	MinTime = time.Date(1, time.January, 1, 0, 0, 0, 0, Location)
	Never   = time.Date(9999, time.December, 31, 23, 59, 59, 0, Location)
)

// IsNever reports whether t is the never-again sentinel.
func IsNever(t time.Time) bool { return !t.Before(Never) }

// Profile is the recipient metadata captured at registration time.
type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
}

// Recipient is one registry entry. Recipients are created on first
// registration and never deleted; a blocked recipient is retained with
// NextEligibleAt = Never so it is never rescheduled.
type Recipient struct {
	ID             int64
	Profile        Profile
	Blocked        bool
	NextEligibleAt time.Time
}

// Snapshot is the in-memory image of the full durable state.
// Every Recipients key has a (possibly empty) Ledger entry.
type Snapshot struct {
	Recipients map[int64]Recipient
	Ledger     map[int64][]int
}

// FormatTime renders t for persistence.
func FormatTime(t time.Time) string {
	return t.In(Location).Format(TimeLayout)
}

// ParseTime parses a persisted timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
