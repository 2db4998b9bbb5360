package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string from a config value. The
// field name is woven into the error so a rejected reload points at the
// offending key. An empty value parses to zero; callers apply their own
// defaults on top.
func ParseDurationField(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for empty
// or zero values.
func ParseDurationOrDefault(field, value string, fallback time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return fallback, nil
	}
	return d, nil
}
