package form

import (
	"fmt"
	"strings"
	"time"

	"labdesk/internal/schema"
)

// LocalLayout is the value format of a datetime-local input.
const LocalLayout = "2006-01-02T15:04"

// ToLocalInput converts a stored absolute timestamp to the wall-clock value a
// datetime-local input shows in loc. Seconds are kept when non-zero. Empty and
// unparseable values become "".
func ToLocalInput(raw string, loc *time.Location) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	t, err := schema.ParseTimestamp(raw)
	if err != nil {
		return ""
	}
	t = t.In(loc)
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return t.Format(LocalLayout + ":05")
	}
	return t.Format(LocalLayout)
}

// FromLocalInput interprets a datetime-local value as wall-clock time in loc and
// returns the absolute timestamp the store expects. Seconds are accepted.
func FromLocalInput(local string, loc *time.Location) (string, error) {
	local = strings.TrimSpace(local)
	if local == "" {
		return "", nil
	}
	t, err := time.ParseInLocation(LocalLayout, local, loc)
	if err != nil {
		t, err = time.ParseInLocation(LocalLayout+":05", local, loc)
		if err != nil {
			return "", fmt.Errorf("invalid date and time %q", local)
		}
	}
	return t.UTC().Format(schema.TimestampLayout), nil
}
