package appointments

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Zone is the fixed local offset every slot is booked in (IST, UTC+05:30).
var Zone = time.FixedZone("IST", 5*60*60+30*60)

// ErrInvalidSlot reports a slot date or time that cannot be turned into an instant.
var ErrInvalidSlot = errors.New("appointments: invalid slot")

const dateLayout = "2006-01-02"

// Now returns the current instant expressed in Zone.
func Now() time.Time {
	return time.Now().In(Zone)
}

// SlotStart converts a booked calendar date and an "HH:MM" start time into
// an absolute instant in Zone. Only the year, month and day of date are used.
func SlotStart(date time.Time, hhmm string) (time.Time, error) {
	if date.IsZero() {
		return time.Time{}, fmt.Errorf("%w: missing date", ErrInvalidSlot)
	}
	hour, minute, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, Zone), nil
}

// ParseDate parses a "YYYY-MM-DD" calendar date.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSlot, value)
	}
	return parsed, nil
}

// FormatDate renders the calendar date of a slot as "YYYY-MM-DD".
func FormatDate(date time.Time) string {
	return date.Format(dateLayout)
}

// ValidClock reports whether value is a well-formed "HH:MM" time of day.
func ValidClock(value string) bool {
	_, _, err := parseClock(value)
	return err == nil
}

func parseClock(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, fmt.Errorf("%w: missing start time", ErrInvalidSlot)
	}
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSlot, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour in %q", ErrInvalidSlot, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute in %q", ErrInvalidSlot, value)
	}
	return hour, minute, nil
}
