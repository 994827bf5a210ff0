package reminders

import (
	"time"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
)

// PlanEntry is one computed reminder: when it fires and what it says.
type PlanEntry struct {
	Kind        Kind
	ScheduledAt time.Time
	Subject     string
	Heading     string
	Subheading  string
}

// BuildPlan computes the reminders still ahead of now for an appointment,
// in canonical order. Entries at or before now are dropped, so the result
// may be empty. A missing or malformed slot fails the whole build.
func BuildPlan(appt *appointments.Appointment, now time.Time) ([]PlanEntry, error) {
	start, err := appt.Start()
	if err != nil {
		return nil, err
	}
	now = now.In(appointments.Zone)

	plan := make([]PlanEntry, 0, len(Kinds))
	for _, kind := range Kinds {
		at := kind.At(start)
		if !at.After(now) {
			continue
		}
		plan = append(plan, PlanEntry{
			Kind:        kind,
			ScheduledAt: at,
			Subject:     kind.Subject(),
			Heading:     kind.Heading(),
			Subheading:  kind.Subheading(),
		})
	}
	return plan, nil
}

// Records converts plan entries into unsent store records.
func Records(plan []PlanEntry) []Record {
	records := make([]Record, 0, len(plan))
	for i, entry := range plan {
		records = append(records, Record{
			Position:    i,
			Kind:        entry.Kind,
			Subject:     entry.Subject,
			Heading:     entry.Heading,
			Subheading:  entry.Subheading,
			ScheduledAt: entry.ScheduledAt,
		})
	}
	return records
}
