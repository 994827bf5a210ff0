package reminders

import "time"

// Kind identifies one of the fixed reminder points around a consultation.
type Kind int

const (
	KindDayBefore Kind = iota
	KindHalfHour
	KindTenMinutes
	KindLive
	KindAfterStart
)

// Kinds lists every reminder kind in canonical (ascending offset) order.
var Kinds = []Kind{KindDayBefore, KindHalfHour, KindTenMinutes, KindLive, KindAfterStart}

type kindSpec struct {
	offset     time.Duration
	label      string
	subject    string
	heading    string
	subheading string
}

var kindSpecs = map[Kind]kindSpec{
	KindDayBefore: {
		offset:     -24 * time.Hour,
		label:      "24hr_reminder",
		subject:    "24 Hour Reminder: Your Consultation Tomorrow",
		heading:    "Your consultation is scheduled for tomorrow",
		subheading: "We're looking forward to meeting you",
	},
	KindHalfHour: {
		offset:     -30 * time.Minute,
		label:      "30min_reminder",
		subject:    "30 Minutes Until Your Consultation",
		heading:    "Your consultation starts in 30 minutes",
		subheading: "Please prepare to join the meeting",
	},
	KindTenMinutes: {
		offset:     -10 * time.Minute,
		label:      "10min_reminder",
		subject:    "10 Minutes Until Your Consultation",
		heading:    "Your consultation starts in 10 minutes",
		subheading: "Please get ready to join",
	},
	KindLive: {
		offset:     0,
		label:      "live_now",
		subject:    "Your Consultation is Starting Now",
		heading:    "Your consultation is starting now",
		subheading: "Please join the meeting",
	},
	KindAfterStart: {
		offset:     5 * time.Minute,
		label:      "after_start_reminder",
		subject:    "Consultation Follow-up",
		heading:    "Your consultation should be in progress",
		subheading: "If you haven't joined yet, please join now or reschedule",
	},
}

// Offset is the delta from the consultation start at which the reminder fires.
func (k Kind) Offset() time.Duration { return kindSpecs[k].offset }

// Label is the short name used for WhatsApp job references and metrics.
func (k Kind) Label() string { return kindSpecs[k].label }

// Subject is the email subject line.
func (k Kind) Subject() string { return kindSpecs[k].subject }

// Heading is the email headline.
func (k Kind) Heading() string { return kindSpecs[k].heading }

// Subheading is the email line shown under the greeting.
func (k Kind) Subheading() string { return kindSpecs[k].subheading }

func (k Kind) String() string {
	if spec, ok := kindSpecs[k]; ok {
		return spec.label
	}
	return "unknown"
}

// At returns the absolute instant the reminder fires for a consultation starting at start.
func (k Kind) At(start time.Time) time.Time {
	return start.Add(k.Offset())
}
