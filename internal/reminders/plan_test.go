package reminders

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/consultation-reminders/internal/appointments"
)

func testAppointment(date time.Time, start string) *appointments.Appointment {
	return &appointments.Appointment{
		Name:          "Asha",
		Email:         "asha@example.com",
		Phone:         "919800000000",
		Service:       "Skin",
		SlotDate:      date,
		SlotStartTime: start,
		SlotEndTime:   "15:30",
		MeetingLink:   "https://meet.example.com/abc",
		Status:        appointments.StatusBooked,
		PaymentStatus: appointments.PaymentCompleted,
	}
}

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, appointments.Zone)
}

func kindsOf(plan []PlanEntry) []Kind {
	out := make([]Kind, 0, len(plan))
	for _, e := range plan {
		out = append(out, e.Kind)
	}
	return out
}

func TestBuildPlanDayAhead(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")

	plan, err := BuildPlan(appt, ist(2025, 5, 19, 9, 0))
	require.NoError(t, err)
	require.Len(t, plan, 5)
	assert.Equal(t, Kinds, kindsOf(plan))
	assert.True(t, plan[0].ScheduledAt.Equal(ist(2025, 5, 19, 15, 0)))
	assert.True(t, plan[3].ScheduledAt.Equal(ist(2025, 5, 20, 15, 0)))
	assert.True(t, plan[4].ScheduledAt.Equal(ist(2025, 5, 20, 15, 5)))
	assert.Equal(t, "24 Hour Reminder: Your Consultation Tomorrow", plan[0].Subject)
	assert.Equal(t, "Please join the meeting", plan[3].Subheading)
}

func TestBuildPlanSameMorningDropsDayBefore(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")

	plan, err := BuildPlan(appt, ist(2025, 5, 20, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindHalfHour, KindTenMinutes, KindLive, KindAfterStart}, kindsOf(plan))
}

func TestBuildPlanFiveMinutesBefore(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")

	plan, err := BuildPlan(appt, ist(2025, 5, 20, 14, 55))
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindLive, KindAfterStart}, kindsOf(plan))
}

func TestBuildPlanExcludesInstantEqualToNow(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")

	plan, err := BuildPlan(appt, ist(2025, 5, 20, 15, 0))
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindAfterStart}, kindsOf(plan))
}

func TestBuildPlanAllPast(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")

	plan, err := BuildPlan(appt, ist(2025, 5, 21, 9, 0))
	require.NoError(t, err)
	assert.Empty(t, plan)
	assert.Empty(t, Records(plan))
}

func TestBuildPlanAcrossMidnight(t *testing.T) {
	appt := testAppointment(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "00:05")

	plan, err := BuildPlan(appt, ist(2024, 12, 31, 12, 0))
	require.NoError(t, err)
	require.Len(t, plan, 4)
	assert.Equal(t, KindHalfHour, plan[0].Kind)
	assert.True(t, plan[0].ScheduledAt.Equal(ist(2024, 12, 31, 23, 35)))
	assert.True(t, plan[1].ScheduledAt.Equal(ist(2024, 12, 31, 23, 55)))
	assert.True(t, plan[2].ScheduledAt.Equal(ist(2025, 1, 1, 0, 5)))
}

func TestBuildPlanAcceptsNowInAnyZone(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")

	// 14:55 IST expressed in UTC.
	plan, err := BuildPlan(appt, time.Date(2025, 5, 20, 9, 25, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindLive, KindAfterStart}, kindsOf(plan))
}

func TestBuildPlanMissingSlotTime(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "")

	_, err := BuildPlan(appt, ist(2025, 5, 19, 9, 0))
	assert.True(t, errors.Is(err, appointments.ErrInvalidSlot))
}

func TestBuildPlanNeverReturnsPastInstantsAndShrinksOverTime(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "10:30")
	start := ist(2025, 5, 20, 10, 30)

	prev := len(Kinds) + 1
	for now := start.Add(-26 * time.Hour); now.Before(start.Add(10 * time.Minute)); now = now.Add(7 * time.Minute) {
		plan, err := BuildPlan(appt, now)
		require.NoError(t, err)
		for _, entry := range plan {
			require.True(t, entry.ScheduledAt.After(now), "entry %s at %s not after %s", entry.Kind, entry.ScheduledAt, now)
		}
		require.LessOrEqual(t, len(plan), prev)
		prev = len(plan)
	}
	assert.Equal(t, 0, prev)
}

func TestRecordsAssignPositions(t *testing.T) {
	appt := testAppointment(time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "15:00")
	plan, err := BuildPlan(appt, ist(2025, 5, 20, 14, 0))
	require.NoError(t, err)

	records := Records(plan)
	require.Len(t, records, 4)
	for i, r := range records {
		assert.Equal(t, i, r.Position)
		assert.False(t, r.Sent)
		if i > 0 {
			assert.True(t, r.ScheduledAt.After(records[i-1].ScheduledAt))
		}
	}
}
