package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentColumns = []string{
	"id", "name", "email", "phone", "service", "slot_date", "slot_start_time", "slot_end_time",
	"meeting_link", "consultant_name", "status", "payment_status", "whatsapp_jobs", "created_at", "updated_at",
}

func TestFindByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, email").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentColumns).AddRow(
			id, "Asha", "asha@example.com", "919800000000", "Skin", date, "15:00", "15:30",
			"https://meet.example.com/abc", "Dr. Rao", "booked", "completed",
			[]byte(`[{"label":"24hr_reminder","job_id":"j-1"}]`), now, now,
		))

	repo := NewRepository(mock)
	appt, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Asha", appt.Name)
	assert.Equal(t, StatusBooked, appt.Status)
	assert.Equal(t, PaymentCompleted, appt.PaymentStatus)
	assert.Equal(t, []JobRef{{Label: "24hr_reminder", JobID: "j-1"}}, appt.WhatsAppJobs)
	assert.True(t, appt.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, name, email").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).FindByID(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSlotClearsJobs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, date, "11:00", "11:30").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewRepository(mock).UpdateSlot(context.Background(), id, date, "11:00", "11:30"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSlotMissingAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, pgxmock.AnyArg(), "11:00", "11:30").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepository(mock).UpdateSlot(context.Background(), id, time.Now(), "11:00", "11:30")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateWhatsAppJobsEncodesList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := &Appointment{ID: uuid.New(), SlotDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), SlotStartTime: "11:00", SlotEndTime: "11:30"}
	mock.ExpectExec("UPDATE appointments SET whatsapp_jobs").
		WithArgs(appt.ID, []byte(`[{"label":"live_now","job_id":"r-9"}]`), appt.SlotDate, "11:00", "11:30", "booked", "scheduled", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments SET whatsapp_jobs").
		WithArgs(appt.ID, []byte(`[]`), appt.SlotDate, "11:00", "11:30", "booked", "scheduled", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	require.NoError(t, repo.UpdateWhatsAppJobs(context.Background(), appt, []JobRef{{Label: "live_now", JobID: "r-9"}}))
	require.NoError(t, repo.UpdateWhatsAppJobs(context.Background(), appt, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWhatsAppJobsStaleWhenSlotOrStatusChanged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := &Appointment{ID: uuid.New(), SlotDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), SlotStartTime: "11:00", SlotEndTime: "11:30"}
	mock.ExpectExec("AND status IN").
		WithArgs(appt.ID, pgxmock.AnyArg(), appt.SlotDate, "11:00", "11:30", "booked", "scheduled", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepository(mock).UpdateWhatsAppJobs(context.Background(), appt, []JobRef{{Label: "live_now", JobID: "r-9"}})
	assert.ErrorIs(t, err, ErrStale)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id, date, "11:00", "11:30").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := NewRepository(mock).SlotTaken(context.Background(), id, date, "11:00", "11:30")
	require.NoError(t, err)
	assert.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCanceled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs(id, "canceled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewRepository(mock).MarkCanceled(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}
