package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dueColumns = []string{
	"id", "appointment_id", "created_at", "updated_at",
	"position", "kind", "subject", "heading", "subheading", "scheduled_at", "sent", "sent_at",
	"has_appointment",
	"name", "email", "phone", "service", "slot_date", "slot_start_time", "slot_end_time",
	"meeting_link", "consultant_name", "status", "payment_status",
}

func TestCreatePlanInsertsDocumentAndRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	start := ist(2025, 5, 20, 15, 0)
	records := []Record{
		{Kind: KindLive, Subject: KindLive.Subject(), Heading: KindLive.Heading(), Subheading: KindLive.Subheading(), ScheduledAt: start},
		{Kind: KindAfterStart, Subject: KindAfterStart.Subject(), Heading: KindAfterStart.Heading(), Subheading: KindAfterStart.Subheading(), ScheduledAt: start.Add(5 * time.Minute)},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reminder_documents").
		WithArgs(pgxmock.AnyArg(), apptID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reminder_records").
		WithArgs(pgxmock.AnyArg(), 0, int(KindLive), KindLive.Subject(), KindLive.Heading(), KindLive.Subheading(), start.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reminder_records").
		WithArgs(pgxmock.AnyArg(), 1, int(KindAfterStart), KindAfterStart.Subject(), KindAfterStart.Heading(), KindAfterStart.Subheading(), start.Add(5*time.Minute).UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	store := NewStore(mock, nil)
	doc, err := store.CreatePlan(context.Background(), apptID, records)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, apptID, doc.AppointmentID)
	assert.Len(t, doc.Records, 2)
	assert.False(t, doc.Complete())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlanEmptyIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doc, err := NewStore(mock, nil).CreatePlan(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlanConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reminder_documents").
		WithArgs(pgxmock.AnyArg(), apptID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	_, err = NewStore(mock, nil).CreatePlan(context.Background(), apptID, []Record{{Kind: KindLive, ScheduledAt: time.Now()}})
	assert.True(t, errors.Is(err, ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDueGroupsRecordsAndSkipsMissingAppointments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	asOf := ist(2025, 5, 20, 15, 6)
	docID, apptID := uuid.New(), uuid.New()
	staleDoc, staleAppt := uuid.New(), uuid.New()
	created := time.Now().UTC()
	slotDate := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT d.id, d.appointment_id").
		WithArgs(asOf.UTC()).
		WillReturnRows(pgxmock.NewRows(dueColumns).
			AddRow(docID, apptID, created, created,
				0, int(KindLive), "s0", "h0", "sh0", ist(2025, 5, 20, 15, 0), false, nil,
				true, "Asha", "asha@example.com", "919800000000", "Skin", slotDate, "15:00", "15:30",
				"https://meet.example.com/abc", "", "booked", "completed").
			AddRow(docID, apptID, created, created,
				1, int(KindAfterStart), "s1", "h1", "sh1", ist(2025, 5, 20, 15, 5), false, nil,
				true, "Asha", "asha@example.com", "919800000000", "Skin", slotDate, "15:00", "15:30",
				"https://meet.example.com/abc", "", "booked", "completed").
			AddRow(staleDoc, staleAppt, created, created,
				0, int(KindLive), "s0", "h0", "sh0", ist(2025, 5, 20, 15, 0), false, nil,
				false, "", "", "", "", nil, "", "",
				"", "", "", ""))

	docs, err := NewStore(mock, nil).FindDue(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, docID, docs[0].ID)
	assert.Equal(t, apptID, docs[0].Appointment.ID)
	assert.Equal(t, "Asha", docs[0].Appointment.Name)
	require.Len(t, docs[0].Records, 2)
	assert.Equal(t, KindAfterStart, docs[0].Records[1].Kind)
	assert.Len(t, docs[0].DueRecords(asOf), 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentIsIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	docID := uuid.New()
	sentAt := ist(2025, 5, 20, 15, 0)
	mock.ExpectExec("UPDATE reminder_records SET sent = true").
		WithArgs(docID, 1, sentAt.UTC()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE reminder_records SET sent = true").
		WithArgs(docID, 1, sentAt.UTC()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock, nil)
	require.NoError(t, store.MarkSent(context.Background(), docID, 1, sentAt))
	require.NoError(t, store.MarkSent(context.Background(), docID, 1, sentAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteIfCompleteLeavesUnsentDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	docID := uuid.New()
	mock.ExpectExec("DELETE FROM reminder_documents d").
		WithArgs(docID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM reminder_documents d").
		WithArgs(docID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	store := NewStore(mock, nil)
	deleted, err := store.DeleteIfComplete(context.Background(), docID)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.DeleteIfComplete(context.Background(), docID)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	mock.ExpectExec("DELETE FROM reminder_documents WHERE appointment_id").
		WithArgs(apptID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, NewStore(mock, nil).DeleteByAppointment(context.Background(), apptID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByAppointmentMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	mock.ExpectQuery("SELECT d.id, d.appointment_id").
		WithArgs(apptID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "appointment_id", "created_at", "updated_at",
			"position", "kind", "subject", "heading", "subheading", "scheduled_at", "sent", "sent_at"}))

	doc, err := NewStore(mock, nil).FindByAppointment(context.Background(), apptID)
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}
