package reminders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/consultation-reminders/internal/appointments"
)

// memStore is an in-memory ReminderStore used by dispatcher tests.
type memStore struct {
	mu           sync.Mutex
	docs         map[uuid.UUID]*Document
	appointments map[uuid.UUID]appointments.Appointment
	findDueErr   error
	markSentErr  error
	markCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		docs:         map[uuid.UUID]*Document{},
		appointments: map[uuid.UUID]appointments.Appointment{},
	}
}

func (m *memStore) CreatePlan(_ context.Context, appointmentID uuid.UUID, records []Record) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(records) == 0 {
		return nil, nil
	}
	for _, d := range m.docs {
		if d.AppointmentID == appointmentID {
			return nil, ErrConflict
		}
	}
	doc := &Document{ID: uuid.New(), AppointmentID: appointmentID}
	for i, r := range records {
		r.Position = i
		doc.Records = append(doc.Records, r)
	}
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *memStore) FindDue(_ context.Context, asOf time.Time) ([]DueDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findDueErr != nil {
		return nil, m.findDueErr
	}
	var out []DueDocument
	for _, d := range m.docs {
		if len(d.DueRecords(asOf)) == 0 {
			continue
		}
		appt, ok := m.appointments[d.AppointmentID]
		if !ok {
			continue
		}
		cp := *d
		cp.Records = append([]Record(nil), d.Records...)
		out = append(out, DueDocument{Document: cp, Appointment: appt})
	}
	return out, nil
}

func (m *memStore) MarkSent(_ context.Context, documentID uuid.UUID, position int, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++
	if m.markSentErr != nil {
		return m.markSentErr
	}
	doc, ok := m.docs[documentID]
	if !ok {
		return nil
	}
	for i := range doc.Records {
		if doc.Records[i].Position == position && !doc.Records[i].Sent {
			at := sentAt
			doc.Records[i].Sent = true
			doc.Records[i].SentAt = &at
		}
	}
	return nil
}

func (m *memStore) DeleteIfComplete(_ context.Context, documentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok || !doc.Complete() {
		return false, nil
	}
	delete(m.docs, documentID)
	return true, nil
}

func (m *memStore) DeleteByAppointment(_ context.Context, appointmentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.docs {
		if d.AppointmentID == appointmentID {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *memStore) FindByAppointment(_ context.Context, appointmentID uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.AppointmentID == appointmentID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) doc(id uuid.UUID) *Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

// fakeMailer records deliveries and fails subjects listed in failSubjects.
type fakeMailer struct {
	mu           sync.Mutex
	sent         []Record
	failSubjects map[string]bool
	block        chan struct{}
	entered      chan struct{}
	onSend       func(ctx context.Context, rec Record)
}

func (f *fakeMailer) SendReminder(ctx context.Context, _ *appointments.Appointment, rec Record) error {
	if f.onSend != nil {
		f.onSend(ctx, rec)
	}
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubjects[rec.Subject] {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, rec)
	return nil
}

func (f *fakeMailer) sentSubjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, r := range f.sent {
		out = append(out, r.Subject)
	}
	return out
}
