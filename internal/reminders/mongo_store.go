package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

// AppointmentLookup resolves the appointment a reminder document belongs to.
type AppointmentLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

type mongoDocument struct {
	ID            string    `bson:"_id"`
	AppointmentID string    `bson:"consultationId"`
	Reminders     []Record  `bson:"reminders"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

// MongoStore keeps one embedded-array document per appointment in MongoDB.
type MongoStore struct {
	coll         *mongo.Collection
	appointments AppointmentLookup
	logger       *logging.Logger
}

// NewMongoStore creates a Mongo-backed reminder store.
func NewMongoStore(coll *mongo.Collection, lookup AppointmentLookup, logger *logging.Logger) *MongoStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &MongoStore{coll: coll, appointments: lookup, logger: logger}
}

// EnsureIndexes creates the unique appointment index and the due-lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "consultationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reminders.sent", Value: 1}, {Key: "reminders.scheduledTime", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("reminders: create mongo indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) CreatePlan(ctx context.Context, appointmentID uuid.UUID, records []Record) (*Document, error) {
	if len(records) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	doc := &Document{ID: uuid.New(), AppointmentID: appointmentID, CreatedAt: now, UpdatedAt: now}
	for i, r := range records {
		r.Position = i
		r.Sent = false
		r.SentAt = nil
		r.ScheduledAt = r.ScheduledAt.UTC()
		doc.Records = append(doc.Records, r)
	}

	_, err := s.coll.InsertOne(ctx, mongoDocument{
		ID:            doc.ID.String(),
		AppointmentID: appointmentID.String(),
		Reminders:     doc.Records,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("reminders: insert mongo document: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) FindDue(ctx context.Context, asOf time.Time) ([]DueDocument, error) {
	filter := bson.M{"reminders": bson.M{"$elemMatch": bson.M{
		"sent":          false,
		"scheduledTime": bson.M{"$lte": asOf.UTC()},
	}}}
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("reminders: find due: %w", err)
	}
	defer cursor.Close(ctx)

	var result []DueDocument
	for cursor.Next(ctx) {
		var raw mongoDocument
		if err := cursor.Decode(&raw); err != nil {
			s.logger.Error("reminder document decode failed; skipping", "error", err)
			continue
		}
		doc, err := raw.toDocument()
		if err != nil {
			s.logger.Error("reminder document has invalid ids; skipping", "error", err, "document_id", raw.ID)
			continue
		}
		appt, err := s.appointments.FindByID(ctx, doc.AppointmentID)
		if errors.Is(err, appointments.ErrNotFound) {
			s.logger.Warn("reminder document references missing appointment; skipping",
				"document_id", doc.ID, "appointment_id", doc.AppointmentID)
			continue
		}
		if err != nil {
			s.logger.Error("reminder appointment lookup failed; skipping",
				"error", err, "document_id", doc.ID, "appointment_id", doc.AppointmentID)
			continue
		}
		result = append(result, DueDocument{Document: *doc, Appointment: *appt})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("reminders: iterate due: %w", err)
	}
	return result, nil
}

func (s *MongoStore) MarkSent(ctx context.Context, documentID uuid.UUID, position int, sentAt time.Time) error {
	filter := bson.M{
		"_id":       documentID.String(),
		"reminders": bson.M{"$elemMatch": bson.M{"position": position, "sent": false}},
	}
	update := bson.M{"$set": bson.M{
		"reminders.$.sent":   true,
		"reminders.$.sentAt": sentAt.UTC(),
		"updatedAt":          time.Now().UTC(),
	}}
	if _, err := s.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteIfComplete(ctx context.Context, documentID uuid.UUID) (bool, error) {
	// $ne on an array field matches only when no element is unsent.
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": documentID.String(), "reminders.sent": bson.M{"$ne": false}})
	if err != nil {
		return false, fmt.Errorf("reminders: delete if complete: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"consultationId": appointmentID.String()}); err != nil {
		return fmt.Errorf("reminders: delete by appointment: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Document, error) {
	var raw mongoDocument
	err := s.coll.FindOne(ctx, bson.M{"consultationId": appointmentID.String()}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reminders: find by appointment: %w", err)
	}
	return raw.toDocument()
}

func (m mongoDocument) toDocument() (*Document, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("reminders: parse document id: %w", err)
	}
	apptID, err := uuid.Parse(m.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: parse appointment id: %w", err)
	}
	return &Document{
		ID:            id,
		AppointmentID: apptID,
		Records:       m.Reminders,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

var _ ReminderStore = (*MongoStore)(nil)
