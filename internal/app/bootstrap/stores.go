package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wolfman30/consultation-reminders/internal/appointments"
	appconfig "github.com/wolfman30/consultation-reminders/internal/config"
	"github.com/wolfman30/consultation-reminders/internal/lifecycle"
	"github.com/wolfman30/consultation-reminders/internal/reminders"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

const reminderCollection = "reminder_documents"

// ReminderBackend is the reminder store selected by REMINDER_STORE.
type ReminderBackend struct {
	Store reminders.ReminderStore
	// Purger is set only when the store shares the appointments database, so
	// plan deletion can join the lifecycle transaction.
	Purger lifecycle.PlanPurger
	Kind   string
	close  func(ctx context.Context) error
}

// Close releases any client the backend owns.
func (b *ReminderBackend) Close(ctx context.Context) error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// BuildReminderStore returns the Postgres store by default, or the Mongo
// store when REMINDER_STORE=mongo. Appointments always live in Postgres.
func BuildReminderStore(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (*ReminderBackend, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.ReminderStore {
	case "", "postgres":
		store := reminders.NewStore(pool, logger)
		return &ReminderBackend{Store: store, Purger: store, Kind: "postgres"}, nil
	case "mongo":
		client, err := BuildMongoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		coll := client.Database(cfg.MongoDatabase).Collection(reminderCollection)
		store := reminders.NewMongoStore(coll, appointments.NewRepository(pool), logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("bootstrap: mongo indexes: %w", err)
		}
		logger.Info("reminder store using mongo", "database", cfg.MongoDatabase)
		return &ReminderBackend{Store: store, Kind: "mongo", close: client.Disconnect}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown REMINDER_STORE %q", cfg.ReminderStore)
	}
}

// BuildMongoClient connects and pings within ten seconds.
func BuildMongoClient(ctx context.Context, cfg *appconfig.Config) (*mongo.Client, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("bootstrap: MONGO_URI is required for the mongo reminder store")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("bootstrap: ping mongo: %w", err)
	}
	return client, nil
}
