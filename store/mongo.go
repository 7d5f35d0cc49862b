package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/feed"
	"github.com/linesmerrill/agendajur-api/models"
)

// MongoHearings keeps hearings in the mongo hearings collection
type MongoHearings struct {
	DB           databases.HearingDatabase
	PollInterval time.Duration
	Logger       *zap.SugaredLogger

	changes *feed.Notifier
}

// NewMongoHearings wraps a hearing database
func NewMongoHearings(db databases.HearingDatabase, pollInterval time.Duration, logger *zap.SugaredLogger) *MongoHearings {
	if logger == nil {
		logger = zap.S()
	}
	return &MongoHearings{DB: db, PollInterval: pollInterval, Logger: logger, changes: feed.NewNotifier()}
}

// Add inserts a hearing under a fresh ObjectID
func (m *MongoHearings) Add(ctx context.Context, details models.HearingDetails) (models.Hearing, error) {
	h := models.Hearing{ID: primitive.NewObjectID().Hex(), Details: details}
	if h.Details.Attachments == nil {
		h.Details.Attachments = []models.Attachment{}
	}
	if err := m.DB.InsertOne(ctx, h); err != nil {
		return models.Hearing{}, fmt.Errorf("failed to insert hearing: %w", err)
	}
	m.changes.Notify()
	return h, nil
}

// Update replaces the details of an existing hearing
func (m *MongoHearings) Update(ctx context.Context, id string, details models.HearingDetails) error {
	if details.Attachments == nil {
		details.Attachments = []models.Attachment{}
	}
	res, err := m.DB.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"hearing": details},
		"$inc": bson.M{"__v": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to update hearing: %w", err)
	}
	if res != nil && res.MatchedCount == 0 {
		return ErrNotFound
	}
	m.changes.Notify()
	return nil
}

// Delete removes a hearing. Deleting an unknown id is not an error.
func (m *MongoHearings) Delete(ctx context.Context, id string) error {
	deleted, err := m.DB.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete hearing: %w", err)
	}
	if deleted > 0 {
		m.changes.Notify()
	}
	return nil
}

// Get returns one hearing by id
func (m *MongoHearings) Get(ctx context.Context, id string) (*models.Hearing, error) {
	h, err := m.DB.FindOne(ctx, bson.M{"_id": id})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hearing: %w", err)
	}
	if h.Details.Attachments == nil {
		h.Details.Attachments = []models.Attachment{}
	}
	return h, nil
}

// Find returns the hearings matching f sorted ascending by date. Client
// emails are stored lower-cased so the equality filter is case-insensitive.
func (m *MongoHearings) Find(ctx context.Context, f HearingFilter) ([]models.Hearing, error) {
	filter := bson.M{}
	if f.ClientEmail != "" {
		filter["hearing.clientEmail"] = strings.ToLower(f.ClientEmail)
	}
	hearings, err := m.DB.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find hearings: %w", err)
	}
	if hearings == nil {
		hearings = []models.Hearing{}
	}
	for i := range hearings {
		if hearings[i].Details.Attachments == nil {
			hearings[i].Details.Attachments = []models.Attachment{}
		}
	}
	models.SortHearings(hearings)
	return hearings, nil
}

// Subscribe streams the hearings matching f, refreshing on every change
// stream event and on writes made through this store
func (m *MongoHearings) Subscribe(ctx context.Context, f HearingFilter) (*feed.Subscription[models.Hearing], error) {
	ctx, cancel := context.WithCancel(ctx)
	triggers := watchTriggers(ctx, m.DB.Watch, m.changes, m.PollInterval, m.Logger.With("collection", "hearings"))
	sub := feed.Start(ctx, func(ctx context.Context) ([]models.Hearing, error) {
		return m.Find(ctx, f)
	}, triggers, m.Logger)
	go func() {
		<-sub.Done()
		cancel()
	}()
	return sub, nil
}

// MongoLogs keeps the audit log in the mongo logs collection
type MongoLogs struct {
	DB           databases.LogDatabase
	PollInterval time.Duration
	Logger       *zap.SugaredLogger

	changes *feed.Notifier
}

// NewMongoLogs wraps a log database
func NewMongoLogs(db databases.LogDatabase, pollInterval time.Duration, logger *zap.SugaredLogger) *MongoLogs {
	if logger == nil {
		logger = zap.S()
	}
	return &MongoLogs{DB: db, PollInterval: pollInterval, Logger: logger, changes: feed.NewNotifier()}
}

// Add inserts an audit entry, filling in id and timestamp when missing
func (m *MongoLogs) Add(ctx context.Context, entry models.LogEntry) error {
	if entry.ID == "" {
		entry.ID = primitive.NewObjectID().Hex()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := m.DB.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	m.changes.Notify()
	return nil
}

// Recent returns at most limit entries, newest first
func (m *MongoLogs) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	entries, err := m.DB.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find log entries: %w", err)
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	return entries, nil
}

// Subscribe streams the most recent limit entries
func (m *MongoLogs) Subscribe(ctx context.Context, limit int) (*feed.Subscription[models.LogEntry], error) {
	ctx, cancel := context.WithCancel(ctx)
	triggers := watchTriggers(ctx, m.DB.Watch, m.changes, m.PollInterval, m.Logger.With("collection", "logs"))
	sub := feed.Start(ctx, func(ctx context.Context) ([]models.LogEntry, error) {
		return m.Recent(ctx, limit)
	}, triggers, m.Logger)
	go func() {
		<-sub.Done()
		cancel()
	}()
	return sub, nil
}

type watchFunc func(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (databases.ChangeStreamHelper, error)

// watchTriggers merges local write notifications with a mongo change stream
// into one trigger channel. When the change stream cannot be opened (no
// replica set) or breaks, it falls back to polling every pollInterval.
// Everything stops when ctx is done.
func watchTriggers(ctx context.Context, watch watchFunc, local *feed.Notifier, pollInterval time.Duration, logger *zap.SugaredLogger) <-chan struct{} {
	out := make(chan struct{}, 1)
	signal := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	localC, stop := local.Listen()
	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-localC:
				signal()
			}
		}
	}()

	go func() {
		cs, err := watch(ctx, mongo.Pipeline{})
		if err == nil {
			for cs.Next(ctx) {
				signal()
			}
			err = cs.Err()
			_ = cs.Close(context.Background())
		}
		if ctx.Err() != nil {
			return
		}
		if pollInterval <= 0 {
			logger.Warnw("change stream unavailable and polling disabled, relying on local writes", "error", err)
			return
		}
		logger.Warnw("change stream unavailable, falling back to polling", "error", err, "interval", pollInterval)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				signal()
			}
		}
	}()

	return out
}
