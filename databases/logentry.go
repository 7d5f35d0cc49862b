package databases

// go generate: mockery --name LogDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/agendajur-api/models"
)

const logName = "logs"

// LogDatabase contains the methods to use with the audit log database
type LogDatabase interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.LogEntry, error)
	InsertOne(ctx context.Context, entry models.LogEntry) error
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStreamHelper, error)
}

type logDatabase struct {
	db DatabaseHelper
}

// NewLogDatabase initializes a new instance of log database with the provided db connection
func NewLogDatabase(db DatabaseHelper) LogDatabase {
	return &logDatabase{
		db: db,
	}
}

func (l *logDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	curr, err := l.db.Collection(logName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &entries)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *logDatabase) InsertOne(ctx context.Context, entry models.LogEntry) error {
	_, err := l.db.Collection(logName).InsertOne(ctx, entry)
	return err
}

func (l *logDatabase) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStreamHelper, error) {
	return l.db.Collection(logName).Watch(ctx, pipeline, opts...)
}
