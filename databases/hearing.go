package databases

// go generate: mockery --name HearingDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/agendajur-api/models"
)

const hearingName = "hearings"

// HearingDatabase contains the methods to use with the hearing database
type HearingDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Hearing, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Hearing, error)
	InsertOne(ctx context.Context, hearing models.Hearing) error
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}) (int64, error)
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStreamHelper, error)
}

type hearingDatabase struct {
	db DatabaseHelper
}

// NewHearingDatabase initializes a new instance of hearing database with the provided db connection
func NewHearingDatabase(db DatabaseHelper) HearingDatabase {
	return &hearingDatabase{
		db: db,
	}
}

func (h *hearingDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Hearing, error) {
	hearing := &models.Hearing{}
	err := h.db.Collection(hearingName).FindOne(ctx, filter, opts...).Decode(&hearing)
	if err != nil {
		return nil, err
	}
	return hearing, nil
}

func (h *hearingDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Hearing, error) {
	var hearings []models.Hearing
	curr, err := h.db.Collection(hearingName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &hearings)
	if err != nil {
		return nil, err
	}
	return hearings, nil
}

func (h *hearingDatabase) InsertOne(ctx context.Context, hearing models.Hearing) error {
	_, err := h.db.Collection(hearingName).InsertOne(ctx, hearing)
	return err
}

func (h *hearingDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return h.db.Collection(hearingName).UpdateOne(ctx, filter, update, opts...)
}

func (h *hearingDatabase) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	return h.db.Collection(hearingName).DeleteOne(ctx, filter)
}

func (h *hearingDatabase) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStreamHelper, error) {
	return h.db.Collection(hearingName).Watch(ctx, pipeline, opts...)
}
