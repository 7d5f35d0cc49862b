package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"

	"github.com/linesmerrill/agendajur-api/databases/mocks"
	"github.com/linesmerrill/agendajur-api/logging"
	"github.com/linesmerrill/agendajur-api/models"
)

func TestMongoHearingsAdd(t *testing.T) {
	db := &mocks.HearingDatabase{}
	db.On("InsertOne", mock.Anything, mock.MatchedBy(func(h models.Hearing) bool {
		return h.ID != "" && h.Details.ProcessNumber == "001/2025" && h.Details.Attachments != nil
	})).Return(nil)

	m := NewMongoHearings(db, 0, nil)
	h, err := m.Add(context.Background(), details("001/2025", "a@b.com", "10/10/2025"))

	require.NoError(t, err)
	assert.Len(t, h.ID, 24)
	db.AssertExpectations(t)
}

func TestMongoHearingsAddFailure(t *testing.T) {
	db := &mocks.HearingDatabase{}
	db.On("InsertOne", mock.Anything, mock.Anything).Return(errors.New("mocked-error"))

	m := NewMongoHearings(db, 0, nil)
	_, err := m.Add(context.Background(), details("001/2025", "a@b.com", "10/10/2025"))

	assert.EqualError(t, err, "failed to insert hearing: mocked-error")
}

func TestMongoHearingsUpdateNotFound(t *testing.T) {
	db := &mocks.HearingDatabase{}
	db.On("UpdateOne", mock.Anything, bson.M{"_id": "h1"}, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)

	m := NewMongoHearings(db, 0, nil)
	err := m.Update(context.Background(), "h1", details("001/2025", "a@b.com", "10/10/2025"))

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoHearingsGet(t *testing.T) {
	db := &mocks.HearingDatabase{}
	db.On("FindOne", mock.Anything, bson.M{"_id": "missing"}).Return(nil, mongo.ErrNoDocuments)
	db.On("FindOne", mock.Anything, bson.M{"_id": "h1"}).Return(&models.Hearing{ID: "h1"}, nil)

	m := NewMongoHearings(db, 0, nil)

	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	h, err := m.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", h.ID)
	assert.Equal(t, []models.Attachment{}, h.Details.Attachments)
}

func TestMongoHearingsDeleteUnknownIsNoop(t *testing.T) {
	db := &mocks.HearingDatabase{}
	db.On("DeleteOne", mock.Anything, bson.M{"_id": "missing"}).Return(int64(0), nil)

	m := NewMongoHearings(db, 0, nil)
	assert.NoError(t, m.Delete(context.Background(), "missing"))
}

func TestMongoHearingsFindLowercasesClientFilter(t *testing.T) {
	db := &mocks.HearingDatabase{}
	db.On("Find", mock.Anything, bson.M{"hearing.clientEmail": "a@b.com"}).Return([]models.Hearing{
		{ID: "late", Details: models.HearingDetails{Date: "2025-12-01"}},
		{ID: "early", Details: models.HearingDetails{Date: "2025-10-01"}},
	}, nil)

	m := NewMongoHearings(db, 0, nil)
	hs, err := m.Find(context.Background(), HearingFilter{ClientEmail: "A@B.com"})

	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "early", hs[0].ID)
	assert.NotNil(t, hs[1].Details.Attachments)
}

func TestMongoHearingsSubscribeFallsBackToPolling(t *testing.T) {
	logger, logs := logging.NewObserved(zapcore.WarnLevel)
	db := &mocks.HearingDatabase{}
	db.On("Watch", mock.Anything, mock.Anything).Return(nil, errors.New("The $changeStream stage is only supported on replica sets"))

	db.On("Find", mock.Anything, bson.M{}).Return([]models.Hearing{{ID: "h1"}}, nil)

	m := NewMongoHearings(db, 10*time.Millisecond, logger)
	sub, err := m.Subscribe(context.Background(), HearingFilter{})
	require.NoError(t, err)

	snap := <-sub.C()
	assert.Equal(t, "h1", snap[0].ID)

	// a second snapshot can only come from the poller
	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatal("polling never refreshed the subscription")
	}
	sub.Cancel()

	assert.Equal(t, 1, logs.FilterMessage("change stream unavailable, falling back to polling").Len())
}

func TestMongoHearingsSubscribeFollowsChangeStream(t *testing.T) {
	db := &mocks.HearingDatabase{}
	cs := &mocks.ChangeStreamHelper{}
	events := make(chan struct{})
	cs.On("Next", mock.Anything).Return(true).Once().Run(func(mock.Arguments) { <-events })
	cs.On("Next", mock.Anything).Return(false)
	cs.On("Err").Return(nil)
	cs.On("Close", mock.Anything).Return(nil)
	db.On("Watch", mock.Anything, mock.Anything).Return(cs, nil)
	db.On("Find", mock.Anything, bson.M{}).Return([]models.Hearing{{ID: "h1"}}, nil)

	m := NewMongoHearings(db, 0, nil)
	sub, err := m.Subscribe(context.Background(), HearingFilter{})
	require.NoError(t, err)
	defer sub.Cancel()

	<-sub.C()
	close(events)

	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatal("change stream event did not refresh the subscription")
	}
}

func TestMongoLogsRecent(t *testing.T) {
	db := &mocks.LogDatabase{}
	db.On("Find", mock.Anything, bson.M{}, mock.Anything).Return([]models.LogEntry{{ID: "l1"}}, nil)

	m := NewMongoLogs(db, 0, nil)
	entries, err := m.Recent(context.Background(), RecentLogLimit)

	require.NoError(t, err)
	assert.Equal(t, []models.LogEntry{{ID: "l1"}}, entries)
}

func TestMongoLogsAddFillsDefaults(t *testing.T) {
	db := &mocks.LogDatabase{}
	db.On("InsertOne", mock.Anything, mock.MatchedBy(func(e models.LogEntry) bool {
		return e.ID != "" && !e.Timestamp.IsZero() && e.Type == models.LogTypeAuth
	})).Return(nil)

	m := NewMongoLogs(db, 0, nil)
	require.NoError(t, m.Add(context.Background(), models.LogEntry{Message: "X fez login", Type: models.LogTypeAuth}))
	db.AssertExpectations(t)
}
