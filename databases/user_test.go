package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/databases/mocks"
	"github.com/linesmerrill/agendajur-api/models"
)

func TestUserDatabase_FindOne(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelperErr := &mocks.SingleResultHelper{}
	srHelperCorrect := &mocks.SingleResultHelper{}

	srHelperErr.On("Decode", mock.Anything).Return(errors.New("mongo: no documents in result"))
	srHelperCorrect.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).Details.Email = "a@b.com"
	})

	collectionHelper.On("FindOne", context.Background(), bson.M{"user.email": "missing@b.com"}).Return(srHelperErr)
	collectionHelper.On("FindOne", context.Background(), bson.M{"user.email": "a@b.com"}).Return(srHelperCorrect)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	userDba := databases.NewUserDatabase(dbHelper)

	user, err := userDba.FindOne(context.Background(), bson.M{"user.email": "missing@b.com"})
	assert.Nil(t, user)
	assert.EqualError(t, err, "mongo: no documents in result")

	user, err = userDba.FindOne(context.Background(), bson.M{"user.email": "a@b.com"})
	assert.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Details.Email)
}

func TestUserDatabase_InsertOne(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	user := models.User{ID: "u1", Details: models.UserDetails{Email: "a@b.com", Role: models.RoleClient}}
	collectionHelper.On("InsertOne", context.Background(), user).Return(nil, errors.New("E11000 duplicate key"))
	dbHelper.On("Collection", "users").Return(collectionHelper)

	err := databases.NewUserDatabase(dbHelper).InsertOne(context.Background(), user)
	assert.EqualError(t, err, "E11000 duplicate key")
}

func TestLogDatabase_Find(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("All", context.Background(), mock.Anything).Return(errors.New("mocked-error"))
	cursor.On("Close", context.Background()).Return(nil)
	collectionHelper.On("Find", context.Background(), bson.M{}).Return(cursor, nil)
	dbHelper.On("Collection", "logs").Return(collectionHelper)

	entries, err := databases.NewLogDatabase(dbHelper).Find(context.Background(), bson.M{})
	assert.Nil(t, entries)
	assert.EqualError(t, err, "mocked-error")
}
