package mongodb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestOnlyDuplicates(t *testing.T) {
	dup := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Code: duplicateKeyCode}},
			{WriteError: mongo.WriteError{Code: duplicateKeyCode}},
		},
	}
	assert.True(t, onlyDuplicates(dup))

	mixed := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Code: duplicateKeyCode}},
			{WriteError: mongo.WriteError{Code: 121}},
		},
	}
	assert.False(t, onlyDuplicates(mixed))

	assert.False(t, onlyDuplicates(mongo.BulkWriteException{}))
	assert.False(t, onlyDuplicates(mongo.BulkWriteException{
		WriteErrors:       dup.WriteErrors,
		WriteConcernError: &mongo.WriteConcernError{Code: 64},
	}))
	assert.False(t, onlyDuplicates(errors.New("network")))
}
