package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestOwnerFilter(t *testing.T) {
	filter := ownerFilter(5, nil)
	assert.Equal(t, bson.M{"owner_id": int64(5)}, filter)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	filter = ownerFilter(5, &Cursor{CreatedAt: at, ID: "abc"})
	assert.Equal(t, int64(5), filter["owner_id"])
	or, ok := filter["$or"].(bson.A)
	if assert.True(t, ok) {
		assert.Len(t, or, 2)
		assert.Equal(t, bson.M{"created_at": bson.M{"$lt": at}}, or[0])
		assert.Equal(t, bson.M{"created_at": at, "_id": bson.M{"$lt": "abc"}}, or[1])
	}
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, pageSize(0))
	assert.Equal(t, DefaultPageSize, pageSize(MaxPageSize+1))
	assert.Equal(t, 5, pageSize(5))
}
