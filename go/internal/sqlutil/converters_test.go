package sqlutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNullableConverters(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, &id, FromNullUUID(ToNullUUID(&id)))
	assert.Nil(t, FromNullUUID(ToNullUUID(nil)))

	now := time.Now()
	assert.Equal(t, &now, FromSqlTime(ToSqlTime(&now)))
	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))

	var points int64 = 800_000
	assert.Equal(t, &points, FromSqlInt64(ToSqlInt64(&points)))
	assert.Nil(t, FromSqlInt64(ToSqlInt64(nil)))
}
