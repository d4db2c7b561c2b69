package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsSize(t *testing.T) {
	assert.Equal(t, DefaultLimit, Params{}.Size())
	assert.Equal(t, MaxLimit, Params{Limit: 1000}.Size())
	assert.Equal(t, 10, Params{Limit: 10}.Size())
	assert.Equal(t, 11, Params{Limit: 10}.Fetch())
}

func TestCursorDecodesWhatItEncodes(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 4, 10, 30, 0, 123, time.UTC), ID: uuid.New()}

	got, err := Params{Cursor: want.String()}.After()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c, err := Decode("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, value := range []string{"%%%", "Zm9v", "eC4x"} {
		_, err := Decode(value)
		assert.ErrorIs(t, err, ErrInvalidCursor, value)
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{uuid.New(), base.Add(3 * time.Minute)}, {uuid.New(), base.Add(2 * time.Minute)}, {uuid.New(), base.Add(time.Minute)}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, Params{Limit: 2}, key)
	assert.Len(t, page, 2)
	assert.Equal(t, key(rows[1]).String(), next)

	page, next = Trim(rows[:2], Params{Limit: 2}, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
