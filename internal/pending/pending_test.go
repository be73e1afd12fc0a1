package pending

import (
	"context"
	"testing"
	"time"

	"licensedesk/pkg/model"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func action() Action {
	return Action{Type: ActionArbitrate, Kind: model.KindVoucher, SlotID: "665f1c2e8a1b2c3d4e5f6a7b"}
}

func TestRedisQueue_TakeOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, time.Minute)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, action())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, mr.Exists(keyPrefix+id))

	got, err := q.Take(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, model.KindVoucher, got.Kind)

	_, err = q.Take(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisQueue_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, time.Minute)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, action())
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = q.Take(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute).(*memoryQueue)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, err := q.Enqueue(ctx, action())
	require.NoError(t, err)

	got, err := q.Take(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ActionArbitrate, got.Type)

	_, err = q.Take(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	id, err = q.Enqueue(ctx, action())
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, err = q.Take(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
