package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisStore{Client: client, Ctx: context.Background()}, mr
}

func TestMarkOnce(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := store.MarkOnce(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkOnce(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = store.MarkOnce(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishInvalidation(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	sub := store.SubscribeInvalidations(ctx)
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, store.PublishInvalidation(ctx, "Header"))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "Header", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not received")
	}
}

func TestNilRedisStore(t *testing.T) {
	var store *RedisStore
	_, err := store.MarkOnce(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrNilRedisStore)
	assert.ErrorIs(t, store.PublishInvalidation(context.Background(), "Header"), ErrNilRedisStore)
}
