package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/db"
)

// Subscribe evicts local entries for every slot announced on the Redis
// invalidation channel until ctx is done.
func (c *Cache) Subscribe(ctx context.Context, rs *db.RedisStore) error {
	if rs == nil || rs.Client == nil {
		return db.ErrNilRedisStore
	}
	pubsub := rs.SubscribeInvalidations(ctx)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.logger.Warn("failed to close invalidation subscription", zap.Error(err))
		}
	}()

	// Wait for the subscription to be confirmed so no message is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	c.logger.Info("listening for cache invalidations", zap.String("channel", db.InvalidationChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.EvictRemote(msg.Payload)
		}
	}
}
