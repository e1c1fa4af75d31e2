package queue

import (
	"context"
	stderrors "errors"
	"time"

	"debtor-import/internal/config"
	"debtor-import/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const errorBackoff = time.Second

// MessageHandler processes one raw import job. A returned error sends the
// message to the dead letter queue.
type MessageHandler func(ctx context.Context, data []byte) error

// Consumer pops import jobs with BRPOP, so jobs pushed with LPUSH are
// handled first in, first out.
type Consumer struct {
	client      *redis.Client
	queue       string
	deadLetter  string
	pollTimeout time.Duration
	log         zerolog.Logger
}

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	queue := cfg.Redis.ImportQueue
	return &Consumer{
		client:      redisClient.Client(),
		queue:       queue,
		deadLetter:  DeadLetterName(queue, cfg.Redis.DLQSuffix),
		pollTimeout: cfg.Redis.PollTimeout,
		log:         logger.Get().With().Str("queue", queue).Logger(),
	}
}

// DeadLetterName is the list that receives jobs the handler rejected.
func DeadLetterName(queueName, suffix string) string {
	return queueName + suffix
}

// ConsumeImportQueue hands every import job to handler until ctx is done,
// then returns the context error.
func (c *Consumer) ConsumeImportQueue(ctx context.Context, handler MessageHandler) error {
	c.log.Info().Dur("poll_timeout", c.pollTimeout).Msg("Waiting for import jobs")

	for ctx.Err() == nil {
		message, ok := c.next(ctx)
		if !ok {
			continue
		}
		if err := handler(ctx, []byte(message)); err != nil {
			c.deadLetterJob(ctx, message, err)
		}
	}
	return ctx.Err()
}

// next waits up to the poll timeout for one job. ok is false on an idle
// poll or a transient Redis error.
func (c *Consumer) next(ctx context.Context) (string, bool) {
	result, err := c.client.BRPop(ctx, c.pollTimeout, c.queue).Result()
	switch {
	case stderrors.Is(err, redis.Nil):
		return "", false
	case err != nil:
		if ctx.Err() == nil {
			c.log.Error().Err(err).Msg("Failed to pop import job")
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
		}
		return "", false
	case len(result) < 2:
		// BRPOP replies with [queue, message]
		return "", false
	}
	return result[1], true
}

func (c *Consumer) deadLetterJob(ctx context.Context, message string, cause error) {
	c.log.Error().Err(cause).Str("dlq", c.deadLetter).Msg("Import job rejected, moving to dead letter queue")
	if err := c.client.LPush(ctx, c.deadLetter, message).Err(); err != nil {
		c.log.Error().Err(err).Str("dlq", c.deadLetter).Msg("Failed to dead-letter import job")
	}
}
