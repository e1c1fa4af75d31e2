package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"debtor-import/internal/config"
	"debtor-import/internal/model"

	"github.com/go-redis/redis/v8"
)

// JobProducer is what the API and the retry path need from the queue.
type JobProducer interface {
	EnqueueImportJob(ctx context.Context, job model.ImportJob) error
}

// Producer pushes import jobs with LPUSH onto the list the consumer pops.
type Producer struct {
	client     *redis.Client
	queue      string
	deadLetter string
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client:     redisClient.Client(),
		queue:      cfg.Redis.ImportQueue,
		deadLetter: DeadLetterName(cfg.Redis.ImportQueue, cfg.Redis.DLQSuffix),
	}
}

func (p *Producer) EnqueueImportJob(ctx context.Context, job model.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("file %d: failed to encode import job: %w", job.FileID, err)
	}
	if err := p.client.LPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("file %d: failed to enqueue import job: %w", job.FileID, err)
	}
	return nil
}

// Pending reports how many import jobs wait in the queue.
func (p *Producer) Pending(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.queue).Result()
}

// DeadLetterCount reports how many import jobs were moved to the DLQ.
func (p *Producer) DeadLetterCount(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.deadLetter).Result()
}
