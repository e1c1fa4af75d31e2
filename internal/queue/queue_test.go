package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtor-import/internal/config"
	"debtor-import/internal/model"
	"debtor-import/internal/queue"
)

func setup(t *testing.T) (*miniredis.Miniredis, *queue.RedisClient, *config.Config) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg, err := config.Parse([]byte("redis:\n  import_queue: imports\n  poll_timeout: 1s\n"))
	require.NoError(t, err)

	rc := queue.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(context.Background()))
	return mr, rc, cfg
}

func TestDeadLetterName(t *testing.T) {
	assert.Equal(t, "debtor_import:dlq", queue.DeadLetterName("debtor_import", ":dlq"))
}

func TestProducer_EnqueueImportJob(t *testing.T) {
	mr, rc, cfg := setup(t)
	producer := queue.NewProducer(rc, cfg)
	ctx := context.Background()

	require.NoError(t, producer.EnqueueImportJob(ctx, model.ImportJob{JobID: "j1", FileID: 1}))
	require.NoError(t, producer.EnqueueImportJob(ctx, model.ImportJob{JobID: "j2", FileID: 2, Attempt: 1}))

	list, err := mr.List("imports")
	require.NoError(t, err)
	require.Len(t, list, 2)

	// LPUSH puts the newest job at the head
	var job model.ImportJob
	require.NoError(t, json.Unmarshal([]byte(list[0]), &job))
	assert.Equal(t, "j2", job.JobID)
	assert.Equal(t, 1, job.Attempt)

	pending, err := producer.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestProducer_EnqueueFailsWhenRedisIsDown(t *testing.T) {
	mr, rc, cfg := setup(t)
	producer := queue.NewProducer(rc, cfg)
	mr.Close()

	err := producer.EnqueueImportJob(context.Background(), model.ImportJob{FileID: 3})
	assert.ErrorContains(t, err, "file 3: failed to enqueue import job")
}

func TestConsumer_DeliversInOrderAndDeadLettersFailures(t *testing.T) {
	mr, rc, cfg := setup(t)
	producer := queue.NewProducer(rc, cfg)
	consumer := queue.NewConsumer(rc, cfg)

	for _, msg := range []string{"first", "bad", "last"} {
		mr.Lpush("imports", msg)
	}

	var (
		mu  sync.Mutex
		got []string
	)
	handler := func(_ context.Context, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(data))
		if string(data) == "bad" {
			return errors.New("malformed job")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.ConsumeImportQueue(ctx, handler) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}

	assert.Equal(t, []string{"first", "bad", "last"}, got)

	dlq, err := mr.List("imports:dlq")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, dlq)

	dead, err := producer.DeadLetterCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
	assert.False(t, mr.Exists("imports"))
}

func TestConsumer_ReturnsWhenContextAlreadyDone(t *testing.T) {
	mr, rc, cfg := setup(t)
	mr.Lpush("imports", "job")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := queue.NewConsumer(rc, cfg).ConsumeImportQueue(ctx, func(context.Context, []byte) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	list, err := mr.List("imports")
	require.NoError(t, err)
	assert.Equal(t, []string{"job"}, list)
}
