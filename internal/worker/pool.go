package worker

import (
	"context"
	"fmt"
	"sync"

	"debtor-import/internal/logger"

	"github.com/rs/zerolog"
)

// Job is one unit of import work, usually a whole file.
type Job func(ctx context.Context) error

// WorkerPool bounds how many files are imported at once. Each slot runs one
// job at a time; a panicking job is logged and the slot keeps serving.
type WorkerPool struct {
	slots    int
	jobs     chan Job
	wg       sync.WaitGroup
	stopOnce sync.Once
	log      zerolog.Logger
}

func NewWorkerPool(slots int) *WorkerPool {
	if slots < 1 {
		slots = 1
	}
	return &WorkerPool{
		slots: slots,
		jobs:  make(chan Job, slots*2),
		log:   logger.Get().With().Str("component", "import_pool").Logger(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("slots", wp.slots).Msg("Starting import slots")

	for slot := 0; slot < wp.slots; slot++ {
		wp.wg.Add(1)
		go wp.serve(ctx, slot)
	}
}

// Stop waits for queued imports to drain. Submit must not be called afterwards.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobs)
		wp.wg.Wait()
		wp.log.Info().Msg("Import slots drained")
	})
}

// Submit blocks until a slot accepts the job or ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) serve(ctx context.Context, slot int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("slot", slot).Logger()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Import slot released on shutdown")
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := run(ctx, job); err != nil {
				log.Error().Err(err).Msg("Import job failed")
			}
		}
	}
}

func run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import job panicked: %v", r)
		}
	}()
	return job(ctx)
}
