package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"debtor-import/internal/config"
	"debtor-import/internal/db"
	"debtor-import/internal/excel"
	"debtor-import/internal/ingest"
	"debtor-import/internal/logger"
	"debtor-import/internal/model"
	"debtor-import/internal/publish"
	"debtor-import/internal/queue"
	"debtor-import/internal/storage"
	"debtor-import/pkg/errors"

	"github.com/rs/zerolog"
)

type ImportWorker struct {
	cfg        *config.Config
	repo       db.Repository
	storage    storage.Storage
	producer   queue.JobProducer
	publisher  publish.Publisher
	consumer   *queue.Consumer
	workerPool *WorkerPool
	now        func() time.Time
	log        zerolog.Logger
}

func NewImportWorker(
	cfg *config.Config,
	repo db.Repository,
	storage storage.Storage,
	consumer *queue.Consumer,
	producer queue.JobProducer,
	publisher publish.Publisher,
) *ImportWorker {
	return &ImportWorker{
		cfg:        cfg,
		repo:       repo,
		storage:    storage,
		producer:   producer,
		publisher:  publisher,
		consumer:   consumer,
		workerPool: NewWorkerPool(cfg.Workers.Import.Count),
		now:        time.Now,
		log:        logger.Get(),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	// Start worker pool
	w.workerPool.Start(ctx)

	// Start consuming messages
	return w.consumer.ConsumeImportQueue(ctx, w.handleMessage)
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal import job")
		return err
	}

	w.log.Info().Int64("file_id", job.FileID).Str("job_id", job.JobID).Msg("Processing import job")

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		return w.ProcessJob(ctx, job)
	})
}

// ProcessJob downloads, parses, maps and validates one uploaded file, stages
// every row with its outcome and publishes the accepted records.
func (w *ImportWorker) ProcessJob(ctx context.Context, job model.ImportJob) error {
	log := w.log.With().Int64("file_id", job.FileID).Str("job_id", job.JobID).Logger()

	if err := w.repo.UpdateFileStatus(ctx, job.FileID, model.FileStatusProcessing, nil); err != nil {
		log.Error().Err(err).Msg("Failed to mark file as processing")
		return err
	}

	tpl, err := w.repo.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		return w.fail(ctx, log, job, "Failed to load template", err)
	}

	strategy, err := ingest.SelectStrategy(job.Strategy, tpl)
	if err != nil {
		return w.fail(ctx, log, job, "Failed to select validation strategy", err)
	}

	parser, err := excel.StrategyFor(job.S3Path)
	if err != nil {
		return w.fail(ctx, log, job, "Unsupported file", err)
	}

	// Download file from S3
	log.Debug().Msg("Downloading file from S3")
	data, err := w.download(ctx, job.S3Path)
	if err != nil {
		if errors.IsRetryable(err) && job.Attempt+1 < w.cfg.Workers.Import.RetryAttempts {
			return w.retry(ctx, log, job, err)
		}
		return w.fail(ctx, log, job, "Failed to download file", err)
	}

	log.Debug().Msg("Parsing sheet")
	sheet, err := parser.Parse(ctx, data)
	if err != nil {
		return w.fail(ctx, log, job, "Failed to parse sheet", err)
	}

	sheet, err = excel.Align(sheet, tpl.Headers)
	if err != nil {
		return w.fail(ctx, log, job, "Sheet does not match template headers", err)
	}

	log.Debug().Int("row_count", len(sheet.Rows)).Str("strategy", strategy.Name()).Msg("Validating rows")
	result, err := ingest.Process(ctx, tpl, sheet, strategy, w.cfg.Workers.Import.RowWorkers)
	if err != nil {
		return w.fail(ctx, log, job, "Row processing aborted", err)
	}

	staged, err := result.StagedRows(job.FileID)
	if err != nil {
		return w.fail(ctx, log, job, "Failed to encode rows", err)
	}

	// Chunks commit separately; from here on a failure discards what was
	// staged so a FAILED file never keeps partial rows.
	log.Debug().Msg("Inserting rows into staging table")
	if err := w.insertInBatches(ctx, job.FileID, staged); err != nil {
		return w.failStaged(ctx, log, job, "Failed to insert rows", err)
	}

	if err := w.repo.UpdateFileCounts(ctx, job.FileID, len(staged), result.Accepted, result.Rejected); err != nil {
		return w.failStaged(ctx, log, job, "Failed to update row counts", err)
	}

	events := result.Events(job, strategy.Name(), w.now().UTC())
	if err := w.publisher.PublishAccepted(ctx, events); err != nil {
		return w.failStaged(ctx, log, job, "Failed to publish accepted records", err)
	}

	// Update file status to success
	if err := w.repo.UpdateFileStatus(ctx, job.FileID, model.FileStatusCompleted, nil); err != nil {
		log.Error().Err(err).Msg("Failed to update file status")
		return err
	}

	log.Info().
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Msg("File processed successfully")
	return nil
}

func (w *ImportWorker) download(ctx context.Context, key string) ([]byte, error) {
	reader, err := w.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.NewRetryableError(err, "failed to read file data")
	}
	return data, nil
}

func (w *ImportWorker) insertInBatches(ctx context.Context, fileID int64, rows []model.StagedRow) error {
	size := w.cfg.Workers.Import.BatchSize
	if size < 1 {
		size = len(rows)
	}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.repo.InsertRows(ctx, fileID, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *ImportWorker) retry(ctx context.Context, log zerolog.Logger, job model.ImportJob, cause error) error {
	job.Attempt++
	log.Warn().Err(cause).Int("attempt", job.Attempt).Msg("Transient failure, re-queueing import job")

	// Reset before enqueueing; the next attempt may start at once and mark
	// the file PROCESSING.
	if err := w.repo.UpdateFileStatus(ctx, job.FileID, model.FileStatusUploaded, nil); err != nil {
		return w.fail(ctx, log, job, "Failed to reset file status", err)
	}
	if err := w.producer.EnqueueImportJob(ctx, job); err != nil {
		return w.fail(ctx, log, job, "Failed to re-queue import job", err)
	}
	return nil
}

func (w *ImportWorker) failStaged(ctx context.Context, log zerolog.Logger, job model.ImportJob, msg string, cause error) error {
	if err := w.repo.DeleteRows(ctx, job.FileID); err != nil {
		log.Error().Err(err).Msg("Failed to discard staged rows")
	}
	return w.fail(ctx, log, job, msg, cause)
}

func (w *ImportWorker) fail(ctx context.Context, log zerolog.Logger, job model.ImportJob, msg string, cause error) error {
	log.Error().Err(cause).Msg(msg)
	errorMsg := fmt.Sprintf("%s: %v", msg, cause)
	if err := w.repo.UpdateFileStatus(ctx, job.FileID, model.FileStatusFailed, &errorMsg); err != nil {
		log.Error().Err(err).Msg("Failed to update file status")
	}
	return cause
}
