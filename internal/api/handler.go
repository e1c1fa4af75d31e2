package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"debtor-import/internal/config"
	"debtor-import/internal/db"
	"debtor-import/internal/excel"
	"debtor-import/internal/fieldtype"
	"debtor-import/internal/ingest"
	"debtor-import/internal/logger"
	"debtor-import/internal/mapping"
	"debtor-import/internal/model"
	"debtor-import/internal/queue"
	"debtor-import/internal/storage"
	"debtor-import/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// rejectedPreview bounds how many rejected lines a status response carries.
const rejectedPreview = 50

type Handler struct {
	repo     db.Repository
	storage  storage.Storage
	producer queue.JobProducer
	cfg      *config.Config
	now      func() time.Time
	log      zerolog.Logger
}

func NewHandler(
	repo db.Repository,
	storage storage.Storage,
	producer queue.JobProducer,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:     repo,
		storage:  storage,
		producer: producer,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.Get(),
	}
}

// UploadImport stores an uploaded sheet and queues it for the import worker.
func (h *Handler) UploadImport(c *gin.Context) {
	templateID, err := strconv.ParseInt(c.PostForm("template_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}
	if header.Size > h.cfg.Server.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds upload limit"})
		return
	}
	if _, err := excel.StrategyFor(header.Filename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tpl, err := h.repo.GetTemplate(ctx, templateID)
	if err != nil {
		h.templateError(c, templateID, err)
		return
	}

	strategyName := c.PostForm("strategy")
	strategy, err := ingest.SelectStrategy(strategyName, tpl)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	jobID := uuid.NewString()
	key := storage.ImportKey(h.cfg.Storage.S3.KeyPrefix, jobID, filepath.Base(header.Filename), h.now())
	contentType := header.Header.Get("Content-Type")
	if err := h.storage.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to upload file")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to store file"})
		return
	}

	file := &model.ImportFile{
		TemplateID:   templateID,
		S3Path:       key,
		OriginalName: header.Filename,
		Strategy:     strategy.Name(),
		Status:       model.FileStatusUploaded,
		UploadedBy:   c.PostForm("uploaded_by"),
	}
	fileID, err := h.repo.CreateFile(ctx, file)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to record file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	job := model.ImportJob{
		JobID:      jobID,
		FileID:     fileID,
		S3Path:     key,
		TemplateID: templateID,
		Strategy:   strategy.Name(),
	}
	if err := h.producer.EnqueueImportJob(ctx, job); err != nil {
		h.log.Error().Err(err).Int64("file_id", fileID).Msg("Failed to enqueue import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().
		Int64("file_id", fileID).
		Str("job_id", jobID).
		Str("strategy", job.Strategy).
		Msg("Import job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Import job queued successfully",
		"job":     job,
	})
}

func (h *Handler) GetImportStatus(c *gin.Context) {
	fileID, err := strconv.ParseInt(c.Param("file_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file ID"})
		return
	}

	status, err := h.repo.GetImportStatus(c.Request.Context(), fileID, rejectedPreview)
	if stderrors.Is(err, errors.ErrFileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("file_id", fileID).Msg("Failed to get import status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	tpl, ok := h.bindTemplate(c)
	if !ok {
		return
	}
	tpl.CreatedBy = c.GetHeader("X-User")

	id, err := h.repo.CreateTemplate(c.Request.Context(), tpl)
	if stderrors.Is(err, errors.ErrDuplicateTemplate) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("template", tpl.Name).Msg("Failed to create template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	tpl.ID = id

	h.log.Info().Int64("template_id", id).Str("template", tpl.Name).Msg("Template created")
	c.JSON(http.StatusCreated, tpl)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
		return
	}

	tpl, ok := h.bindTemplate(c)
	if !ok {
		return
	}
	tpl.ID = id
	tpl.UpdatedBy = c.GetHeader("X-User")

	err = h.repo.UpdateTemplate(c.Request.Context(), tpl)
	switch {
	case stderrors.Is(err, errors.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
	case stderrors.Is(err, errors.ErrDuplicateTemplate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.log.Error().Err(err).Int64("template_id", id).Msg("Failed to update template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	default:
		c.JSON(http.StatusOK, tpl)
	}
}

func (h *Handler) GetTemplate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
		return
	}

	tpl, err := h.repo.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.templateError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// Preview validates rows posted inline without storing anything.
func (h *Handler) Preview(c *gin.Context) {
	var req model.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Rows) > h.cfg.Server.PreviewRowLimit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("at most %d rows can be previewed", h.cfg.Server.PreviewRowLimit),
		})
		return
	}

	ctx := c.Request.Context()
	tpl, err := h.repo.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		h.templateError(c, req.TemplateID, err)
		return
	}

	strategy, err := ingest.SelectStrategy(req.Strategy, tpl)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows := make([]mapping.RawRow, len(req.Rows))
	for i, raw := range req.Rows {
		row, err := decodePreviewRow(tpl, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("row %d: %v", i, err)})
			return
		}
		rows[i] = row
	}

	result, err := ingest.Process(ctx, tpl, &excel.Sheet{Headers: tpl.Headers, Rows: rows}, strategy, h.cfg.Workers.Import.RowWorkers)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Preview aborted"})
		return
	}

	c.JSON(http.StatusOK, model.PreviewResponse{
		TemplateID: tpl.ID,
		Strategy:   strategy.Name(),
		Accepted:   result.Accepted,
		Rejected:   result.Rejected,
		Rows:       result.PreviewRows(),
	})
}

// queueStats is implemented by the Redis producer.
type queueStats interface {
	Pending(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	}

	if stats, ok := h.producer.(queueStats); ok {
		ctx := c.Request.Context()
		pending, err := stats.Pending(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to read import queue length")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "queue unavailable"})
			return
		}
		dead, err := stats.DeadLetterCount(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to read dead letter queue length")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "queue unavailable"})
			return
		}
		body["queue"] = gin.H{"pending": pending, "dead_letter": dead}
	}

	c.JSON(http.StatusOK, body)
}

// bindTemplate decodes and validates a template body, writing the error
// response itself when it fails.
func (h *Handler) bindTemplate(c *gin.Context) (*mapping.Template, bool) {
	var req model.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return nil, false
	}

	tpl := &mapping.Template{
		Name:    strings.TrimSpace(req.Name),
		Headers: req.Headers,
		Mapping: make([]mapping.MappingField, len(req.Mapping)),
	}
	for i, f := range req.Mapping {
		tpl.Mapping[i] = mapping.MappingField{
			Column: f.Column,
			Value:  strings.TrimSpace(f.Value),
			Type:   fieldtype.ParseTag(f.Type),
		}
	}

	if err := tpl.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return nil, false
	}
	return tpl, true
}

func (h *Handler) templateError(c *gin.Context, id int64, err error) {
	if stderrors.Is(err, errors.ErrTemplateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}
	h.log.Error().Err(err).Int64("template_id", id).Msg("Failed to load template")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// decodePreviewRow accepts either an array of cells in column order or an
// object keyed by sheet header.
func decodePreviewRow(tpl *mapping.Template, raw []byte) (mapping.RawRow, error) {
	if !gjson.ValidBytes(raw) {
		return nil, stderrors.New("invalid JSON")
	}
	parsed := gjson.ParseBytes(raw)
	switch {
	case parsed.IsArray():
		cells, _ := parsed.Value().([]any)
		return mapping.RowFromCells(cells), nil
	case parsed.IsObject():
		if len(tpl.Headers) == 0 {
			return nil, stderrors.New("template has no headers, send rows as arrays")
		}
		record, _ := parsed.Value().(map[string]any)
		return mapping.RowFromRecord(tpl.Headers, record), nil
	default:
		return nil, stderrors.New("row must be an array or an object")
	}
}
