package model

import (
	"encoding/json"
	"time"
)

type ImportJob struct {
	JobID      string `json:"job_id"`
	FileID     int64  `json:"file_id"`
	S3Path     string `json:"s3_path"`
	TemplateID int64  `json:"template_id"`
	Strategy   string `json:"strategy"`
	Attempt    int    `json:"attempt"`
}

type StatusResponse struct {
	FileID       int64             `json:"file_id"`
	Status       FileStatus        `json:"status"`
	TotalRows    int               `json:"total_rows"`
	AcceptedRows int               `json:"accepted_rows"`
	RejectedRows int               `json:"rejected_rows"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Rejected     []RejectedRowView `json:"rejected,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type RejectedRowView struct {
	LineNumber int               `json:"line_number"`
	Errors     map[string]string `json:"errors"`
}

type TemplateRequest struct {
	Name    string          `json:"name" binding:"required,max=255"`
	Headers []string        `json:"headers"`
	Mapping []TemplateField `json:"mapping" binding:"required,min=1,dive"`
}

type TemplateField struct {
	Column int    `json:"column" binding:"gte=0"`
	Value  string `json:"value" binding:"required"`
	Type   string `json:"type"`
}

// PreviewRequest carries rows either as cell arrays in column order or as
// objects keyed by header.
type PreviewRequest struct {
	TemplateID int64             `json:"template_id" binding:"required"`
	Strategy   string            `json:"strategy"`
	Rows       []json.RawMessage `json:"rows" binding:"required,min=1"`
}

type PreviewRow struct {
	LineNumber int               `json:"line_number"`
	Accepted   bool              `json:"accepted"`
	Record     map[string]any    `json:"record,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

type PreviewResponse struct {
	TemplateID int64        `json:"template_id"`
	Strategy   string       `json:"strategy"`
	Accepted   int          `json:"accepted"`
	Rejected   int          `json:"rejected"`
	Rows       []PreviewRow `json:"rows"`
}

// AcceptedRecordEvent is published for every accepted row.
type AcceptedRecordEvent struct {
	FileID     int64          `json:"file_id"`
	TemplateID int64          `json:"template_id"`
	LineNumber int            `json:"line_number"`
	Strategy   string         `json:"strategy"`
	Record     map[string]any `json:"record"`
	AcceptedAt time.Time      `json:"accepted_at"`
}
