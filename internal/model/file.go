package model

import "time"

type FileStatus string

const (
	FileStatusUploaded   FileStatus = "UPLOADED"
	FileStatusProcessing FileStatus = "PROCESSING"
	FileStatusCompleted  FileStatus = "COMPLETED"
	FileStatusFailed     FileStatus = "FAILED"
)

// ImportFile is one uploaded spreadsheet and its processing state.
type ImportFile struct {
	ID           int64      `json:"id" db:"id"`
	TemplateID   int64      `json:"template_id" db:"template_id"`
	S3Path       string     `json:"s3_path" db:"s3_path"`
	OriginalName string     `json:"original_name" db:"original_name"`
	Strategy     string     `json:"strategy" db:"strategy"`
	Status       FileStatus `json:"status" db:"status"`
	TotalRows    int        `json:"total_rows" db:"total_rows"`
	AcceptedRows int        `json:"accepted_rows" db:"accepted_rows"`
	RejectedRows int        `json:"rejected_rows" db:"rejected_rows"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	UploadedBy   string     `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
