package model

import (
	"encoding/json"
	"time"
)

type RowStatus string

const (
	RowStatusAccepted RowStatus = "ACCEPTED"
	RowStatusRejected RowStatus = "REJECTED"
)

// StagedRow is the stored outcome of one sheet line. Accepted rows carry the
// record, rejected rows the validation report.
type StagedRow struct {
	ID         int64           `json:"id" db:"id"`
	FileID     int64           `json:"file_id" db:"file_id"`
	LineNumber int             `json:"line_number" db:"line_number"`
	Status     RowStatus       `json:"status" db:"status"`
	Record     json.RawMessage `json:"record,omitempty" db:"record"`
	Errors     json.RawMessage `json:"errors,omitempty" db:"errors"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
