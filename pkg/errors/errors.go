package errors

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrInvalidFileFormat   = errors.New("invalid file format")
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrEmptySheet          = errors.New("sheet has no data rows")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrInvalidTemplate     = errors.New("invalid template")
	ErrDuplicateTemplate   = errors.New("template name already exists")
	ErrUnknownStrategy     = errors.New("unknown validation strategy")
	ErrRowValidationFailed = errors.New("row validation failed")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}
