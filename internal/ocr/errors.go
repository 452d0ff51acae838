package ocr

import (
	"errors"
	"fmt"
)

// Common OCR errors.
var (
	// ErrOCRFailed is returned when the engine could not read an image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no Google Cloud credentials are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrEmptyImage is returned for zero-length image payloads.
	ErrEmptyImage = errors.New("empty image data")

	// ErrUnknownBackend is returned for an unsupported engine name.
	ErrUnknownBackend = errors.New("unknown OCR backend")

	// ErrEngineClosed is returned after the adapter was closed.
	ErrEngineClosed = errors.New("OCR engine closed")
)

// OCRError wraps errors with context about the failing operation.
type OCRError struct {
	// Op is the operation that failed (e.g. "Extract", "NewVisionEngine").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// NewOCRError creates a new OCRError.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{Op: op, Err: err, Details: details}
}

// WrapOCRError wraps err as an OCRError unless it already is one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}
