package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the OCR worker
 *
 * Every pipeline failure surfaces to callers as a RecognitionError carrying
 * one of two short machine-readable codes (ERR_IMAGE, ERR_OCR) plus a kind
 * that names the failing stage.
 */

// ErrorCode is the short code reported to consumers
type ErrorCode string

const (
	// CodeImage means the image could not be loaded
	CodeImage ErrorCode = "ERR_IMAGE"
	// CodeOCR means recognition failed, including unavailable models
	CodeOCR ErrorCode = "ERR_OCR"
)

// ErrorKind names the pipeline stage that failed
type ErrorKind string

const (
	// Image loading errors
	KindImageNotFound       ErrorKind = "IMAGE_NOT_FOUND"
	KindImageDownloadFailed ErrorKind = "IMAGE_DOWNLOAD_FAILED"
	KindImageDecodeFailed   ErrorKind = "IMAGE_DECODE_FAILED"

	// Recognition errors
	KindUnavailableModel  ErrorKind = "UNAVAILABLE_MODEL"
	KindRecognitionFailed ErrorKind = "RECOGNITION_FAILED"
	KindInternal          ErrorKind = "INTERNAL"
)

// RecognitionError represents a structured pipeline error
type RecognitionError struct {
	Kind      ErrorKind
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *RecognitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RecognitionError) Unwrap() error {
	return e.Cause
}

// Code maps the error kind onto the consumer-facing code
func (e *RecognitionError) Code() ErrorCode {
	switch e.Kind {
	case KindImageNotFound, KindImageDownloadFailed, KindImageDecodeFailed:
		return CodeImage
	default:
		return CodeOCR
	}
}

// Is matches another RecognitionError by kind, so sentinel values such as
// ErrUnavailableModel work with errors.Is.
func (e *RecognitionError) Is(target error) bool {
	t, ok := target.(*RecognitionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrImageNotFound       = &RecognitionError{Kind: KindImageNotFound}
	ErrImageDownloadFailed = &RecognitionError{Kind: KindImageDownloadFailed}
	ErrImageDecodeFailed   = &RecognitionError{Kind: KindImageDecodeFailed}
	ErrUnavailableModel    = &RecognitionError{Kind: KindUnavailableModel}
	ErrRecognitionFailed   = &RecognitionError{Kind: KindRecognitionFailed}
)

// Factory functions for common errors

func NewImageNotFoundError(uri string) *RecognitionError {
	return &RecognitionError{
		Kind:      KindImageNotFound,
		Message:   "Failed to load image",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_uri": uri,
		},
	}
}

func NewDownloadFailedError(uri string, cause error) *RecognitionError {
	return &RecognitionError{
		Kind:      KindImageDownloadFailed,
		Message:   "Failed to download image",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_uri": uri,
		},
		Cause: cause,
	}
}

func NewDecodeFailedError(uri string, cause error) *RecognitionError {
	return &RecognitionError{
		Kind:      KindImageDecodeFailed,
		Message:   "Failed to decode image",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_uri": uri,
		},
		Cause: cause,
	}
}

func NewUnavailableModelError(language string, cause error) *RecognitionError {
	return &RecognitionError{
		Kind:      KindUnavailableModel,
		Message:   fmt.Sprintf("%s model not available", language),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"language": language,
		},
		Cause: cause,
	}
}

func NewRecognitionFailedError(language string, cause error) *RecognitionError {
	msg := "OCR failed"
	if cause != nil && cause.Error() != "" {
		msg = cause.Error()
	}
	return &RecognitionError{
		Kind:      KindRecognitionFailed,
		Message:   msg,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"language": language,
		},
		Cause: cause,
	}
}

func NewInternalError(cause error) *RecognitionError {
	msg := "OCR failed"
	if cause != nil && cause.Error() != "" {
		msg = cause.Error()
	}
	return &RecognitionError{
		Kind:      KindInternal,
		Message:   msg,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the consumer-facing code for any error. Errors that did
// not originate in the pipeline are reported as ERR_OCR.
func CodeOf(err error) ErrorCode {
	var re *RecognitionError
	if stderrors.As(err, &re) {
		return re.Code()
	}
	return CodeOCR
}

// MessageOf returns the human-readable message for any error
func MessageOf(err error) string {
	var re *RecognitionError
	if stderrors.As(err, &re) {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ToMap converts error to map for database storage
func (e *RecognitionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code()),
		"error_kind": string(e.Kind),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
