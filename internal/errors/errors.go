package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the floor scan worker
 *
 * Design Pattern: Factory Pattern for error creation
 * Every pipeline stage returns (T, error) where error is a *PipelineError
 * carrying one of the codes below.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorSegmentationUnavailable ErrorCode = "SEGMENTATION_UNAVAILABLE"
	ErrorNoRegionsDetected       ErrorCode = "NO_REGIONS_DETECTED"
	ErrorExtractionLowConfidence ErrorCode = "EXTRACTION_LOW_CONFIDENCE"
	ErrorExtractionFailed        ErrorCode = "EXTRACTION_FAILED"
	ErrorNoCatalogMatch          ErrorCode = "NO_CATALOG_MATCH"
	ErrorVerificationMismatch    ErrorCode = "VERIFICATION_MISMATCH"

	// Recognizer errors
	ErrorMalformedResponse     ErrorCode = "MALFORMED_RECOGNIZER_RESPONSE"
	ErrorRecognizerUnavailable ErrorCode = "RECOGNIZER_UNAVAILABLE"
	ErrorRecognizerTimeout     ErrorCode = "RECOGNIZER_TIMEOUT"

	// Worker errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorInvalidJob        ErrorCode = "INVALID_JOB"
)

// PipelineError represents a structured pipeline error
type PipelineError struct {
	Code        ErrorCode
	Message     string
	JobID       string
	RegionIndex int
	Timestamp   time.Time
	Details     map[string]interface{}
	Cause       error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithRegion tags the error with the region it belongs to.
func (e *PipelineError) WithRegion(index int) *PipelineError {
	e.RegionIndex = index
	return e
}

// WithJob tags the error with the job it belongs to.
func (e *PipelineError) WithJob(jobID string) *PipelineError {
	e.JobID = jobID
	return e
}

func newError(code ErrorCode, msg string, cause error) *PipelineError {
	return &PipelineError{
		Code:        code,
		Message:     msg,
		RegionIndex: -1,
		Timestamp:   time.Now(),
		Details:     map[string]interface{}{},
		Cause:       cause,
	}
}

// Factory functions for common errors

func NewSegmentationUnavailableError(cause error) *PipelineError {
	return newError(ErrorSegmentationUnavailable, "Region detection unavailable", cause)
}

func NewNoRegionsDetectedError(width, height int) *PipelineError {
	err := newError(ErrorNoRegionsDetected, "No card regions detected in image", nil)
	err.Details["image_width"] = width
	err.Details["image_height"] = height
	return err
}

func NewExtractionLowConfidenceError(method string, confidence, threshold float64) *PipelineError {
	err := newError(ErrorExtractionLowConfidence,
		fmt.Sprintf("%s extraction confidence %.2f below %.2f", method, confidence, threshold), nil)
	err.Details["method"] = method
	err.Details["confidence"] = confidence
	err.Details["threshold"] = threshold
	return err
}

func NewExtractionFailedError(method string, reason string, cause error) *PipelineError {
	err := newError(ErrorExtractionFailed, fmt.Sprintf("%s extraction failed: %s", method, reason), cause)
	err.Details["method"] = method
	return err
}

func NewNoCatalogMatchError(name string) *PipelineError {
	err := newError(ErrorNoCatalogMatch, fmt.Sprintf("No catalog entry matches %q", name), nil)
	err.Details["extracted_name"] = name
	return err
}

func NewVerificationMismatchError(claimed, expected int64) *PipelineError {
	err := newError(ErrorVerificationMismatch,
		fmt.Sprintf("Claimed income %d disagrees with expected %d", claimed, expected), nil)
	err.Details["claimed"] = claimed
	err.Details["expected"] = expected
	return err
}

func NewMalformedResponseError(task string, cause error) *PipelineError {
	err := newError(ErrorMalformedResponse, fmt.Sprintf("Recognizer returned unparseable %s response", task), cause)
	err.Details["task"] = task
	return err
}

func NewRecognizerUnavailableError(task string, cause error) *PipelineError {
	err := newError(ErrorRecognizerUnavailable, fmt.Sprintf("Recognizer call failed for %s", task), cause)
	err.Details["task"] = task
	return err
}

func NewRecognizerTimeoutError(task string, timeout time.Duration, cause error) *PipelineError {
	err := newError(ErrorRecognizerTimeout, fmt.Sprintf("Recognizer %s call timed out after %v", task, timeout), cause)
	err.Details["task"] = task
	err.Details["timeout_duration"] = timeout.String()
	return err
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *PipelineError {
	err := newError(ErrorProcessingTimeout, fmt.Sprintf("Processing timed out after %v", duration), cause)
	err.JobID = jobID
	err.Details["timeout_duration"] = duration.String()
	return err
}

func NewStorageFailedError(jobID string, cause error) *PipelineError {
	err := newError(ErrorStorageFailed, "Failed to store scan results", cause)
	err.JobID = jobID
	return err
}

func NewInvalidJobError(jobID string, reason string) *PipelineError {
	err := newError(ErrorInvalidJob, fmt.Sprintf("Invalid scan job: %s", reason), nil)
	err.JobID = jobID
	return err
}

// ToMap converts error to map for database storage
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.RegionIndex >= 0 {
		result["region_index"] = e.RegionIndex
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// As extracts the *PipelineError from an error chain.
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the pipeline code of err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	if pe, ok := As(err); ok {
		return pe.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsFallbackable reports whether a failed extraction strategy should hand the
// region to the next strategy in the chain.
func IsFallbackable(err error) bool {
	switch CodeOf(err) {
	case ErrorExtractionLowConfidence,
		ErrorExtractionFailed,
		ErrorMalformedResponse,
		ErrorRecognizerUnavailable,
		ErrorRecognizerTimeout:
		return true
	}
	return false
}
