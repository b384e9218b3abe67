package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Analysis Errors
// ============================================================================

var (
	ErrQueueFull            = errors.New("inference queue is full, try again later")
	ErrEmptyUpload          = errors.New("uploaded file is empty")
	ErrMissingUpload        = errors.New("image file is required (multipart field 'file')")
	ErrUnsupportedImageType = errors.New("unsupported image type, expected JPEG or PNG")
	ErrModelsNotLoaded      = errors.New("models are not loaded")
	ErrRemoteNotConfigured  = errors.New("remote compute is not configured")
	ErrBucketRequired       = errors.New("s3_bucket is required")
)

// ============================================================================
// History Errors
// ============================================================================

var (
	ErrHistoryNotAvailable = errors.New("analysis history is not available")
	ErrAnalysisNotFound    = errors.New("analysis not found")
	ErrAnalysisConflict    = errors.New("analysis with this ID already exists")
)

// ============================================================================
// Worker Errors
// ============================================================================

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotCancelled = errors.New("job already finished, nothing to cancel")
)

// ============================================================================
// Structured Errors
// ============================================================================

// ConfigurationError reports missing settings together with everything the
// loader looked at, so the operator can see exactly where a value was
// expected to come from.
type ConfigurationError struct {
	Reason    string
	Checked   []string
	Inspected []string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Reason)
	if len(e.Checked) > 0 {
		b.WriteString(": checked ")
		b.WriteString(strings.Join(e.Checked, ", "))
	}
	if len(e.Inspected) > 0 {
		b.WriteString("; inspected .env locations: ")
		b.WriteString(strings.Join(e.Inspected, ", "))
	}
	return b.String()
}

// MissingArtifactError names the first model artifact path that failed
// validation.
type MissingArtifactError struct {
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("required model artifact not found: %s", e.Path)
}

// PipelineStepError wraps a failed inference step with how long it ran.
type PipelineStepError struct {
	Step    string
	Elapsed time.Duration
	Err     error
}

func (e *PipelineStepError) Error() string {
	return fmt.Sprintf("%s failed after %.1fs: %v", e.Step, e.Elapsed.Seconds(), e.Err)
}

func (e *PipelineStepError) Unwrap() error { return e.Err }

// NoOutputError means every pipeline step reported success but nothing
// landed in the output directory.
type NoOutputError struct {
	OutputDir string
	CSVPath   string
	Runtime   string
}

func (e *NoOutputError) Error() string {
	msg := fmt.Sprintf("no output files produced in %s: expected at least a CSV file at %s", e.OutputDir, e.CSVPath)
	if e.Runtime != "" {
		msg += fmt.Sprintf(" (runner: %s)", e.Runtime)
	}
	return msg
}

// SubmissionError is a non-2xx answer from the remote compute provider.
type SubmissionError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("remote %s rejected: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// RemoteJobError carries the provider-side failure detail for a FAILED job.
type RemoteJobError struct {
	JobID   string
	Message string
}

func (e *RemoteJobError) Error() string {
	return fmt.Sprintf("remote job %s failed: %s", e.JobID, e.Message)
}

// JobTimeoutError means polling gave up before the job reached a terminal
// status. The job itself may still be running on the provider.
type JobTimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("remote job %s did not complete within %s", e.JobID, e.Elapsed.Round(time.Second))
}

// UploadError names the file and destination of the object-store write that
// broke a batch.
type UploadError struct {
	File   string
	Bucket string
	Key    string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s to bucket %s (key %s): %v", e.File, e.Bucket, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
