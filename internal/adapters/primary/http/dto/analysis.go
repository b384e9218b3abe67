package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"dental-inference-service/internal/core/domain"
)

type HealthResponse struct {
	Status          string `json:"status"`
	ModelsLoaded    bool   `json:"models_loaded"`
	ModelsAvailable bool   `json:"models_available"`
}

// LocalAnalysisResponse is the synchronous local-mode result.
type LocalAnalysisResponse struct {
	Status      string                `json:"status"`
	PatientName string                `json:"patient_name"`
	Findings    []domain.FindingEntry `json:"findings"`
	NumFindings int                   `json:"num_findings"`
	Files       map[string]string     `json:"files"`
	S3Bucket    string                `json:"s3_bucket"`
	S3Prefix    string                `json:"s3_prefix"`
}

func ToLocalAnalysisResponse(analysis *domain.LocalAnalysis) LocalAnalysisResponse {
	return LocalAnalysisResponse{
		Status:      "completed",
		PatientName: analysis.PatientName,
		Findings:    analysis.Findings,
		NumFindings: analysis.NumFindings,
		Files:       analysis.Files,
		S3Bucket:    analysis.S3Bucket,
		S3Prefix:    analysis.S3Prefix,
	}
}

// SubmittedResponse is the remote-mode fast path: the job is queued and the
// caller polls the status URL.
type SubmittedResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
	Message   string `json:"message"`
}

// RemoteResultResponse wraps the provider output verbatim.
type RemoteResultResponse struct {
	Status      string          `json:"status"`
	PatientName string          `json:"patient_name"`
	Result      json.RawMessage `json:"result"`
}

type JobStatusResponse struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func ToJobStatusResponse(job *domain.RemoteJob) JobStatusResponse {
	return JobStatusResponse{
		JobID:  job.ID,
		Status: string(job.Status),
		Output: job.Output,
		Error:  job.Error,
	}
}

type AnalysisRecordResponse struct {
	ID          uuid.UUID       `json:"id"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Mode        string          `json:"mode"`
	PatientName string          `json:"patient_name"`
	ImageName   string          `json:"image_name"`
	S3Bucket    string          `json:"s3_bucket"`
	S3Prefix    string          `json:"s3_prefix"`
	RemoteJobID string          `json:"remote_job_id,omitempty"`
	Status      string          `json:"status"`
	NumFindings int             `json:"num_findings"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func ToAnalysisRecordResponse(record *domain.AnalysisRecord) AnalysisRecordResponse {
	resp := AnalysisRecordResponse{
		ID:          record.ID,
		CreatedAt:   record.CreatedAt.Format(time.RFC3339),
		Mode:        string(record.Mode),
		PatientName: record.PatientName,
		ImageName:   record.ImageName,
		S3Bucket:    record.S3Bucket,
		S3Prefix:    record.S3Prefix,
		RemoteJobID: record.RemoteJobID,
		Status:      string(record.Status),
		NumFindings: record.NumFindings,
		Result:      record.Result,
		Error:       record.Error,
	}
	if record.CompletedAt != nil {
		resp.CompletedAt = record.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

type ListAnalysesResponse struct {
	Items      []AnalysisRecordResponse `json:"items"`
	Total      int                      `json:"total"`
	PageSize   int                      `json:"page_size"`
	NextOffset int                      `json:"next_offset"`
}
