package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AnalysisMode string

const (
	AnalysisModeLocal  AnalysisMode = "local"
	AnalysisModeRemote AnalysisMode = "remote"
)

type AnalysisStatus string

const (
	AnalysisStatusSubmitted AnalysisStatus = "submitted"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// AnalysisRecord is one row of analysis history.
type AnalysisRecord struct {
	ID          uuid.UUID       `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Mode        AnalysisMode    `json:"mode"`
	PatientName string          `json:"patient_name"`
	ImageName   string          `json:"image_name"`
	S3Bucket    string          `json:"s3_bucket"`
	S3Prefix    string          `json:"s3_prefix"`
	RemoteJobID string          `json:"remote_job_id,omitempty"`
	Status      AnalysisStatus  `json:"status"`
	NumFindings int             `json:"num_findings"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}
