package domain

import "encoding/json"

type JobStatus string

const (
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobInput is the payload carried under "input" in a job submission: the
// image to fetch plus where results should land.
type JobInput struct {
	ImageURL string `json:"image_url"`
	S3Bucket string `json:"s3_bucket"`
	S3Prefix string `json:"s3_prefix"`
	Debug    bool   `json:"debug"`
}

// RemoteJob is a point-in-time snapshot of a provider-side job. Output is
// kept raw so completed results pass through to clients untouched.
type RemoteJob struct {
	ID     string          `json:"id"`
	Status JobStatus       `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WorkerOutput is the JSON a worker attaches to a COMPLETED job. With object
// storage configured the artifacts are uploaded and referenced by URL;
// without it the CSV travels inline and debug images go base64.
type WorkerOutput struct {
	Findings    []FindingEntry    `json:"findings"`
	NumFindings int               `json:"num_findings"`
	CSVURL      string            `json:"csv_url,omitempty"`
	CSVData     string            `json:"csv_data,omitempty"`
	DebugImages map[string]string `json:"debug_images,omitempty"`
	S3Bucket    string            `json:"s3_bucket,omitempty"`
	S3Prefix    string            `json:"s3_prefix,omitempty"`
	Warning     string            `json:"warning,omitempty"`
}
