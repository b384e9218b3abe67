package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/config"
	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

const (
	requestTimeout      = 30 * time.Second
	defaultPollTimeout  = 120 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Client talks to a RunPod serverless endpoint. Credentials may be absent at
// construction time; every operation re-checks them so callers get a
// ConfigurationError naming the missing variables instead of a 401.
type Client struct {
	baseURL      string
	endpointID   string
	apiKey       string
	pollTimeout  time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
}

var _ ports.RemoteComputeClient = (*Client)(nil)

func NewClient(cfg *config.RunPodConfig) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		endpointID:   cfg.EndpointID,
		apiKey:       cfg.APIKey,
		pollTimeout:  cfg.PollTimeout,
		pollInterval: cfg.PollInterval,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.endpointID != ""
}

func (c *Client) checkConfigured() error {
	var missing []string
	if c.apiKey == "" {
		missing = append(missing, "RUNPOD_API_KEY")
	}
	if c.endpointID == "" {
		missing = append(missing, "RUNPOD_ENDPOINT_ID")
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{
			Reason:  fmt.Sprintf("remote compute is not configured (missing %s)", strings.Join(missing, ", ")),
			Checked: []string{"RUNPOD_API_KEY", "RUNPOD_ENDPOINT_ID"},
		}
	}
	return nil
}

type submitRequest struct {
	Input domain.JobInput `json:"input"`
}

type jobResponse struct {
	ID     string           `json:"id"`
	Status domain.JobStatus `json:"status"`
	Output json.RawMessage  `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Submit enqueues an asynchronous run and returns the provider job id.
func (c *Client) Submit(ctx context.Context, input domain.JobInput) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}

	body, err := json.Marshal(submitRequest{Input: input})
	if err != nil {
		return "", fmt.Errorf("encode job input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL("run"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.SubmissionError{Op: "submit", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("submit response did not include a job id")
	}

	log.WithFields(log.Fields{
		"job_id": job.ID,
		"status": job.Status,
	}).Info("Remote job submitted")

	return job.ID, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL("status/"+jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch job status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.SubmissionError{Op: "status", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	return &domain.RemoteJob{
		ID:     job.ID,
		Status: job.Status,
		Output: job.Output,
		Error:  job.Error,
	}, nil
}

// Wait polls until the job reaches a terminal status or the poll timeout
// elapses. The sleep between polls is a select against ctx, so callers can
// abandon a wait immediately.
func (c *Client) Wait(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}

	timeout := c.pollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	interval := c.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)

	for {
		job, err := c.Status(ctx, jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			// Transient poll failures do not abort the wait.
			log.WithError(err).WithField("job_id", jobID).Warn("Job status poll failed")
		case job.Status == domain.JobStatusCompleted:
			log.WithFields(log.Fields{
				"job_id":  jobID,
				"elapsed": time.Since(start).Round(time.Millisecond).String(),
			}).Info("Remote job completed")
			return job, nil
		case job.Status == domain.JobStatusFailed:
			msg := job.Error
			if msg == "" {
				msg = "job reported FAILED without detail"
			}
			return nil, &domain.RemoteJobError{JobID: jobID, Message: msg}
		}

		if time.Now().After(deadline) {
			return nil, &domain.JobTimeoutError{JobID: jobID, Elapsed: time.Since(start)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Cancel asks the provider to stop a job. The provider treats cancellation of
// finished jobs as a no-op, so this is safe to call on any id.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if err := c.checkConfigured(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL("cancel/"+jobID), nil)
	if err != nil {
		return fmt.Errorf("create cancel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.SubmissionError{Op: "cancel", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	log.WithField("job_id", jobID).Info("Remote job cancelled")
	return nil
}

func (c *Client) endpointURL(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.endpointID, suffix)
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
