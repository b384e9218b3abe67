// Package apiclient is a thin HTTP client for the analysis service API,
// shared by panoctl and anything else that talks to the service from Go.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Minute

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the service at baseURL. The generous timeout
// covers worker-blocked remote analyses.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// AnalyzeOptions mirror the analyze endpoint's query parameters.
type AnalyzeOptions struct {
	Mode    string
	Bucket  string
	Prefix  string
	Patient string
	Debug   bool
	Wait    bool
}

// Analyze uploads the image at imagePath and returns the service's response
// as raw JSON.
func (c *Client) Analyze(ctx context.Context, imagePath string, opts AnalyzeOptions) (json.RawMessage, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if opts.Mode != "" {
		q.Set("mode", opts.Mode)
	}
	if opts.Bucket != "" {
		q.Set("s3_bucket", opts.Bucket)
	}
	if opts.Prefix != "" {
		q.Set("s3_prefix", opts.Prefix)
	}
	if opts.Patient != "" {
		q.Set("patient_name", opts.Patient)
	}
	if opts.Debug {
		q.Set("debug", "true")
	}
	if opts.Wait {
		q.Set("wait_for_result", "true")
	}

	endpoint := c.baseURL + "/analyze-ortopan"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/job-status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) CancelJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/job-cancel/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.RawMessage(data), nil
}
