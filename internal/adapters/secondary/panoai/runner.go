package panoai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/config"
	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// Runner talks to the pano-ai model process over HTTP. When a command line
// is configured it also spawns and supervises that process; otherwise it
// assumes the process is already listening at the configured URL.
type Runner struct {
	baseURL        string
	command        string
	startupTimeout time.Duration
	httpClient     *http.Client
	cmd            *exec.Cmd
}

var _ ports.ModelRunner = (*Runner)(nil)

func NewRunner(cfg *config.RunnerConfig) *Runner {
	return &Runner{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		command:        cfg.Command,
		startupTimeout: cfg.StartupTimeout,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Start spawns the runner process when a command is configured and waits for
// its health endpoint to come up. Without a command it only verifies the
// external process is reachable.
func (r *Runner) Start(ctx context.Context) error {
	if r.command != "" {
		parts := strings.Fields(r.command)
		cmd := exec.Command(parts[0], parts[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start runner process: %w", err)
		}
		r.cmd = cmd
		log.WithFields(log.Fields{
			"command": r.command,
			"pid":     cmd.Process.Pid,
		}).Info("Runner process started")
	}

	timeout := r.startupTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := r.Healthy(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("runner at %s not ready within %s", r.baseURL, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Close stops the spawned runner process, if any.
func (r *Runner) Close() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	if err := r.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill runner process: %w", err)
	}
	r.cmd.Wait()
	r.cmd = nil
	return nil
}

// Describe reports how the runner is reached, for error context.
func (r *Runner) Describe() string {
	if r.command != "" {
		return r.command
	}
	return r.baseURL
}

type loadPayload struct {
	SegmentationConfig  string `json:"segmentation_config"`
	SegmentationWeights string `json:"segmentation_weights"`
	DetectionConfig     string `json:"detection_config"`
	DetectionWeights    string `json:"detection_weights"`
	Debug               bool   `json:"debug"`
}

func (r *Runner) Load(ctx context.Context, req ports.LoadRequest) error {
	payload := loadPayload{
		SegmentationConfig:  req.Artifacts.SegmentationConfig,
		SegmentationWeights: req.Artifacts.SegmentationWeights,
		DetectionConfig:     req.Artifacts.DetectionConfig,
		DetectionWeights:    req.Artifacts.DetectionWeights,
		Debug:               req.Debug,
	}
	return r.postJSON(ctx, "/load", payload, nil)
}

func (r *Runner) Segment(ctx context.Context, req ports.StepRequest) (*ports.StepResult, error) {
	return r.postImage(ctx, "/segment", req)
}

func (r *Runner) Detect(ctx context.Context, req ports.StepRequest) (*ports.StepResult, error) {
	return r.postImage(ctx, "/detect", req)
}

func (r *Runner) ReleaseMemory(ctx context.Context) error {
	return r.postJSON(ctx, "/release-memory", struct{}{}, nil)
}

type postProcessPayload struct {
	SegmentationRef string `json:"segmentation_ref"`
	DetectionRef    string `json:"detection_ref"`
	OutputDir       string `json:"output_dir"`
}

type postProcessResponse struct {
	Findings []domain.FindingEntry `json:"findings"`
}

func (r *Runner) PostProcess(ctx context.Context, req ports.PostProcessRequest) ([]domain.FindingEntry, error) {
	payload := postProcessPayload{
		SegmentationRef: req.SegmentationRef,
		DetectionRef:    req.DetectionRef,
		OutputDir:       req.OutputDir,
	}
	var resp postProcessResponse
	if err := r.postJSON(ctx, "/postprocess", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Findings, nil
}

func (r *Runner) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runner unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// postImage sends the image as a multipart upload plus the output directory
// as a form field, and decodes the step result.
func (r *Runner) postImage(ctx context.Context, path string, req ports.StepRequest) (*ports.StepResult, error) {
	f, err := os.Open(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(req.ImagePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("output_dir", req.OutputDir); err != nil {
		return nil, fmt.Errorf("write output_dir field: %w", err)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, runnerError(path, resp)
	}

	var result ports.StepResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func (r *Runner) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return runnerError(path, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// runnerError surfaces the runner's own error detail when it sends one.
func runnerError(path string, resp *http.Response) error {
	var detail struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if json.Unmarshal(raw, &detail) == nil && detail.Error != "" {
		return fmt.Errorf("runner %s: %s", path, detail.Error)
	}
	return fmt.Errorf("runner %s failed with status: %d", path, resp.StatusCode)
}
