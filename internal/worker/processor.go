package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
	"dental-inference-service/internal/core/services"
)

const downloadTimeout = 60 * time.Second

// Processor turns one job input into a WorkerOutput: fetch the image, run
// the pipeline, then either upload the artifacts or inline them.
type Processor struct {
	pipeline      *services.PipelineService
	store         ports.ObjectStore
	uploadDir     string
	resultsDir    string
	defaultBucket string
	httpClient    *http.Client
}

func NewProcessor(pipeline *services.PipelineService, store ports.ObjectStore, uploadDir, resultsDir, defaultBucket string) *Processor {
	return &Processor{
		pipeline:      pipeline,
		store:         store,
		uploadDir:     uploadDir,
		resultsDir:    resultsDir,
		defaultBucket: defaultBucket,
		httpClient:    &http.Client{Timeout: downloadTimeout},
	}
}

// Process runs the full analysis for input. With a bucket known the findings
// CSV lands at {prefix}findings.csv and debug images under {prefix}{stem}/;
// without one the CSV travels inline and debug images go base64.
func (p *Processor) Process(ctx context.Context, input domain.JobInput) (*domain.WorkerOutput, error) {
	if input.ImageURL == "" {
		return nil, errors.New("missing required field: image_url")
	}

	imagePath, err := p.download(ctx, input.ImageURL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(imagePath)

	img, err := domain.LoadSourceImage(imagePath)
	if err != nil {
		return nil, err
	}

	outputRoot := filepath.Join(p.resultsDir, uuid.New().String())
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	result, err := p.pipeline.Run(ctx, img, outputRoot, input.Debug)
	if err != nil {
		return nil, err
	}

	out := &domain.WorkerOutput{
		Findings:    result.Findings,
		NumFindings: len(result.Findings),
	}

	bucket := input.S3Bucket
	if bucket == "" {
		bucket = p.defaultBucket
	}
	if bucket == "" {
		return p.inlineOutput(out, result, img.Stem, input.Debug)
	}

	prefix := services.NormalizePrefix(input.S3Prefix)
	csvURL, err := p.store.UploadFile(ctx, result.CSVPath, bucket, prefix+"findings.csv")
	if err != nil {
		var confErr *domain.ConfigurationError
		if errors.As(err, &confErr) {
			// No credentials is not a job failure: the caller still gets
			// the findings, just nothing hosted.
			log.WithError(err).Warn("Storage credentials missing, skipping upload")
			out.Warning = "storage credentials not provided, results not uploaded"
			return out, nil
		}
		return nil, err
	}

	out.CSVURL = csvURL
	out.S3Bucket = bucket
	out.S3Prefix = prefix

	if input.Debug {
		images, err := p.uploadDebugImages(ctx, result.OutputDir, img.Stem, bucket, prefix)
		if err != nil {
			return nil, err
		}
		out.DebugImages = images
	}

	log.WithFields(log.Fields{"bucket": bucket, "prefix": prefix, "findings": out.NumFindings}).Info("Job artifacts uploaded")
	return out, nil
}

// inlineOutput packs the CSV, and with debug the imagery, into the output
// itself.
func (p *Processor) inlineOutput(out *domain.WorkerOutput, result *domain.AnalysisResult, stem string, debug bool) (*domain.WorkerOutput, error) {
	data, err := os.ReadFile(result.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("read findings csv: %w", err)
	}
	out.CSVData = string(data)

	if debug {
		images := map[string]string{}
		for _, file := range debugImageFiles(result.OutputDir, stem) {
			raw, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("read debug image: %w", err)
			}
			images[filepath.Base(file)] = base64.StdEncoding.EncodeToString(raw)
		}
		if len(images) > 0 {
			out.DebugImages = images
		}
	}
	return out, nil
}

func (p *Processor) uploadDebugImages(ctx context.Context, outputRoot, stem, bucket, prefix string) (map[string]string, error) {
	files := debugImageFiles(outputRoot, stem)
	if len(files) == 0 {
		return nil, nil
	}

	images := make(map[string]string, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		fileURL, err := p.store.UploadFile(ctx, file, bucket, prefix+stem+"/"+name)
		if err != nil {
			return nil, err
		}
		images[name] = fileURL
	}
	return images, nil
}

// debugImageFiles lists the imagery the pipeline left in the per-image
// directory.
func debugImageFiles(outputRoot, stem string) []string {
	entries, err := os.ReadDir(filepath.Join(outputRoot, stem))
	if err != nil {
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(outputRoot, stem, entry.Name()))
		}
	}
	return files
}

// download fetches rawURL into the upload directory and returns the local
// path. The file keeps the URL's extension so the image loader and output
// naming see a plausible name.
func (p *Processor) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(p.uploadDir, "download-*"+urlSuffix(rawURL))
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("save downloaded image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func urlSuffix(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".jpg"
}
