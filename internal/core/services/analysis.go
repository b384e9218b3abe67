package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// NormalizePrefix canonicalizes a client-supplied storage prefix:
// surrounding whitespace is trimmed, whitespace around separators and
// repeated separators collapse, a leading separator is stripped, and a
// non-empty result ends in exactly one "/". Empty input stays empty.
// Normalization is idempotent.
func NormalizePrefix(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var segments []string
	for _, part := range strings.Split(s, "/") {
		part = strings.TrimSpace(part)
		if part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) == 0 {
		return ""
	}
	return strings.Join(segments, "/") + "/"
}

// AnalyzeRequest carries everything the handlers extracted from an incoming
// analysis call. ImagePath points at the already-saved upload.
type AnalyzeRequest struct {
	ImagePath   string
	ImageName   string
	PatientName string
	S3Bucket    string
	S3Prefix    string
	Debug       bool
}

// SubmittedJob is the fast-path answer for remote analyses: the caller gets
// a handle immediately and polls for the outcome.
type SubmittedJob struct {
	JobID     string
	StatusURL string
}

// AnalysisService is the request orchestrator: it routes an analysis to the
// local pipeline or the remote provider and turns outputs into client-facing
// URLs.
type AnalysisService struct {
	lifecycle *LifecycleManager
	pipeline  *PipelineService
	remote    ports.RemoteComputeClient
	store     ports.ObjectStore
	history   ports.AnalysisRepository
	cache     ports.ResultCache
	pool      *Pool

	resultsDir string
}

// NewAnalysisService wires the orchestrator. history and cache may be nil
// when those subsystems are not configured.
func NewAnalysisService(lifecycle *LifecycleManager, pipeline *PipelineService, remote ports.RemoteComputeClient, store ports.ObjectStore, history ports.AnalysisRepository, cache ports.ResultCache, pool *Pool, resultsDir string) *AnalysisService {
	return &AnalysisService{
		lifecycle:  lifecycle,
		pipeline:   pipeline,
		remote:     remote,
		store:      store,
		history:    history,
		cache:      cache,
		pool:       pool,
		resultsDir: resultsDir,
	}
}

// DefaultMode picks remote execution whenever the provider is configured.
func (s *AnalysisService) DefaultMode() domain.AnalysisMode {
	if s.remote != nil && s.remote.Configured() {
		return domain.AnalysisModeRemote
	}
	return domain.AnalysisModeLocal
}

// AnalyzeLocal runs the pipeline on this machine and uploads everything it
// produced. Response file keys are paths relative to the run's output root.
func (s *AnalysisService) AnalyzeLocal(ctx context.Context, req AnalyzeRequest) (*domain.LocalAnalysis, error) {
	if req.S3Bucket == "" {
		return nil, domain.ErrBucketRequired
	}
	prefix := NormalizePrefix(req.S3Prefix)

	img, err := domain.LoadSourceImage(req.ImagePath)
	if err != nil {
		return nil, err
	}

	cacheKey := ""
	if s.cache != nil {
		cacheKey, err = analysisCacheKey(req.ImagePath, req.Debug, req.S3Bucket, prefix)
		if err != nil {
			log.WithError(err).Warn("Failed to fingerprint upload for caching")
		} else if cached, cacheErr := s.cache.Get(ctx, cacheKey); cacheErr != nil {
			log.WithError(cacheErr).Warn("Result cache lookup failed")
		} else if cached != nil {
			log.WithField("image", img.Stem).Info("Result cache hit")
			return cached, nil
		}
	}

	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	outputRoot := filepath.Join(s.resultsDir, uuid.New().String())
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	result, err := s.pipeline.Run(ctx, img, outputRoot, req.Debug)
	if err != nil {
		s.recordFailure(ctx, req, domain.AnalysisModeLocal, prefix, "", err)
		return nil, err
	}

	files, err := s.store.UploadTree(ctx, outputRoot, req.S3Bucket, prefix)
	if err != nil {
		s.recordFailure(ctx, req, domain.AnalysisModeLocal, prefix, "", err)
		return nil, err
	}

	analysis := &domain.LocalAnalysis{
		PatientName: req.PatientName,
		Findings:    result.Findings,
		NumFindings: len(result.Findings),
		Files:       files,
		S3Bucket:    req.S3Bucket,
		S3Prefix:    prefix,
	}

	if s.cache != nil && cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, analysis); err != nil {
			log.WithError(err).Warn("Result cache store failed")
		}
	}

	s.recordCompleted(ctx, req, domain.AnalysisModeLocal, prefix, "", analysis)
	return analysis, nil
}

// SubmitRemote uploads the input image and hands the job to the provider
// without waiting for it to finish.
func (s *AnalysisService) SubmitRemote(ctx context.Context, req AnalyzeRequest) (*SubmittedJob, error) {
	prefix := NormalizePrefix(req.S3Prefix)

	jobID, err := s.submitRemote(ctx, req, prefix)
	if err != nil {
		s.recordFailure(ctx, req, domain.AnalysisModeRemote, prefix, "", err)
		return nil, err
	}

	s.recordSubmitted(ctx, req, prefix, jobID)
	return &SubmittedJob{JobID: jobID, StatusURL: "/job-status/" + jobID}, nil
}

// AnalyzeRemoteWait submits and then blocks until the job finishes or the
// poll deadline passes. The provider's output comes back untouched.
func (s *AnalysisService) AnalyzeRemoteWait(ctx context.Context, req AnalyzeRequest) (*domain.RemoteJob, error) {
	prefix := NormalizePrefix(req.S3Prefix)

	jobID, err := s.submitRemote(ctx, req, prefix)
	if err != nil {
		s.recordFailure(ctx, req, domain.AnalysisModeRemote, prefix, "", err)
		return nil, err
	}

	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := s.remote.Wait(ctx, jobID)
	if err != nil {
		s.recordFailure(ctx, req, domain.AnalysisModeRemote, prefix, jobID, err)
		return nil, err
	}

	s.recordRemoteCompleted(ctx, req, prefix, job)
	return job, nil
}

func (s *AnalysisService) submitRemote(ctx context.Context, req AnalyzeRequest, prefix string) (string, error) {
	if s.remote == nil {
		return "", domain.ErrRemoteNotConfigured
	}
	if req.S3Bucket == "" {
		return "", domain.ErrBucketRequired
	}

	inputKey := prefix + "input/" + filepath.Base(req.ImageName)
	imageURL, err := s.store.UploadFile(ctx, req.ImagePath, req.S3Bucket, inputKey)
	if err != nil {
		return "", err
	}

	jobID, err := s.remote.Submit(ctx, domain.JobInput{
		ImageURL: imageURL,
		S3Bucket: req.S3Bucket,
		S3Prefix: prefix,
		Debug:    req.Debug,
	})
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{"job_id": jobID, "bucket": req.S3Bucket, "prefix": prefix}).Info("Submitted remote analysis job")
	return jobID, nil
}

// JobStatus proxies the provider-side view of a job.
func (s *AnalysisService) JobStatus(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	if s.remote == nil {
		return nil, domain.ErrRemoteNotConfigured
	}
	return s.remote.Status(ctx, jobID)
}

// CancelJob asks the provider to stop a job. A timed-out wait does not do
// this implicitly.
func (s *AnalysisService) CancelJob(ctx context.Context, jobID string) error {
	if s.remote == nil {
		return domain.ErrRemoteNotConfigured
	}
	return s.remote.Cancel(ctx, jobID)
}

func (s *AnalysisService) GetAnalysis(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error) {
	if s.history == nil {
		return nil, domain.ErrHistoryNotAvailable
	}
	return s.history.GetByID(ctx, id)
}

func (s *AnalysisService) ListAnalyses(ctx context.Context, filter ports.AnalysisListFilter) ([]*domain.AnalysisRecord, int, error) {
	if s.history == nil {
		return nil, 0, domain.ErrHistoryNotAvailable
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.history.List(ctx, filter)
}

// analysisCacheKey fingerprints the upload plus every request knob that
// changes the result.
func analysisCacheKey(imagePath string, debug bool, bucket, prefix string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x:%t:%s:%s", h.Sum(nil), debug, bucket, prefix), nil
}

func (s *AnalysisService) recordCompleted(ctx context.Context, req AnalyzeRequest, mode domain.AnalysisMode, prefix, jobID string, analysis *domain.LocalAnalysis) {
	result, err := json.Marshal(analysis)
	if err != nil {
		result = nil
	}
	now := time.Now()
	s.saveRecord(ctx, &domain.AnalysisRecord{
		ID:          uuid.New(),
		CreatedAt:   now,
		CompletedAt: &now,
		Mode:        mode,
		PatientName: req.PatientName,
		ImageName:   req.ImageName,
		S3Bucket:    req.S3Bucket,
		S3Prefix:    prefix,
		RemoteJobID: jobID,
		Status:      domain.AnalysisStatusCompleted,
		NumFindings: analysis.NumFindings,
		Result:      result,
	})
}

func (s *AnalysisService) recordRemoteCompleted(ctx context.Context, req AnalyzeRequest, prefix string, job *domain.RemoteJob) {
	now := time.Now()
	s.saveRecord(ctx, &domain.AnalysisRecord{
		ID:          uuid.New(),
		CreatedAt:   now,
		CompletedAt: &now,
		Mode:        domain.AnalysisModeRemote,
		PatientName: req.PatientName,
		ImageName:   req.ImageName,
		S3Bucket:    req.S3Bucket,
		S3Prefix:    prefix,
		RemoteJobID: job.ID,
		Status:      domain.AnalysisStatusCompleted,
		Result:      job.Output,
	})
}

func (s *AnalysisService) recordSubmitted(ctx context.Context, req AnalyzeRequest, prefix, jobID string) {
	s.saveRecord(ctx, &domain.AnalysisRecord{
		ID:          uuid.New(),
		CreatedAt:   time.Now(),
		Mode:        domain.AnalysisModeRemote,
		PatientName: req.PatientName,
		ImageName:   req.ImageName,
		S3Bucket:    req.S3Bucket,
		S3Prefix:    prefix,
		RemoteJobID: jobID,
		Status:      domain.AnalysisStatusSubmitted,
	})
}

func (s *AnalysisService) recordFailure(ctx context.Context, req AnalyzeRequest, mode domain.AnalysisMode, prefix, jobID string, cause error) {
	now := time.Now()
	s.saveRecord(ctx, &domain.AnalysisRecord{
		ID:          uuid.New(),
		CreatedAt:   now,
		CompletedAt: &now,
		Mode:        mode,
		PatientName: req.PatientName,
		ImageName:   req.ImageName,
		S3Bucket:    req.S3Bucket,
		S3Prefix:    prefix,
		RemoteJobID: jobID,
		Status:      domain.AnalysisStatusFailed,
		Error:       cause.Error(),
	})
}

// saveRecord is best-effort: history problems never fail an analysis.
func (s *AnalysisService) saveRecord(ctx context.Context, record *domain.AnalysisRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Save(ctx, record); err != nil {
		log.WithError(err).Warn("Failed to save analysis record")
	}
}
