package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// PipelineService runs the full analysis for one image. Steps are strictly
// sequential: the segmentation and detection models do not fit the
// accelerator together, so detection only starts after segmentation is done
// and its memory has been handed back.
type PipelineService struct {
	runner    ports.ModelRunner
	lifecycle *LifecycleManager
}

func NewPipelineService(runner ports.ModelRunner, lifecycle *LifecycleManager) *PipelineService {
	return &PipelineService{runner: runner, lifecycle: lifecycle}
}

// Run executes segmentation, detection and post-processing for img, writes
// the findings CSV into outputRoot, and returns everything the run produced.
// outputRoot must be private to this run.
func (p *PipelineService) Run(ctx context.Context, img *domain.SourceImage, outputRoot string, debug bool) (*domain.AnalysisResult, error) {
	if _, err := p.lifecycle.Models(ctx); err != nil {
		return nil, err
	}

	imageDir := filepath.Join(outputRoot, img.Stem)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	logger := log.WithFields(log.Fields{"image": img.Stem, "output_dir": outputRoot})
	logger.WithFields(log.Fields{"width": img.Width, "height": img.Height, "debug": debug}).Info("Starting analysis pipeline")

	seg, err := p.runStep(ctx, "semantic segmentation", img.Path, imageDir, p.runner.Segment)
	if err != nil {
		return nil, err
	}

	if err := p.runner.ReleaseMemory(ctx); err != nil {
		logger.WithError(err).Warn("Failed to release accelerator memory")
	}

	det, err := p.runStep(ctx, "instance detection", img.Path, imageDir, p.runner.Detect)
	if err != nil {
		return nil, err
	}

	ppStart := time.Now()
	findings, err := p.runner.PostProcess(ctx, ports.PostProcessRequest{
		SegmentationRef: seg.Ref,
		DetectionRef:    det.Ref,
		OutputDir:       imageDir,
	})
	if err != nil {
		return nil, &domain.PipelineStepError{Step: "post-processing", Elapsed: time.Since(ppStart), Err: err}
	}

	report := &domain.FindingReport{Name: img.Stem, Entries: findings}
	csvPath := filepath.Join(outputRoot, img.Stem+".csv")
	if err := report.SaveCSV(csvPath); err != nil {
		return nil, fmt.Errorf("write findings csv: %w", err)
	}

	files, err := p.verifyOutputs(outputRoot, csvPath)
	if err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{"findings": len(findings), "files": len(files)}).Info("Analysis pipeline finished")
	return &domain.AnalysisResult{
		Findings:  findings,
		CSVPath:   csvPath,
		OutputDir: outputRoot,
		Files:     files,
	}, nil
}

func (p *PipelineService) runStep(ctx context.Context, name, imagePath, outputDir string, step func(context.Context, ports.StepRequest) (*ports.StepResult, error)) (*ports.StepResult, error) {
	start := time.Now()
	res, err := step(ctx, ports.StepRequest{ImagePath: imagePath, OutputDir: outputDir})
	elapsed := time.Since(start)
	if err != nil {
		return nil, &domain.PipelineStepError{Step: name, Elapsed: elapsed, Err: err}
	}
	log.WithFields(log.Fields{"step": name, "elapsed": elapsed.Round(time.Millisecond)}).Debug("Pipeline step finished")
	return res, nil
}

// verifyOutputs walks outputRoot recursively and collects everything the run
// left behind. An empty tree means the models went through the motions but
// produced nothing usable.
func (p *PipelineService) verifyOutputs(outputRoot, csvPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan output dir: %w", err)
	}
	if len(files) == 0 {
		return nil, &domain.NoOutputError{
			OutputDir: outputRoot,
			CSVPath:   csvPath,
			Runtime:   p.runner.Describe(),
		}
	}
	return files, nil
}
