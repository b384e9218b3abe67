package services

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
	"dental-inference-service/internal/testutil"
)

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))))
}

func loadedPipeline(t *testing.T, runner *testutil.MockModelRunner) *PipelineService {
	t.Helper()
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)
	runner.On("Load", mock.Anything, mock.Anything).Return(nil)
	mgr := NewLifecycleManager(runner, modelsDir)
	require.NoError(t, mgr.LoadModels(context.Background(), false))
	return NewPipelineService(runner, mgr)
}

func TestPipelineService_Run(t *testing.T) {
	runner := new(testutil.MockModelRunner)
	pipeline := loadedPipeline(t, runner)

	imgPath := filepath.Join(t.TempDir(), "pano_007.png")
	writeTestImage(t, imgPath)
	img, err := domain.LoadSourceImage(imgPath)
	require.NoError(t, err)
	assert.Equal(t, "pano_007", img.Stem)
	assert.Equal(t, 4, img.Width)

	outputRoot := t.TempDir()
	var order []string

	runner.On("Segment", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		order = append(order, "segment")
	}).Return(&ports.StepResult{Ref: "seg-1"}, nil)
	runner.On("ReleaseMemory", mock.Anything).Run(func(args mock.Arguments) {
		order = append(order, "release")
	}).Return(nil)
	runner.On("Detect", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		order = append(order, "detect")
		// The runner drops a debug overlay into the per-image directory.
		req := args.Get(1).(ports.StepRequest)
		require.NoError(t, os.WriteFile(filepath.Join(req.OutputDir, "overlay.jpg"), []byte("jpg"), 0o644))
	}).Return(&ports.StepResult{Ref: "det-1"}, nil)
	findings := []domain.FindingEntry{
		{FDI: "18", Finding: "caries", Score: 0.91},
		{FDI: "36", Finding: "filling", Score: 0.72},
	}
	runner.On("PostProcess", mock.Anything, ports.PostProcessRequest{
		SegmentationRef: "seg-1",
		DetectionRef:    "det-1",
		OutputDir:       filepath.Join(outputRoot, "pano_007"),
	}).Run(func(args mock.Arguments) {
		order = append(order, "postprocess")
	}).Return(findings, nil)

	result, err := pipeline.Run(context.Background(), img, outputRoot, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"segment", "release", "detect", "postprocess"}, order)
	assert.Equal(t, findings, result.Findings)
	assert.Equal(t, filepath.Join(outputRoot, "pano_007.csv"), result.CSVPath)
	assert.Contains(t, result.Files, result.CSVPath)
	assert.Contains(t, result.Files, filepath.Join(outputRoot, "pano_007", "overlay.jpg"))

	data, err := os.ReadFile(result.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, "file_name,fdi,finding,score\npano_007,18,caries,0.91\npano_007,36,filling,0.72\n", string(data))
}

func TestPipelineService_Run_StepFailure(t *testing.T) {
	runner := new(testutil.MockModelRunner)
	pipeline := loadedPipeline(t, runner)

	imgPath := filepath.Join(t.TempDir(), "pano.png")
	writeTestImage(t, imgPath)
	img, err := domain.LoadSourceImage(imgPath)
	require.NoError(t, err)

	runner.On("Segment", mock.Anything, mock.Anything).Return(nil, errors.New("runner crashed"))

	_, err = pipeline.Run(context.Background(), img, t.TempDir(), false)
	require.Error(t, err)

	var stepErr *domain.PipelineStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "semantic segmentation", stepErr.Step)
	assert.GreaterOrEqual(t, stepErr.Elapsed, time.Duration(0))
	runner.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
}

func TestPipelineService_Run_ReleaseMemoryFailureIsNotFatal(t *testing.T) {
	runner := new(testutil.MockModelRunner)
	pipeline := loadedPipeline(t, runner)

	imgPath := filepath.Join(t.TempDir(), "pano.png")
	writeTestImage(t, imgPath)
	img, err := domain.LoadSourceImage(imgPath)
	require.NoError(t, err)

	runner.On("Segment", mock.Anything, mock.Anything).Return(&ports.StepResult{Ref: "s"}, nil)
	runner.On("ReleaseMemory", mock.Anything).Return(errors.New("no accelerator"))
	runner.On("Detect", mock.Anything, mock.Anything).Return(&ports.StepResult{Ref: "d"}, nil)
	runner.On("PostProcess", mock.Anything, mock.Anything).Return([]domain.FindingEntry{}, nil)

	result, err := pipeline.Run(context.Background(), img, t.TempDir(), false)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)

	// Empty findings still produce a header-only CSV.
	data, err := os.ReadFile(result.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, "file_name,fdi,finding,score\n", string(data))
}

func TestPipelineService_VerifyOutputs_Empty(t *testing.T) {
	runner := new(testutil.MockModelRunner)
	runner.On("Describe").Return("python3 pano_runner.py --port 9090")
	pipeline := NewPipelineService(runner, NewLifecycleManager(runner, t.TempDir()))

	outputRoot := t.TempDir()
	csvPath := filepath.Join(outputRoot, "pano.csv")

	_, err := pipeline.verifyOutputs(outputRoot, csvPath)
	require.Error(t, err)

	var noOutput *domain.NoOutputError
	require.ErrorAs(t, err, &noOutput)
	assert.Equal(t, outputRoot, noOutput.OutputDir)
	assert.Equal(t, csvPath, noOutput.CSVPath)
	assert.Equal(t, "python3 pano_runner.py --port 9090", noOutput.Runtime)
}

func TestPipelineService_Run_ModelsNotLoadable(t *testing.T) {
	runner := new(testutil.MockModelRunner)
	mgr := NewLifecycleManager(runner, filepath.Join(t.TempDir(), "missing"))
	pipeline := NewPipelineService(runner, mgr)

	imgPath := filepath.Join(t.TempDir(), "pano.png")
	writeTestImage(t, imgPath)
	img, err := domain.LoadSourceImage(imgPath)
	require.NoError(t, err)

	_, err = pipeline.Run(context.Background(), img, t.TempDir(), false)
	var missing *domain.MissingArtifactError
	assert.ErrorAs(t, err, &missing)
}
