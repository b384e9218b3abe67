package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dental-inference-service/internal/core/domain"
	"dental-inference-service/internal/testutil"
)

func writeModelArtifacts(t *testing.T, modelsDir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(modelsDir, "deeplab"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(modelsDir, "yolo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "deeplab", "config.yaml"),
		[]byte("name: deeplab-dental\nversion: \"2.1\"\nclasses:\n  - tooth\n  - caries\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "deeplab", "model.pth"), []byte("weights"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "yolo", "config.yaml"),
		[]byte("name: yolo-findings\nversion: \"8.0\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "yolo", "model.pt"), []byte("weights"), 0o644))
}

func TestLifecycleManager_LoadModels(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)

	runner := new(testutil.MockModelRunner)
	runner.On("Load", mock.Anything, mock.Anything).Return(nil)

	mgr := NewLifecycleManager(runner, modelsDir)
	assert.Equal(t, domain.ModelStateUnloaded, mgr.State())
	assert.False(t, mgr.IsLoaded())

	require.NoError(t, mgr.LoadModels(context.Background(), true))

	assert.Equal(t, domain.ModelStateLoaded, mgr.State())
	assert.True(t, mgr.IsLoaded())
	assert.True(t, mgr.Available())

	set, err := mgr.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deeplab-dental", set.Segmentation.Name)
	assert.Equal(t, "2.1", set.Segmentation.Version)
	assert.Equal(t, []string{"tooth", "caries"}, set.Segmentation.Classes)
	assert.Equal(t, "yolo-findings", set.Detection.Name)
	assert.True(t, set.Debug)
	runner.AssertExpectations(t)
}

func TestLifecycleManager_LoadModels_Idempotent(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)

	runner := new(testutil.MockModelRunner)
	runner.On("Load", mock.Anything, mock.Anything).Return(nil)

	mgr := NewLifecycleManager(runner, modelsDir)
	require.NoError(t, mgr.LoadModels(context.Background(), true))
	require.NoError(t, mgr.LoadModels(context.Background(), false))
	require.NoError(t, mgr.LoadModels(context.Background(), false))

	// The first load's debug flag sticks.
	set, err := mgr.Models(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Debug)
	runner.AssertNumberOfCalls(t, "Load", 1)
}

func TestLifecycleManager_LoadModels_MissingArtifact(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)
	require.NoError(t, os.Remove(filepath.Join(modelsDir, "deeplab", "model.pth")))
	require.NoError(t, os.Remove(filepath.Join(modelsDir, "yolo", "config.yaml")))

	runner := new(testutil.MockModelRunner)
	mgr := NewLifecycleManager(runner, modelsDir)

	err := mgr.LoadModels(context.Background(), false)
	require.Error(t, err)

	var missing *domain.MissingArtifactError
	require.ErrorAs(t, err, &missing)
	// Validation order is fixed, so the first missing path wins.
	assert.Equal(t, filepath.Join(modelsDir, "deeplab", "model.pth"), missing.Path)
	assert.Equal(t, domain.ModelStateFailed, mgr.State())
	assert.False(t, mgr.IsLoaded())
	runner.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestLifecycleManager_LoadModels_RetryAfterFailure(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)

	runner := new(testutil.MockModelRunner)
	runner.On("Load", mock.Anything, mock.Anything).Return(errors.New("cuda out of memory")).Once()
	runner.On("Load", mock.Anything, mock.Anything).Return(nil).Once()

	mgr := NewLifecycleManager(runner, modelsDir)

	err := mgr.LoadModels(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, domain.ModelStateFailed, mgr.State())

	require.NoError(t, mgr.LoadModels(context.Background(), false))
	assert.Equal(t, domain.ModelStateLoaded, mgr.State())
	runner.AssertExpectations(t)
}

func TestLifecycleManager_LoadModels_SingleFlight(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)

	runner := new(testutil.MockModelRunner)
	runner.On("Load", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		time.Sleep(50 * time.Millisecond)
	}).Return(nil)

	mgr := NewLifecycleManager(runner, modelsDir)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mgr.LoadModels(context.Background(), false)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	runner.AssertNumberOfCalls(t, "Load", 1)
}

func TestLifecycleManager_Models_LazyLoad(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)

	runner := new(testutil.MockModelRunner)
	runner.On("Load", mock.Anything, mock.Anything).Return(nil)

	mgr := NewLifecycleManager(runner, modelsDir)

	set, err := mgr.Models(context.Background())
	require.NoError(t, err)
	assert.False(t, set.Debug)
	assert.True(t, mgr.IsLoaded())
}

func TestLifecycleManager_BadManifest(t *testing.T) {
	modelsDir := t.TempDir()
	writeModelArtifacts(t, modelsDir)
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "yolo", "config.yaml"),
		[]byte("classes: [unclosed\n"), 0o644))

	runner := new(testutil.MockModelRunner)
	mgr := NewLifecycleManager(runner, modelsDir)

	err := mgr.LoadModels(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
	assert.Equal(t, domain.ModelStateFailed, mgr.State())
}

func TestLifecycleManager_Warmup_FailureObservable(t *testing.T) {
	runner := new(testutil.MockModelRunner)
	mgr := NewLifecycleManager(runner, filepath.Join(t.TempDir(), "missing"))

	assert.True(t, mgr.Available())
	mgr.Warmup(false)

	assert.Eventually(t, func() bool {
		return !mgr.Available() && mgr.State() == domain.ModelStateFailed
	}, time.Second, 10*time.Millisecond)
}
