package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// LifecycleManager owns model load state for the process. Models load once
// and stay loaded; a failed load may be retried, and concurrent load
// attempts coalesce into a single flight.
type LifecycleManager struct {
	runner    ports.ModelRunner
	modelsDir string

	mu        sync.RWMutex
	state     domain.ModelState
	set       *domain.ModelSet
	available bool

	flight singleflight.Group
}

func NewLifecycleManager(runner ports.ModelRunner, modelsDir string) *LifecycleManager {
	return &LifecycleManager{
		runner:    runner,
		modelsDir: modelsDir,
		state:     domain.ModelStateUnloaded,
		available: true,
	}
}

// LoadModels brings the model set up. Once loaded it returns immediately;
// the debug flag of the load that actually ran is the one that sticks.
func (m *LifecycleManager) LoadModels(ctx context.Context, debug bool) error {
	if m.IsLoaded() {
		return nil
	}

	_, err, _ := m.flight.Do("load-models", func() (interface{}, error) {
		return nil, m.load(ctx, debug)
	})
	return err
}

func (m *LifecycleManager) load(ctx context.Context, debug bool) error {
	m.mu.Lock()
	if m.state == domain.ModelStateLoaded {
		m.mu.Unlock()
		return nil
	}
	m.state = domain.ModelStateLoading
	m.mu.Unlock()

	log.WithFields(log.Fields{"models_dir": m.modelsDir, "debug": debug}).Info("Loading models")
	start := time.Now()

	set, err := m.buildModelSet(ctx, debug)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = domain.ModelStateFailed
		m.set = nil
		return err
	}

	m.state = domain.ModelStateLoaded
	m.set = set
	m.available = true
	log.WithFields(log.Fields{
		"segmentation": set.Segmentation.Name,
		"detection":    set.Detection.Name,
		"elapsed":      time.Since(start).Round(time.Millisecond),
	}).Info("Models loaded")
	return nil
}

func (m *LifecycleManager) buildModelSet(ctx context.Context, debug bool) (*domain.ModelSet, error) {
	artifacts := domain.ArtifactsFor(m.modelsDir)
	for _, path := range artifacts.Ordered() {
		if _, err := os.Stat(path); err != nil {
			return nil, &domain.MissingArtifactError{Path: path}
		}
	}

	seg, err := readManifest(artifacts.SegmentationConfig, artifacts.SegmentationWeights)
	if err != nil {
		return nil, err
	}
	det, err := readManifest(artifacts.DetectionConfig, artifacts.DetectionWeights)
	if err != nil {
		return nil, err
	}

	if err := m.runner.Load(ctx, ports.LoadRequest{Artifacts: artifacts, Debug: debug}); err != nil {
		return nil, fmt.Errorf("runner load: %w", err)
	}

	return &domain.ModelSet{
		Segmentation: seg,
		Detection:    det,
		Debug:        debug,
		LoadedAt:     time.Now(),
	}, nil
}

// readManifest parses the optional metadata fields of a model's config.yaml.
// The file is part of the validated artifact set, so it must at least be
// well-formed YAML.
func readManifest(configPath, weightsPath string) (domain.ModelInfo, error) {
	var info domain.ModelInfo

	data, err := os.ReadFile(configPath)
	if err != nil {
		return info, fmt.Errorf("read model manifest %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("parse model manifest %s: %w", configPath, err)
	}

	if info.Name == "" {
		info.Name = filepath.Base(filepath.Dir(configPath))
	}
	info.ConfigPath = configPath
	info.WeightsPath = weightsPath
	return info, nil
}

func (m *LifecycleManager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == domain.ModelStateLoaded
}

func (m *LifecycleManager) State() domain.ModelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Available reports whether the model code path is believed workable. It
// flips false when a startup warmup load fails and true again after any
// successful load.
func (m *LifecycleManager) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Models returns the loaded set, loading lazily on first use.
func (m *LifecycleManager) Models(ctx context.Context) (*domain.ModelSet, error) {
	m.mu.RLock()
	if m.state == domain.ModelStateLoaded {
		set := m.set
		m.mu.RUnlock()
		return set, nil
	}
	m.mu.RUnlock()

	if err := m.LoadModels(ctx, false); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set, nil
}

// Warmup kicks off the startup load in a supervised goroutine. A warmup
// failure is recorded for health checks; a later request can still retry
// the load.
func (m *LifecycleManager) Warmup(debug bool) {
	go func() {
		if err := m.LoadModels(context.Background(), debug); err != nil {
			m.mu.Lock()
			if m.state != domain.ModelStateLoaded {
				m.available = false
			}
			m.mu.Unlock()
			log.WithError(err).Error("Startup model warmup failed")
		}
	}()
}
