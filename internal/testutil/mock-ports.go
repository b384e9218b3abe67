package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// MockModelRunner is a mock of ModelRunner.
type MockModelRunner struct {
	mock.Mock
}

func (m *MockModelRunner) Load(ctx context.Context, req ports.LoadRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockModelRunner) Segment(ctx context.Context, req ports.StepRequest) (*ports.StepResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.StepResult), args.Error(1)
}

func (m *MockModelRunner) ReleaseMemory(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockModelRunner) Detect(ctx context.Context, req ports.StepRequest) (*ports.StepResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.StepResult), args.Error(1)
}

func (m *MockModelRunner) PostProcess(ctx context.Context, req ports.PostProcessRequest) ([]domain.FindingEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FindingEntry), args.Error(1)
}

func (m *MockModelRunner) Healthy(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockModelRunner) Describe() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockModelRunner) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockRemoteComputeClient is a mock of RemoteComputeClient.
type MockRemoteComputeClient struct {
	mock.Mock
}

func (m *MockRemoteComputeClient) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockRemoteComputeClient) Submit(ctx context.Context, input domain.JobInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteComputeClient) Status(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteJob), args.Error(1)
}

func (m *MockRemoteComputeClient) Wait(ctx context.Context, jobID string) (*domain.RemoteJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteJob), args.Error(1)
}

func (m *MockRemoteComputeClient) Cancel(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// MockObjectStore is a mock of ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) UploadTree(ctx context.Context, localRoot, bucket, prefix string) (map[string]string, error) {
	args := m.Called(ctx, localRoot, bucket, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockObjectStore) UploadFile(ctx context.Context, localPath, bucket, key string) (string, error) {
	args := m.Called(ctx, localPath, bucket, key)
	return args.String(0), args.Error(1)
}

// MockAnalysisRepo is a mock of AnalysisRepository.
type MockAnalysisRepo struct {
	mock.Mock
}

func (m *MockAnalysisRepo) Save(ctx context.Context, record *domain.AnalysisRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAnalysisRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisRecord), args.Error(1)
}

func (m *MockAnalysisRepo) List(ctx context.Context, filter ports.AnalysisListFilter) ([]*domain.AnalysisRecord, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.AnalysisRecord), args.Int(1), args.Error(2)
}

// MockResultCache is a mock of ResultCache.
type MockResultCache struct {
	mock.Mock
}

func (m *MockResultCache) Get(ctx context.Context, key string) (*domain.LocalAnalysis, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LocalAnalysis), args.Error(1)
}

func (m *MockResultCache) Set(ctx context.Context, key string, value *domain.LocalAnalysis) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
