package mocks

import (
	"context"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListActiveByObjectType(
	ctx context.Context,
	tenantID string,
	objectType models.RecordType,
) ([]*models.Workflow, error) {
	args := m.Called(ctx, tenantID, objectType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListActiveScheduled(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)

	return args.Error(0)
}

func (m *MockWorkflowRepository) MarkTriggered(ctx context.Context, tenantID, id string, at time.Time) error {
	args := m.Called(ctx, tenantID, id, at)

	return args.Error(0)
}

func (m *MockWorkflowRepository) SaveRevision(ctx context.Context, revision *models.WorkflowRevision) error {
	args := m.Called(ctx, revision)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetRevision(
	ctx context.Context,
	tenantID, workflowID string,
	revision int,
) (*models.WorkflowRevision, error) {
	args := m.Called(ctx, tenantID, workflowID, revision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRevision), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) FindLive(ctx context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, workflowID, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) LatestForRecord(
	ctx context.Context,
	tenantID, workflowID, recordID string,
) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, workflowID, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListLiveByRecord(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID string,
) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, recordType, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListLiveByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(
	ctx context.Context,
	tenantID, workflowID string,
	limit int,
) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

// MockExecutionLogRepository is a mock implementation of persistence.ExecutionLogRepository interface.
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) Append(ctx context.Context, entry *models.WorkflowExecutionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) ListByExecution(
	ctx context.Context,
	tenantID, executionID string,
) ([]*models.WorkflowExecutionLog, error) {
	args := m.Called(ctx, tenantID, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecutionLog), args.Error(1)
}

// MockRecordRepository is a mock implementation of persistence.RecordRepository interface.
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) GetRecord(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID string,
) (models.Record, error) {
	args := m.Called(ctx, tenantID, recordType, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(models.Record), args.Error(1)
}

func (m *MockRecordRepository) ListRecords(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	limit int,
) ([]models.Record, error) {
	args := m.Called(ctx, tenantID, recordType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Record), args.Error(1)
}

func (m *MockRecordRepository) CreateRecord(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	record models.Record,
) (models.Record, error) {
	args := m.Called(ctx, tenantID, recordType, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(models.Record), args.Error(1)
}

func (m *MockRecordRepository) UpdateField(
	ctx context.Context,
	tenantID string,
	recordType models.RecordType,
	recordID, field string,
	value any,
) error {
	args := m.Called(ctx, tenantID, recordType, recordID, field, value)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
	logRepo       *MockExecutionLogRepository
	recordRepo    *MockRecordRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
		logRepo:       &MockExecutionLogRepository{},
		recordRepo:    &MockRecordRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) GetMockExecutionLogRepository() *MockExecutionLogRepository {
	return m.logRepo
}

func (m *MockPersistence) GetMockRecordRepository() *MockRecordRepository {
	return m.recordRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return m.logRepo
}

func (m *MockPersistence) RecordRepository() persistence.RecordRepository {
	return m.recordRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
