// Package persistence provides the data storage abstraction layer for workflows, executions and records.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/petflow/pkg/models"
)

// Persistence bundles the repositories backed by one storage provider.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ExecutionLogRepository() ExecutionLogRepository
	RecordRepository() RecordRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions and their revision snapshots.
// Deleted workflows are never returned.
type WorkflowRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Workflow, error)
	List(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	ListAll(ctx context.Context) ([]*models.Workflow, error)
	ListActiveByObjectType(ctx context.Context, tenantID string, objectType models.RecordType) ([]*models.Workflow, error)
	ListActiveScheduled(ctx context.Context) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, tenantID, id string) error
	MarkTriggered(ctx context.Context, tenantID, id string, at time.Time) error

	SaveRevision(ctx context.Context, revision *models.WorkflowRevision) error
	GetRevision(ctx context.Context, tenantID, workflowID string, revision int) (*models.WorkflowRevision, error)
}

// ExecutionRepository stores workflow executions.
type ExecutionRepository interface {
	// Create inserts a new execution. It returns ErrExecutionAlreadyActive when the
	// (workflow, record) pair already has a running or waiting execution.
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error)
	// Update writes the execution if its stored version still equals execution.Version, then
	// bumps execution.Version. It returns ErrExecutionConflict when the version moved.
	Update(ctx context.Context, execution *models.WorkflowExecution) error
	// FindLive returns the running or waiting execution of a (workflow, record) pair, or nil.
	FindLive(ctx context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error)
	// LatestForRecord returns the most recent execution of a (workflow, record) pair in any status, or nil.
	LatestForRecord(ctx context.Context, tenantID, workflowID, recordID string) (*models.WorkflowExecution, error)
	ListLiveByRecord(ctx context.Context, tenantID string, recordType models.RecordType, recordID string) ([]*models.WorkflowExecution, error)
	ListLiveByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error)
}

// ExecutionLogRepository stores the append-only execution audit trail.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.WorkflowExecutionLog) error
	ListByExecution(ctx context.Context, tenantID, executionID string) ([]*models.WorkflowExecutionLog, error)
}

// RecordStore gives typed read access to business records.
type RecordStore interface {
	GetRecord(ctx context.Context, tenantID string, recordType models.RecordType, recordID string) (models.Record, error)
	ListRecords(ctx context.Context, tenantID string, recordType models.RecordType, limit int) ([]models.Record, error)
}

// RecordWriter mutates business records on behalf of workflow actions.
type RecordWriter interface {
	CreateRecord(ctx context.Context, tenantID string, recordType models.RecordType, record models.Record) (models.Record, error)
	UpdateField(ctx context.Context, tenantID string, recordType models.RecordType, recordID, field string, value any) error
}

// RecordRepository is a RecordStore that can also write.
type RecordRepository interface {
	RecordStore
	RecordWriter
}
