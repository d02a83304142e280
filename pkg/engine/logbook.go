package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/petflow/pkg/metrics"
	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
)

// Logbook appends execution log entries. Writes are best effort: a failure is logged and
// counted but never undoes the transition being recorded.
type Logbook struct {
	repo   persistence.ExecutionLogRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewLogbook(repo persistence.ExecutionLogRepository, logger *slog.Logger, now func() time.Time) *Logbook {
	if now == nil {
		now = time.Now
	}

	return &Logbook{repo: repo, logger: logger, now: now}
}

// Entry is the variable part of a log entry.
type Entry struct {
	StepID   string
	Event    models.LogEventType
	Message  string
	Err      error
	Metadata map[string]any
}

// Write records entry against the execution's current status.
func (l *Logbook) Write(ctx context.Context, execution *models.WorkflowExecution, entry Entry) {
	log := &models.WorkflowExecutionLog{
		ExecutionID: execution.ID,
		TenantID:    execution.TenantID,
		EventType:   entry.Event,
		Status:      execution.Status,
		Message:     entry.Message,
		Metadata:    entry.Metadata,
		CreatedAt:   l.now().UTC(),
	}

	if entry.StepID != "" {
		stepID := entry.StepID
		log.StepID = &stepID
	}

	if entry.Err != nil {
		log.Error = entry.Err.Error()
	}

	err := l.repo.Append(ctx, log)
	if err != nil {
		metrics.RecordLogWriteFailure()

		l.logger.WarnContext(ctx, "Failed to write execution log",
			"error", newError(KindLogging, "Append", execution.ID, entry.StepID, err),
			"execution_id", execution.ID,
			"event_type", entry.Event)
	}
}
