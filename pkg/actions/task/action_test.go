package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence/file"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask(t *testing.T) {
	t.Parallel()

	records := file.NewRecordRepository(t.TempDir())
	factory := NewActionFactory(records)
	factory.now = func() time.Time { return time.Date(2026, 3, 30, 10, 0, 0, 0, time.UTC) }

	action, err := factory.Create(context.Background(), json.RawMessage(
		`{"title":"Call the owner of {{ .record.name }}","priority":"high","dueInDays":3,"assigneeId":"staff-9"}`))
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), protocol.ActionContext{
		TenantID:    "tenant-a",
		WorkflowID:  "wf-1",
		ExecutionID: "exec-1",
		RecordType:  models.RecordTypeInvoice,
		RecordID:    "inv-1",
		Record:      models.Record{"name": "Rex"},
	})
	require.NoError(t, err)

	taskID, _ := result["task_id"].(string)
	require.NotEmpty(t, taskID)

	stored, err := records.GetRecord(context.Background(), "tenant-a", models.RecordTypeTask, taskID)
	require.NoError(t, err)
	assert.Equal(t, "Call the owner of Rex", stored["title"])
	assert.Equal(t, "high", stored["priority"])
	assert.Equal(t, "open", stored["status"])
	assert.Equal(t, "2026-04-02", stored["due_date"])
	assert.Equal(t, "staff-9", stored["assignee_id"])
	assert.Equal(t, "invoice", stored["related_record_type"])
	assert.Equal(t, "inv-1", stored["related_record_id"])

	_, err = records.GetRecord(context.Background(), "tenant-b", models.RecordTypeTask, taskID)
	require.Error(t, err)
}

func TestCreateTask_InvalidConfig(t *testing.T) {
	t.Parallel()

	factory := NewActionFactory(nil)

	_, err := factory.Create(context.Background(), json.RawMessage(`{"priority":"high"}`))
	require.Error(t, err)

	_, err = factory.Create(context.Background(), json.RawMessage(`{"title":"x","priority":"whenever"}`))
	require.Error(t, err)
}
