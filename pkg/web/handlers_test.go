package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	logaction "github.com/dukex/petflow/pkg/actions/log"
	"github.com/dukex/petflow/pkg/mocks"
	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence/file"
	"github.com/dukex/petflow/pkg/queue"
	"github.com/dukex/petflow/pkg/registry"
	"github.com/dukex/petflow/pkg/services"
	"github.com/dukex/petflow/pkg/trigger"
	"github.com/dukex/petflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tenantID = "clinic-1"

type testApp struct {
	app         *fiber.App
	persistence *file.Persistence
	bus         *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	persistence := file.NewPersistence("file://" + t.TempDir())
	q := queue.NewMemoryQueue()
	bus := &mocks.MockEventBus{}

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterAction(logaction.NewActionFactory()))

	evaluator := trigger.NewEvaluator(trigger.Dependencies{
		Workflows:  persistence.WorkflowRepository(),
		Executions: persistence.ExecutionRepository(),
		Logs:       persistence.ExecutionLogRepository(),
		Records:    persistence.RecordRepository(),
		Queue:      q,
	}, logger)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(persistence, reg, evaluator),
		services.NewExecution(persistence, evaluator, q),
		services.NewRecordEvents(bus),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	app := fiber.New()
	handlers.Mount(app)

	return &testApp{app: app, persistence: persistence, bus: bus}
}

type response struct {
	status int
	body   []byte
}

func (r response) decode(t *testing.T, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, target), string(r.body))
}

func (r response) problem(t *testing.T) map[string]any {
	t.Helper()

	var problem map[string]any
	r.decode(t, &problem)

	return problem
}

func (ta *testApp) do(t *testing.T, method, path string, body any) response {
	t.Helper()

	return ta.doAs(t, tenantID, method, path, body)
}

func (ta *testApp) doAs(t *testing.T, tenant, method, path string, body any) response {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.UserHeader, "7")

	if tenant != "" {
		req.Header.Set(web.TenantHeader, tenant)
	}

	resp, err := ta.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return response{status: resp.StatusCode, body: data}
}

func createBody() map[string]any {
	return map[string]any{
		"name":        "Puppy vaccination series",
		"object_type": "pet",
		"entry_condition": map[string]any{
			"triggerType": "record_created",
			"filters": map[string]any{
				"groups": []any{map[string]any{
					"conditions": []any{map[string]any{"field": "species", "operator": "is_equal_to", "value": "dog"}},
				}},
			},
		},
	}
}

func stepsBody() map[string]any {
	return map[string]any{
		"start_step_id": "hello",
		"steps": []any{
			map[string]any{"id": "hello", "step_type": "action", "action_type": "log",
				"config": map[string]any{"message": "Welcome {{ .record.name }}"}, "next_step_id": "end"},
			map[string]any{"id": "end", "step_type": "terminus"},
		},
	}
}

func (ta *testApp) activeWorkflow(t *testing.T) models.Workflow {
	t.Helper()

	var workflow models.Workflow

	res := ta.do(t, http.MethodPost, "/workflows", createBody())
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	res.decode(t, &workflow)

	res = ta.do(t, http.MethodPut, "/workflows/"+workflow.ID+"/steps", stepsBody())
	require.Equal(t, http.StatusOK, res.status, string(res.body))

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	res.decode(t, &workflow)

	return workflow
}

func TestAPIHandlers_RequireTenant(t *testing.T) {
	ta := setupTestApp(t)

	res := ta.doAs(t, "", http.MethodGet, "/workflows", nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, res.problem(t)["detail"], web.TenantHeader)

	res = ta.doAs(t, "", http.MethodGet, "/executions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "successful creation",
			body:           createBody(),
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid JSON",
			body:           "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid JSON format",
		},
		{
			name:           "name too short",
			body:           map[string]any{"name": "ab", "object_type": "pet", "entry_condition": map[string]any{"triggerType": "manual"}},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Name",
		},
		{
			name:           "unknown object type",
			body:           map[string]any{"name": "Horse shoes", "object_type": "horse", "entry_condition": map[string]any{"triggerType": "manual"}},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "horse",
		},
		{
			name: "scheduled without schedule",
			body: map[string]any{
				"name": "Birthday wishes", "object_type": "pet",
				"entry_condition": map[string]any{"triggerType": "scheduled"},
			},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := setupTestApp(t)

			res := ta.do(t, http.MethodPost, "/workflows", tt.body)
			assert.Equal(t, tt.expectedStatus, res.status, string(res.body))

			if tt.expectedStatus == http.StatusCreated {
				var workflow models.Workflow
				res.decode(t, &workflow)

				assert.NotEmpty(t, workflow.ID)
				assert.Equal(t, tenantID, workflow.TenantID)
				assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
				assert.Equal(t, models.TriggerRecordCreated, workflow.EntryCondition.TriggerType)

				return
			}

			assert.Contains(t, res.problem(t)["detail"], tt.expectedDetail)
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	ta := setupTestApp(t)

	var workflow models.Workflow

	res := ta.do(t, http.MethodPost, "/workflows", createBody())
	require.Equal(t, http.StatusCreated, res.status)
	res.decode(t, &workflow)

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	assert.Equal(t, http.StatusConflict, res.status, "a workflow without steps cannot be activated")

	res = ta.do(t, http.MethodPut, "/workflows/"+workflow.ID+"/steps", stepsBody())
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &workflow)
	assert.Equal(t, 1, workflow.Revision)

	res = ta.do(t, http.MethodPatch, "/workflows/"+workflow.ID, map[string]any{"name": "Puppy vaccines"})
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &workflow)
	assert.Equal(t, "Puppy vaccines", workflow.Name)
	assert.Equal(t, 1, workflow.Revision)

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, res.status)

	var listed struct {
		Workflows  []models.Workflow `json:"workflows"`
		TotalCount int               `json:"total_count"`
	}

	res = ta.do(t, http.MethodGet, "/workflows?status=active", nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &listed)
	assert.Equal(t, 1, listed.TotalCount)

	res = ta.do(t, http.MethodGet, "/workflows?status=published", nil)
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &workflow)
	assert.Equal(t, models.WorkflowStatusPaused, workflow.Status)

	var deleted web.DeleteWorkflowResponse

	res = ta.do(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &deleted)
	assert.Equal(t, workflow.ID, deleted.ID)
	assert.Zero(t, deleted.CancelledExecutions)

	res = ta.do(t, http.MethodGet, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestAPIHandlers_SaveStepsValidation(t *testing.T) {
	ta := setupTestApp(t)

	var workflow models.Workflow

	res := ta.do(t, http.MethodPost, "/workflows", createBody())
	require.Equal(t, http.StatusCreated, res.status)
	res.decode(t, &workflow)

	res = ta.do(t, http.MethodPut, "/workflows/"+workflow.ID+"/steps", map[string]any{
		"steps": []any{
			map[string]any{"id": "loop", "step_type": "action", "action_type": "log",
				"config": map[string]any{"message": "again"}, "next_step_id": "loop"},
		},
	})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, res.problem(t)["detail"], "cycle without a wait step")
}

func TestAPIHandlers_EnrollmentAndExecutions(t *testing.T) {
	ta := setupTestApp(t)
	workflow := ta.activeWorkflow(t)

	pet, err := ta.persistence.RecordRepository().CreateRecord(t.Context(), tenantID, models.RecordTypePet,
		models.Record{"name": "Rex", "species": "dog"})
	require.NoError(t, err)

	res := ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enroll", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enroll", web.EnrollRequest{RecordID: "ghost"})
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "record_not_found", res.problem(t)["type"])

	var enrolled trigger.EnrollmentResult

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enroll", web.EnrollRequest{RecordID: pet.ID()})
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	res.decode(t, &enrolled)
	require.True(t, enrolled.Enrolled)

	var execution models.WorkflowExecution

	res = ta.do(t, http.MethodGet, "/executions/"+enrolled.ExecutionID, nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &execution)
	assert.Equal(t, "user:7", execution.Metadata.EnrolledBy)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	res = ta.doAs(t, "other-clinic", http.MethodGet, "/executions/"+enrolled.ExecutionID, nil)
	assert.Equal(t, http.StatusNotFound, res.status)

	var executions struct {
		Executions []models.WorkflowExecution `json:"executions"`
		TotalCount int                        `json:"total_count"`
	}

	res = ta.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/executions?limit=10", nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &executions)
	assert.Equal(t, 1, executions.TotalCount)

	res = ta.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/executions?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, res.status)

	var logs struct {
		Logs []models.WorkflowExecutionLog `json:"logs"`
	}

	res = ta.do(t, http.MethodGet, "/executions/"+enrolled.ExecutionID+"/logs", nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &logs)
	require.NotEmpty(t, logs.Logs)
	assert.Equal(t, models.LogEnrolled, logs.Logs[0].EventType)

	res = ta.do(t, http.MethodPost, "/executions/"+enrolled.ExecutionID+"/events", models.ExternalEvent{Name: "vaccinated"})
	assert.Equal(t, http.StatusConflict, res.status, "the execution is not waiting for an event")

	res = ta.do(t, http.MethodPost, "/executions/"+enrolled.ExecutionID+"/cancel", nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &execution)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.Equal(t, "user:7", execution.Metadata.CancelledBy)

	res = ta.do(t, http.MethodPost, "/executions/"+enrolled.ExecutionID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, res.status)
}

func TestAPIHandlers_EnrollIntoDraftWorkflow(t *testing.T) {
	ta := setupTestApp(t)

	var workflow models.Workflow

	res := ta.do(t, http.MethodPost, "/workflows", createBody())
	require.Equal(t, http.StatusCreated, res.status)
	res.decode(t, &workflow)

	res = ta.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enroll", web.EnrollRequest{RecordID: "pet-1"})
	assert.Equal(t, http.StatusConflict, res.status)
}

func TestAPIHandlers_NotFound(t *testing.T) {
	ta := setupTestApp(t)

	tests := []struct {
		method       string
		path         string
		expectedType string
	}{
		{http.MethodGet, "/workflows/missing", "workflow_not_found"},
		{http.MethodPost, "/workflows/missing/activate", "workflow_not_found"},
		{http.MethodDelete, "/workflows/missing", "workflow_not_found"},
		{http.MethodGet, "/workflows/missing/executions", "workflow_not_found"},
		{http.MethodGet, "/executions/missing", "execution_not_found"},
		{http.MethodGet, "/executions/missing/logs", "execution_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			res := ta.do(t, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusNotFound, res.status)
			assert.Equal(t, tt.expectedType, res.problem(t)["type"])
		})
	}
}

func TestAPIHandlers_PublishRecordEvent(t *testing.T) {
	ta := setupTestApp(t)
	ta.bus.On("Publish", mock.Anything, "pet-1", mock.Anything).Return(nil).Once()

	var ack web.RecordEventResponse

	res := ta.do(t, http.MethodPost, "/records/events", map[string]any{
		"record_type": "pet",
		"record_id":   "pet-1",
		"event_type":  "created",
		"record":      map[string]any{"id": "pet-1", "species": "dog"},
	})
	require.Equal(t, http.StatusAccepted, res.status, string(res.body))
	res.decode(t, &ack)
	assert.NotEmpty(t, ack.EventID)

	res = ta.do(t, http.MethodPost, "/records/events", map[string]any{
		"record_type": "pet",
		"record_id":   "pet-1",
		"event_type":  "deleted",
		"record":      map[string]any{"id": "pet-1"},
	})
	assert.Equal(t, http.StatusBadRequest, res.status)

	ta.bus.AssertExpectations(t)
}

func TestAPIHandlers_HealthAndActions(t *testing.T) {
	ta := setupTestApp(t)

	res := ta.doAs(t, "", http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, res.status)

	var health map[string]any
	res.decode(t, &health)
	assert.Equal(t, "healthy", health["status"])

	var actions []web.ActionResponse

	res = ta.doAs(t, "", http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &actions)
	require.Len(t, actions, 1)
	assert.Equal(t, "log", actions[0].ID)
	assert.NotEmpty(t, actions[0].Schema)
}
