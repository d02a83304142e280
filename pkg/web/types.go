package web

const (
	// TenantHeader carries the tenant every request acts on.
	TenantHeader = "X-Tenant-ID"
	// UserHeader identifies the user behind manual enrollments and cancellations.
	UserHeader = "X-User-ID"

	tenantLocal = "tenant_id"
)

// EnrollRequest is the body of a manual enrollment.
type EnrollRequest struct {
	RecordID string `json:"record_id" validate:"required"`
}

// DeleteWorkflowResponse reports how many live executions a deletion cancelled.
type DeleteWorkflowResponse struct {
	ID                  string `json:"id"`
	CancelledExecutions int    `json:"cancelled_executions"`
}

// RecordEventResponse acknowledges a published record event.
type RecordEventResponse struct {
	EventID string `json:"event_id"`
}

// ActionResponse describes one registered action type.
type ActionResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
