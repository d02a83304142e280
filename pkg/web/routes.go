package web

import "github.com/gofiber/fiber/v3"

// Mount registers the tenant-scoped API under router.
func (h *APIHandlers) Mount(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/actions", h.GetActions)

	w := router.Group("/workflows", RequireTenant)
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Put("/:id/steps", h.SaveWorkflowSteps)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/pause", h.PauseWorkflow)
	w.Post("/:id/enroll", h.EnrollRecord)
	w.Get("/:id/executions", h.GetWorkflowExecutions)

	e := router.Group("/executions", RequireTenant)
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/events", h.DeliverExecutionEvent)

	r := router.Group("/records", RequireTenant)
	r.Post("/events", h.PublishRecordEvent)
}
