// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/petflow/pkg/actions/enrollment"
	logaction "github.com/dukex/petflow/pkg/actions/log"
	"github.com/dukex/petflow/pkg/actions/notify"
	"github.com/dukex/petflow/pkg/actions/task"
	"github.com/dukex/petflow/pkg/actions/updatefield"
	"github.com/dukex/petflow/pkg/actions/webhook"
	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/registry"
)

const webhookClientTimeout = 30 * time.Second

// Enrollments is what the enrollment actions need from the trigger evaluator.
type Enrollments interface {
	enrollment.Enroller
	enrollment.Unenroller
}

// ActionDependencies are the collaborators of the native actions. The API only validates
// configs, so it may leave Publisher and Enrollments nil.
type ActionDependencies struct {
	Records     persistence.RecordWriter
	Publisher   eventbus.EventPublisher
	Enrollments Enrollments
	HTTPClient  webhook.Doer
}

func nativeActions(deps ActionDependencies) []protocol.ActionFactory {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: webhookClientTimeout}
	}

	return []protocol.ActionFactory{
		logaction.NewActionFactory(),
		webhook.NewActionFactory(client),
		notify.NewEmailFactory(deps.Publisher),
		notify.NewSMSFactory(deps.Publisher),
		task.NewActionFactory(deps.Records),
		updatefield.NewActionFactory(deps.Records),
		enrollment.NewEnrollFactory(deps.Enrollments),
		enrollment.NewUnenrollFactory(deps.Enrollments),
	}
}

// NewRegistry registers every native action.
func NewRegistry(log *slog.Logger, deps ActionDependencies) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	for _, factory := range nativeActions(deps) {
		err := reg.RegisterAction(factory)
		if err != nil {
			return nil, fmt.Errorf("failed to register action %s: %w", factory.ID(), err)
		}
	}

	return reg, nil
}
