// Package notify provides the send_email and send_sms actions. Delivery is owned by an
// external notifier that consumes notification.requested events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/template"
)

// ErrEmptyRecipient is returned when the rendered recipient is blank.
var ErrEmptyRecipient = errors.New("rendered recipient is empty")

type EmailConfig struct {
	To      string `json:"to"      validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body"    validate:"required"`
}

type SMSConfig struct {
	To   string `json:"to"   validate:"required"`
	Body string `json:"body" validate:"required,max=1600"`
}

// Config is the channel-independent notification config.
type Config struct {
	To      string
	Subject string
	Body    string
}

type Action struct {
	channel   events.NotificationChannel
	config    Config
	publisher eventbus.EventPublisher
}

func NewAction(channel events.NotificationChannel, cfg Config, publisher eventbus.EventPublisher) *Action {
	return &Action{channel: channel, config: cfg, publisher: publisher}
}

// Execute renders the message and publishes it for the notifier.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	data := actionCtx.TemplateData()

	rendered := make(map[string]string, 3) //nolint:mnd // to, subject, body

	for name, value := range map[string]string{"to": a.config.To, "subject": a.config.Subject, "body": a.config.Body} {
		out, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s template: %w", name, err)
		}

		rendered[name] = strings.TrimSpace(out)
	}

	if rendered["to"] == "" {
		return nil, ErrEmptyRecipient
	}

	event := events.NotificationRequested{
		BaseEvent:   events.NewBaseEvent(events.NotificationRequestedEvent, actionCtx.TenantID),
		Channel:     a.channel,
		To:          rendered["to"],
		Subject:     rendered["subject"],
		Body:        rendered["body"],
		ExecutionID: actionCtx.ExecutionID,
		WorkflowID:  actionCtx.WorkflowID,
		StepID:      actionCtx.StepID,
		RecordID:    actionCtx.RecordID,
	}

	err := a.publisher.Publish(ctx, actionCtx.ExecutionID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to publish %s notification: %w", a.channel, err)
	}

	if actionCtx.Logger != nil {
		actionCtx.Logger.InfoContext(ctx, "notification queued",
			"channel", a.channel,
			"notification_id", event.ID,
			"execution_id", actionCtx.ExecutionID)
	}

	return map[string]any{
		"notification_id": event.ID,
		"channel":         string(a.channel),
		"to":              event.To,
	}, nil
}
