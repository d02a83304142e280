package notify

import (
	"context"
	"encoding/json"

	"github.com/dukex/petflow/pkg/actions"
	"github.com/dukex/petflow/pkg/eventbus"
	"github.com/dukex/petflow/pkg/events"
	"github.com/dukex/petflow/pkg/protocol"
)

// ActionFactory builds send_email or send_sms actions.
type ActionFactory struct {
	channel   events.NotificationChannel
	publisher eventbus.EventPublisher
}

// NewEmailFactory creates the send_email factory.
func NewEmailFactory(publisher eventbus.EventPublisher) *ActionFactory {
	return &ActionFactory{channel: events.ChannelEmail, publisher: publisher}
}

// NewSMSFactory creates the send_sms factory.
func NewSMSFactory(publisher eventbus.EventPublisher) *ActionFactory {
	return &ActionFactory{channel: events.ChannelSMS, publisher: publisher}
}

func (f *ActionFactory) ID() string {
	if f.channel == events.ChannelSMS {
		return "send_sms"
	}

	return "send_email"
}

func (f *ActionFactory) Name() string {
	if f.channel == events.ChannelSMS {
		return "Send SMS"
	}

	return "Send Email"
}

func (f *ActionFactory) Description() string {
	if f.channel == events.ChannelSMS {
		return "Queues a text message for the notifier. Recipient and body support templating."
	}

	return "Queues an email for the notifier. Recipient, subject and body support templating."
}

// Create decodes the config for the factory's channel.
func (f *ActionFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	var err error
	if f.channel == events.ChannelSMS {
		var sms SMSConfig

		err = actions.DecodeConfig(config, &sms)
		cfg = Config{To: sms.To, Body: sms.Body}
	} else {
		var email EmailConfig

		err = actions.DecodeConfig(config, &email)
		cfg = Config(email)
	}

	if err != nil {
		return nil, err
	}

	err = actions.CheckTemplates(map[string]string{"to": cfg.To, "subject": cfg.Subject, "body": cfg.Body})
	if err != nil {
		return nil, err
	}

	return NewAction(f.channel, cfg, f.publisher), nil
}

func (f *ActionFactory) Schema() map[string]any {
	properties := map[string]any{
		"to": map[string]any{
			"type":        "string",
			"description": "Recipient. Usually a template such as {{ .record.email }}.",
		},
		"body": map[string]any{
			"type":        "string",
			"format":      "code",
			"description": "Message body. Supports templating.",
		},
	}

	if f.channel == events.ChannelSMS {
		properties["to"].(map[string]any)["examples"] = []string{"{{ .record.phone }}"}

		return map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   []string{"to", "body"},
		}
	}

	properties["to"].(map[string]any)["examples"] = []string{"{{ .record.email }}"}
	properties["subject"] = map[string]any{
		"type":        "string",
		"description": "Email subject. Supports templating.",
		"examples":    []string{"{{ .record.name }} is due for a vaccination"},
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{"to", "subject", "body"},
	}
}
