package notify

import (
	"context"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
)

// NopSender discards every message. Installed when no messenger is
// configured, so the notifier wiring stays identical either way.
type NopSender struct{}

func (NopSender) SendMessage(context.Context, string, string) error {
	return nil
}

func (NopSender) SendCardMessage(context.Context, string, interface{}) error {
	return nil
}

var _ port.MessageSender = NopSender{}
