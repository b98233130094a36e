package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/dispatcher"
	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/event"
)

// Notifier turns triage events into chat messages. It subscribes to the
// decision-required and terminal events; intermediate transitions stay quiet.
type Notifier struct {
	sender    port.MessageSender
	receiveID string
	logger    *zap.Logger
}

// NewNotifier creates a notifier posting to the given chat.
func NewNotifier(sender port.MessageSender, receiveID string, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, receiveID: receiveID, logger: logger}
}

// Register subscribes the notifier to the events it announces.
func (n *Notifier) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeDecisionRequired, "triage-notifier", n.notify)
	d.SubscribeNamed(event.TypeWorkflowCompleted, "triage-notifier", n.notify)
	d.SubscribeNamed(event.TypeWorkflowDuplicate, "triage-notifier", n.notify)
	d.SubscribeNamed(event.TypeWorkflowFailed, "triage-notifier", n.notify)
}

// notify builds and sends the message. Delivery failures are logged and
// swallowed: a chat outage must not fail the dispatching workflow.
func (n *Notifier) notify(ctx context.Context, evt *event.Event) error {
	msg := BuildMessage(evt)
	if msg == "" {
		return nil
	}

	if err := n.sender.SendMessage(ctx, n.receiveID, msg); err != nil {
		n.logger.Warn("Notification delivery failed",
			zap.String("workflow_id", evt.WorkflowID),
			zap.String("event_type", evt.Type.String()),
			zap.Error(err))
	}
	return nil
}

// BuildMessage renders the notification text for an event. Unannounced event
// types render empty.
func BuildMessage(evt *event.Event) string {
	subject := evt.GetPayloadString(hitl.PayloadSubject)
	sender := evt.GetPayloadString(hitl.PayloadSender)

	var b strings.Builder
	switch evt.Type {
	case event.TypeDecisionRequired:
		b.WriteString("📥 Decision required\n")
		fmt.Fprintf(&b, "Subject: %s\nFrom: %s\n", subject, sender)
		if cat := evt.GetPayloadString(hitl.PayloadCategory); cat != "" {
			fmt.Fprintf(&b, "Classified: %s (%.0f%% confidence)\n",
				cat, evt.GetPayloadFloat(hitl.PayloadConfidence)*100)
		}
		if decisions, ok := evt.Payload[hitl.PayloadDecisions].([]string); ok && len(decisions) > 0 {
			fmt.Fprintf(&b, "Options: %s", strings.Join(decisions, ", "))
		}

	case event.TypeWorkflowCompleted:
		b.WriteString("✅ Triage completed\n")
		fmt.Fprintf(&b, "Subject: %s\nFrom: %s\n", subject, sender)
		if action := evt.GetPayloadString(hitl.PayloadFinalAction); action != "" {
			fmt.Fprintf(&b, "Outcome: %s", action)
		}

	case event.TypeWorkflowDuplicate:
		b.WriteString("ℹ️ Email was already triaged\n")
		fmt.Fprintf(&b, "Subject: %s\nFrom: %s", subject, sender)

	case event.TypeWorkflowFailed:
		b.WriteString("⚠️ Triage failed\n")
		fmt.Fprintf(&b, "Subject: %s\nFrom: %s\n", subject, sender)
		fmt.Fprintf(&b, "Reason: %s", evt.GetPayloadString(hitl.PayloadErrorKind))

	default:
		return ""
	}

	return b.String()
}
