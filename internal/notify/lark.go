// Package notify posts triage notifications to a chat channel. Notifications
// are best effort: a delivery failure is logged and never propagated back to
// the decision engine.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
)

// LarkConfig holds the Lark messenger credentials.
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// LarkMessenger sends messages through the Lark open platform.
type LarkMessenger struct {
	client *lark.Client
	logger *zap.Logger
}

// NewLarkMessenger creates a Lark-backed message sender.
func NewLarkMessenger(cfg LarkConfig, logger *zap.Logger) *LarkMessenger {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelWarn),
		lark.WithEnableTokenCache(true),
	)
	return &LarkMessenger{client: client, logger: logger}
}

// SendMessage sends a plain text message to a chat.
func (m *LarkMessenger) SendMessage(ctx context.Context, receiveID string, content string) error {
	body, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("marshal message content: %w", err)
	}
	return m.send(ctx, receiveID, "text", string(body))
}

// SendCardMessage sends an interactive card to a chat.
func (m *LarkMessenger) SendCardMessage(ctx context.Context, receiveID string, cardContent interface{}) error {
	body, err := json.Marshal(cardContent)
	if err != nil {
		return fmt.Errorf("marshal card content: %w", err)
	}
	return m.send(ctx, receiveID, "interactive", string(body))
}

func (m *LarkMessenger) send(ctx context.Context, receiveID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.Success() {
		m.logger.Error("Messaging API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("messaging API error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	m.logger.Debug("Notification sent", zap.String("receive_id", receiveID))
	return nil
}

var _ port.MessageSender = (*LarkMessenger)(nil)
