package port

import (
	"context"

	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

// ClassificationResult represents the outcome of classifying one email
type ClassificationResult struct {
	Category            session.Category
	Confidence          float64
	Reasoning           string
	ProposedReply       string
	ClarifyingQuestions []string
}

// EmailClassifier defines AI classification operations
type EmailClassifier interface {
	Classify(ctx context.Context, email email.Context) (*ClassificationResult, error)
}

// MessageSender defines outbound notification operations
type MessageSender interface {
	SendMessage(ctx context.Context, receiveID string, content string) error
	SendCardMessage(ctx context.Context, receiveID string, cardContent interface{}) error
}
