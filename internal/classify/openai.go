// Package classify produces triage classifications for incoming email: the
// category the workflow branches on, a confidence score, and the category
// specific artifacts (a proposed reply draft or clarifying questions).
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

// Classifier implements port.EmailClassifier using OpenAI.
type Classifier struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewClassifier creates an OpenAI backed email classifier.
func NewClassifier(apiKey, model string, temperature float32, logger *zap.Logger) *Classifier {
	return &Classifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Classify categorizes an email into ignore, autoReply or informationNeeded.
func (c *Classifier) Classify(ctx context.Context, em email.Context) (*port.ClassificationResult, error) {
	c.logger.Debug("Classifying email",
		zap.String("message_id", em.MessageID),
		zap.String("sender", em.Sender))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an email triage assistant. Classify incoming email and draft the follow-up artifacts. Always respond with valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildClassifyPrompt(em),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var result classifyResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Fallback: try to extract JSON from markdown code blocks
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			c.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	out, err := toClassification(&result)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Email classified",
		zap.String("message_id", em.MessageID),
		zap.String("category", string(out.Category)),
		zap.Float64("confidence", out.Confidence))

	return out, nil
}

type classifyResult struct {
	Classification      string   `json:"classification"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	ProposedReply       string   `json:"proposed_reply"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}

// toClassification validates and converts the raw model output.
func toClassification(r *classifyResult) (*port.ClassificationResult, error) {
	category := protocol.DecodeCategory(r.Classification)
	if category == "" {
		return nil, fmt.Errorf("unrecognized classification %q", r.Classification)
	}

	confidence := r.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &port.ClassificationResult{
		Category:            category,
		Confidence:          confidence,
		Reasoning:           r.Reasoning,
		ProposedReply:       strings.TrimSpace(r.ProposedReply),
		ClarifyingQuestions: r.ClarifyingQuestions,
	}, nil
}

// buildClassifyPrompt builds the triage classification prompt.
func buildClassifyPrompt(em email.Context) string {
	return fmt.Sprintf(`Triage this email into exactly one category:

- "ignore": promotional mail, newsletters, automated notifications, anything that needs no reply
- "auto_reply": a routine message you can answer directly; draft the reply
- "information_needed": the email cannot be answered without clarification from the recipient; list the questions

**Email:**
From: %s
Subject: %s

%s

Respond with ONLY a valid JSON object (no markdown, no explanation):
{
  "classification": "ignore" | "auto_reply" | "information_needed",
  "confidence": number between 0.0 and 1.0,
  "reasoning": string explaining the category choice,
  "proposed_reply": string, the full reply draft (required for auto_reply, otherwise ""),
  "clarifying_questions": [string array, required for information_needed, otherwise empty]
}

Set confidence to reflect how certain the category is. Keep the proposed reply short, polite and specific to the email.`,
		em.Sender,
		em.Subject,
		em.Body,
	)
}

// extractJSON extracts the first JSON object from surrounding prose or
// markdown fences.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return content[start : i+1]
				}
			}
		}
	}

	return ""
}

var _ port.EmailClassifier = (*Classifier)(nil)
