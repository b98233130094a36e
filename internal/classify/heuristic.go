package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

// ignoreMarkers flag senders and content that never need a reply.
var ignoreMarkers = []string{
	"unsubscribe",
	"newsletter",
	"no-reply",
	"noreply",
	"do not reply",
	"notification",
	"promotional",
	"% off",
	"limited time offer",
	"view in browser",
}

// ambiguityMarkers flag questions that cannot be answered without asking back.
var ambiguityMarkers = []string{
	"which one",
	"not sure which",
	"could you confirm",
	"can you clarify",
	"what exactly",
	"unclear",
	"the deadline",
	"the document you mentioned",
}

// Heuristic classifies email with keyword rules. It backs deployments without
// an OpenAI key and serves as the deterministic classifier in tests.
type Heuristic struct{}

// NewHeuristic creates a rule based classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Classify applies the keyword rules. It never fails.
func (h *Heuristic) Classify(ctx context.Context, em email.Context) (*port.ClassificationResult, error) {
	text := strings.ToLower(em.Subject + "\n" + em.Body)
	sender := strings.ToLower(em.Sender)

	if hits := countMarkers(text, sender); hits > 0 {
		confidence := 0.7 + 0.1*float64(hits)
		if confidence > 0.97 {
			confidence = 0.97
		}
		return &port.ClassificationResult{
			Category:   session.CategoryIgnore,
			Confidence: confidence,
			Reasoning:  "automated or promotional content markers found",
		}, nil
	}

	questions := extractQuestions(em.Body)
	if len(questions) > 0 {
		for _, marker := range ambiguityMarkers {
			if strings.Contains(text, marker) {
				return &port.ClassificationResult{
					Category:            session.CategoryInformationNeeded,
					Confidence:          0.55,
					Reasoning:           "question references context the message does not contain",
					ClarifyingQuestions: questions,
				}, nil
			}
		}
		return &port.ClassificationResult{
			Category:      session.CategoryAutoReply,
			Confidence:    0.6,
			Reasoning:     "direct question that can be answered from the message",
			ProposedReply: draftReply(em),
		}, nil
	}

	// Plain statements default to ignore, but with low confidence so the
	// workflow pauses for approval instead of discarding silently.
	return &port.ClassificationResult{
		Category:   session.CategoryIgnore,
		Confidence: 0.5,
		Reasoning:  "no question or action request detected",
	}, nil
}

func countMarkers(text, sender string) int {
	hits := 0
	for _, marker := range ignoreMarkers {
		if strings.Contains(text, marker) || strings.Contains(sender, marker) {
			hits++
		}
	}
	return hits
}

// extractQuestions returns the sentences ending in a question mark, capped at
// three.
func extractQuestions(body string) []string {
	var questions []string
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '.', '!', '\n':
			start = i + 1
		case '?':
			q := strings.TrimSpace(body[start : i+1])
			if q != "" {
				questions = append(questions, q)
			}
			start = i + 1
			if len(questions) == 3 {
				return questions
			}
		}
	}
	return questions
}

func draftReply(em email.Context) string {
	name := em.Sender
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	if dot := strings.IndexByte(name, '.'); dot > 0 {
		name = name[:dot]
	}
	return fmt.Sprintf("Hi %s,\n\nThanks for reaching out about %q. Yes, that works for me.\n\nBest regards", name, em.Subject)
}

var _ port.EmailClassifier = (*Heuristic)(nil)
