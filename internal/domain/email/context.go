package email

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mstrand/ai-mailtriage/pkg/utils"
)

// maxBodyRunes bounds the body text forwarded to the classification backend.
// Longer bodies are truncated, not rejected; the tail carries signatures and
// quoted history that add little to classification.
const maxBodyRunes = 16000

var (
	// ErrMissingSubjectAndBody is returned when an email carries neither a
	// subject nor a body; there is nothing to classify.
	ErrMissingSubjectAndBody = errors.New("email context requires a subject or a body")

	// ErrMissingSender is returned when the sender address is absent.
	ErrMissingSender = errors.New("email context requires a sender")
)

// Context is the read-only snapshot of the email being triaged, as supplied
// by the host mail client. The engine never writes back to the host.
type Context struct {
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"`
}

// Validate checks that the context carries enough to start a workflow.
func (c *Context) Validate() error {
	if strings.TrimSpace(c.Sender) == "" {
		return ErrMissingSender
	}
	if strings.TrimSpace(c.Subject) == "" && strings.TrimSpace(c.Body) == "" {
		return ErrMissingSubjectAndBody
	}
	return nil
}

// Normalize trims whitespace, truncates oversized bodies and assigns a
// message ID when the host did not provide one. It returns the context for
// chaining.
func (c *Context) Normalize() *Context {
	c.Subject = utils.SanitizeString(strings.TrimSpace(c.Subject))
	c.Sender = utils.SanitizeString(strings.TrimSpace(c.Sender))
	c.Body = strings.TrimSpace(c.Body)

	if runes := []rune(c.Body); len(runes) > maxBodyRunes {
		c.Body = string(runes[:maxBodyRunes])
	}

	if c.MessageID == "" {
		c.MessageID = uuid.NewString()
	}

	return c
}
