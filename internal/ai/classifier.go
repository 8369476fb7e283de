// Package ai wraps the language model capability used to classify inbound
// messages. The model itself is external; this package only owns prompting,
// timeouts, and the explicit availability outcome.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// Outcome is the result of a classification call. Unavailable means the
// model could not be consulted; callers decide the fail-open behavior
// explicitly instead of receiving a silent default.
type Outcome int

const (
	// OutcomeNoMatch means the message needs a response.
	OutcomeNoMatch Outcome = iota
	// OutcomeMatch means the message is a thank-you or auto-response
	// needing no reply.
	OutcomeMatch
	// OutcomeUnavailable means the classifier failed or timed out.
	OutcomeUnavailable
)

const classifyInstruction = `You are a customer support email triage assistant for the mailbox %q.
Reply with exactly "yes" if the following message is either:
- a pure thank-you message with no follow-up question or request, or
- an automatic reply such as an out-of-office or delivery notification.
Otherwise reply with exactly "no".

Message:
%s`

// DefaultTimeout bounds a single classification call.
const DefaultTimeout = 10 * time.Second

// Classifier asks a language model whether a message needs no reply
type Classifier struct {
	llm     llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

// NewClassifier creates a new Classifier instance
func NewClassifier(llm llms.Model, timeout time.Duration, logger *slog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{llm: llm, timeout: timeout, logger: logger}
}

// IsAutoResponseOrThankYou classifies a message body. Matching is an exact,
// case-insensitive, trimmed comparison against "yes". Any invocation failure
// yields OutcomeUnavailable; it never guesses on error.
func (c *Classifier) IsAutoResponseOrThankYou(ctx context.Context, mailbox *models.Mailbox, text string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(classifyInstruction, mailbox.Name, text)

	answer, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("classification call failed",
				slog.String("mailbox", mailbox.Slug),
				slog.Any("error", err))
		}
		return OutcomeUnavailable
	}

	if strings.EqualFold(strings.TrimSpace(answer), "yes") {
		return OutcomeMatch
	}
	return OutcomeNoMatch
}
