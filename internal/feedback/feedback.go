// Package feedback composes operator feedback about reviewed cases and sends
// it through the chat webhook as a review message.
package feedback

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/webhook"
)

// SourceOptions are the case sources offered by the feedback form.
var SourceOptions = []string{
	"Наша база знаний",
	"проверенный канал Навчання",
	"непроверенный канал Навчання",
}

// Feedback is a draft or submitted feedback message.
type Feedback struct {
	ID        string               `json:"id"`
	Message   string               `json:"message,omitempty"`
	Cases     []casetext.Reference `json:"cases"`
	Summary   string               `json:"summary"`
	CreatedAt time.Time            `json:"created_at"`
}

// Sender delivers a webhook request.
type Sender interface {
	Send(ctx context.Context, req webhook.Request) *webhook.Result
}

// AuditLogger records submitted feedback.
type AuditLogger interface {
	LogFeedback(ctx context.Context, actor, feedbackID, summary string, caseIDs []string) error
}

// Composer drafts and submits feedback.
type Composer struct {
	sender    Sender
	bus       bus.Bus
	audit     AuditLogger
	extractor *casetext.Extractor
	logger    *log.Logger
}

// NewComposer wires a composer. bus and audit may be nil; a nil extractor
// uses the default one.
func NewComposer(sender Sender, eb bus.Bus, audit AuditLogger, extractor *casetext.Extractor, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if eb == nil {
		eb = bus.NewNullBus(logger)
	}
	if extractor == nil {
		extractor = casetext.NewExtractor(casetext.ExtractorOptions{})
	}
	return &Composer{sender: sender, bus: eb, audit: audit, extractor: extractor, logger: logger}
}

// Draft starts feedback for message, pre-filling the case list from the
// references found in it.
func (c *Composer) Draft(message string, initial *casetext.Reference) Feedback {
	return Feedback{
		ID:        uuid.NewString(),
		Message:   message,
		Cases:     c.extractor.Extract(message, initial),
		CreatedAt: time.Now(),
	}
}

// Submit forwards fb as a review message for sessionID. The bus and audit
// trail only see feedback the webhook accepted.
func (c *Composer) Submit(ctx context.Context, sessionID string, fb Feedback) *webhook.Result {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	cases := make([]casetext.Reference, 0, len(fb.Cases))
	for _, ref := range fb.Cases {
		ref.ID = strings.TrimSpace(ref.ID)
		if ref.ID != "" {
			cases = append(cases, ref)
		}
	}

	res := c.sender.Send(ctx, webhook.Request{
		Message:       fb.Message,
		SessionID:     sessionID,
		Review:        true,
		ReviewMessage: fb.Summary,
		Cases:         cases,
	})
	if !res.OK() {
		return res
	}

	if err := c.bus.PublishFeedback(ctx, bus.FeedbackMessage{
		FeedbackID: fb.ID,
		SessionID:  sessionID,
		Summary:    fb.Summary,
		Cases:      cases,
		Timestamp:  time.Now().Unix(),
	}); err != nil {
		c.logger.Printf("failed to publish feedback %s: %v", fb.ID, err)
	}
	if c.audit != nil {
		if err := c.audit.LogFeedback(ctx, sessionID, fb.ID, fb.Summary, casetext.IDs(cases)); err != nil {
			c.logger.Printf("failed to audit feedback %s: %v", fb.ID, err)
		}
	}
	return res
}
