package ingest

// Disposition is the per-message outcome of a sync batch
type Disposition string

const (
	// DispositionIngested means the message was persisted and fanned out.
	DispositionIngested Disposition = "ingested"
	// DispositionIgnored means the message was persisted but classified as
	// needing no response; no response events were emitted.
	DispositionIgnored Disposition = "ignored"
	// DispositionDuplicate means the message was already persisted.
	DispositionDuplicate Disposition = "duplicate"
	// DispositionSkipped means the message was not persisted at all, with
	// the reason in Detail.
	DispositionSkipped Disposition = "skipped"
	// DispositionFailed means processing errored; the message may be
	// retried on a later delivery.
	DispositionFailed Disposition = "failed"
)

// Result reports what happened to one message reference in a sync batch
type Result struct {
	GmailMessageID   string      `json:"gmailMessageId"`
	GmailThreadID    string      `json:"gmailThreadId,omitempty"`
	Disposition      Disposition `json:"disposition"`
	ConversationSlug string      `json:"conversationSlug,omitempty"`
	Detail           string      `json:"detail,omitempty"`

	// Responded reports that auto-response generation was triggered for
	// the message; ClassifiedAsAutomated reports that the language model
	// flagged it as an automated reply or thank-you.
	Responded             bool `json:"responded"`
	ClassifiedAsAutomated bool `json:"classifiedAsAutomated"`
}
