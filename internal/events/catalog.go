// Package events is the durable fan-out boundary between the ingestion core
// and its asynchronous consumers. The core never calls downstream handlers
// directly; it only triggers named events through the Dispatcher.
package events

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Name identifies a domain event. The set of names is fixed at build time.
type Name string

// Domain event catalog
const (
	EmbeddingCreate          Name = "conversations/embedding.create"
	MessageCreated           Name = "conversations/message.created"
	EmailEnqueued            Name = "conversations/email.enqueued"
	AutoResponseCreate       Name = "conversations/auto-response.create"
	HumanSupportRequested    Name = "conversations/human-support-requested"
	SendFollowerNotification Name = "conversations/send-follower-notification"
)

// Handler kinds. Each maps to one downstream job worker registered outside
// this module.
const (
	HandlerEmbeddings           = "embeddings"
	HandlerSearchIndex          = "search-index"
	HandlerMergeDetection       = "merge-detection"
	HandlerRealtimePublish      = "realtime-publish"
	HandlerVIPNotification      = "vip-notification"
	HandlerIssueCategorization  = "issue-categorization"
	HandlerEmailDelivery        = "email-delivery"
	HandlerAutoResponse         = "auto-response"
	HandlerHumanEscalation      = "human-escalation"
	HandlerFollowerNotification = "follower-notification"
)

// EmbeddingCreatePayload asks for semantic indexing of a conversation
type EmbeddingCreatePayload struct {
	ConversationSlug string `json:"conversationSlug"`
}

// MessageCreatedPayload announces a newly persisted message
type MessageCreatedPayload struct {
	MessageID uint `json:"messageId"`
}

// EmailEnqueuedPayload schedules outbound email delivery
type EmailEnqueuedPayload struct {
	MessageID uint `json:"messageId"`
}

// AutoResponseCreatePayload asks for an AI response to a message
type AutoResponseCreatePayload struct {
	MessageID uint     `json:"messageId"`
	Tools     []string `json:"tools,omitempty"`
}

// HumanSupportRequestedPayload escalates a conversation to staff
type HumanSupportRequestedPayload struct {
	ConversationID uint `json:"conversationId"`
}

// SendFollowerNotificationPayload notifies conversation followers
type SendFollowerNotificationPayload struct {
	ConversationID    uint   `json:"conversationId"`
	EventType         string `json:"eventType"`
	TriggeredByUserID *uint  `json:"triggeredByUserId,omitempty"`
	EventDetails      string `json:"eventDetails,omitempty"`
}

// entry binds an event name to its fan-out targets and payload schema
type entry struct {
	handlers []string
	schema   *jsonschema.Schema
}

// Catalog is the static registry of domain events. It is built once at
// process start; there is no runtime mutation.
type Catalog struct {
	entries map[Name]entry
}

type catalogSpec struct {
	handlers []string
	schema   string
}

var catalogSpecs = map[Name]catalogSpec{
	EmbeddingCreate: {
		handlers: []string{HandlerEmbeddings},
		schema: `{
			"type": "object",
			"properties": {"conversationSlug": {"type": "string", "minLength": 1}},
			"required": ["conversationSlug"],
			"additionalProperties": false
		}`,
	},
	MessageCreated: {
		handlers: []string{
			HandlerSearchIndex,
			HandlerEmbeddings,
			HandlerMergeDetection,
			HandlerRealtimePublish,
			HandlerVIPNotification,
			HandlerIssueCategorization,
		},
		schema: `{
			"type": "object",
			"properties": {"messageId": {"type": "integer", "minimum": 1}},
			"required": ["messageId"],
			"additionalProperties": false
		}`,
	},
	EmailEnqueued: {
		handlers: []string{HandlerEmailDelivery},
		schema: `{
			"type": "object",
			"properties": {"messageId": {"type": "integer", "minimum": 1}},
			"required": ["messageId"],
			"additionalProperties": false
		}`,
	},
	AutoResponseCreate: {
		handlers: []string{HandlerAutoResponse},
		schema: `{
			"type": "object",
			"properties": {
				"messageId": {"type": "integer", "minimum": 1},
				"tools": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["messageId"],
			"additionalProperties": false
		}`,
	},
	HumanSupportRequested: {
		handlers: []string{HandlerHumanEscalation},
		schema: `{
			"type": "object",
			"properties": {"conversationId": {"type": "integer", "minimum": 1}},
			"required": ["conversationId"],
			"additionalProperties": false
		}`,
	},
	SendFollowerNotification: {
		handlers: []string{HandlerFollowerNotification},
		schema: `{
			"type": "object",
			"properties": {
				"conversationId": {"type": "integer", "minimum": 1},
				"eventType": {"type": "string", "minLength": 1},
				"triggeredByUserId": {"type": "integer"},
				"eventDetails": {"type": "string"}
			},
			"required": ["conversationId", "eventType"],
			"additionalProperties": false
		}`,
	},
}

// NewCatalog compiles every event's payload schema and returns the validated
// registry. A malformed schema is a programming error surfaced at startup.
func NewCatalog() (*Catalog, error) {
	compiler := jsonschema.NewCompiler()
	entries := make(map[Name]entry, len(catalogSpecs))

	for name, spec := range catalogSpecs {
		if len(spec.handlers) == 0 {
			return nil, fmt.Errorf("event %q has no handlers", name)
		}

		url := fmt.Sprintf("events/%s.json", name)
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(spec.schema))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for event %q: %w", name, err)
		}
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema for event %q: %w", name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for event %q: %w", name, err)
		}

		entries[name] = entry{handlers: spec.handlers, schema: schema}
	}

	return &Catalog{entries: entries}, nil
}

// Handlers returns the downstream handler kinds for an event
func (c *Catalog) Handlers(name Name) ([]string, bool) {
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.handlers, true
}

// Validate checks a marshaled payload against the event's schema
func (c *Catalog) Validate(name Name, payloadJSON []byte) error {
	e, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("unknown event %q", name)
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(payloadJSON)))
	if err != nil {
		return fmt.Errorf("payload for event %q is not valid JSON: %w", name, err)
	}
	if err := e.schema.Validate(inst); err != nil {
		return fmt.Errorf("payload for event %q rejected: %w", name, err)
	}
	return nil
}
