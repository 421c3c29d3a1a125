// Package notification delivers alert messages to the subscribers of the
// alert topic.
package notification

import "context"

// Attribute names carried on alert messages.
const (
	AttrTenant    = "tenantId"
	AttrProduct   = "productId"
	AttrStock     = "stock"
	AttrThreshold = "threshold"
	// AttrRaisedAt is the RFC 3339 time of the change that raised the alert.
	AttrRaisedAt  = "raisedAt"
)

// Message is one notification. Text is the human readable body.
type Message struct {
	Subject    string            `json:"subject"`
	Text       string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher accepts messages for delivery. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

func (f PublisherFunc) Publish(ctx context.Context, msg Message) error { return f(ctx, msg) }
