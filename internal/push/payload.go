package push

import (
	"pulsegate/internal/model"
)

// Payload is the provider-neutral push content built from one
// notification. Alert fields hold only non-empty values; providers omit
// whatever is empty rather than sending blank strings. Data is the
// notification's meta map passed through untouched.
type Payload struct {
	Topic    string
	Title    string
	Subtitle string
	Body     string
	// Sound and HighPriority are both driven by the same threshold: a
	// notification at or above it gets the attention sound and the
	// provider's high-priority queue.
	Sound        bool
	HighPriority bool
	Data         map[string]string
}

// BuildPayload derives the push payload from a notification. threshold is
// the configured high-priority cutoff.
func BuildPayload(n *model.Notification, threshold int) Payload {
	high := n.Priority >= threshold
	return Payload{
		Topic:        n.Topic,
		Title:        n.Title,
		Subtitle:     n.Subtitle,
		Body:         n.Content,
		Sound:        high,
		HighPriority: high,
		Data:         n.Meta,
	}
}
