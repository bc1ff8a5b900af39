package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"pulsegate/internal/model"
)

// Event types for the delivery stream.
const (
	EventPushRequested = "push_requested"
)

// Stream and consumer group names.
const (
	StreamDelivery        = "stream:delivery"
	ConsumerGroupDelivery = "delivery_workers"
)

// DeliveryEvent is one unit of asynchronous work on the delivery stream.
// The in-band socket push has already happened by the time an event is
// published; workers only run the provider fan-out.
type DeliveryEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	// PushRequested payload
	Notification *model.Notification `json:"notification,omitempty"`
	AccountIDs   []int64             `json:"account_ids,omitempty"`
}

// NewPushRequestedEvent schedules the provider fan-out for one logical
// notification across the target accounts.
func NewPushRequestedEvent(n *model.Notification, accountIDs []int64) DeliveryEvent {
	return DeliveryEvent{
		Type:         EventPushRequested,
		Timestamp:    time.Now().Unix(),
		Notification: n,
		AccountIDs:   accountIDs,
	}
}

// ToMap converts the event to a map for Redis XADD. Streams store
// field-value pairs, so the event body is serialized to JSON in a "data"
// field.
func (e DeliveryEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseDeliveryEvent parses a DeliveryEvent from stream message values.
func ParseDeliveryEvent(values map[string]interface{}) (DeliveryEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return DeliveryEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event DeliveryEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return DeliveryEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
