package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultPriority is the mid-range priority assigned when the caller does
// not specify one. Priorities at or above the configured high-priority
// threshold get the sound/attention flag on push payloads.
const DefaultPriority = 5

var (
	ErrEmptyNotification = errors.New("notification requires at least one of title, subtitle, content")
	ErrNoRecipients      = errors.New("notification requires at least one recipient account")
)

// Meta is an open-ended string-keyed map attached to a notification. It is
// stored as JSONB and passed through to push providers as custom data,
// never interpreted by the delivery engine.
type Meta map[string]string

// Value implements driver.Valuer for JSONB storage.
func (m Meta) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner for JSONB storage.
func (m *Meta) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	data, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scan meta: unexpected type %T", src)
	}
	return json.Unmarshal(data, m)
}

// Notification is one deliverable event for one account. Title, Subtitle
// and Content are individually optional but may not all be empty.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	Topic     string     `db:"topic" json:"topic"`
	Title     string     `db:"title" json:"title,omitempty"`
	Subtitle  string     `db:"subtitle" json:"subtitle,omitempty"`
	Content   string     `db:"content" json:"content,omitempty"`
	Meta      Meta       `db:"meta" json:"meta,omitempty"`
	Priority  int        `db:"priority" json:"priority"`
	ViewedAt  *time.Time `db:"viewed_at" json:"viewed_at,omitempty"`
	AccountID int64      `db:"account_id" json:"account_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// NewNotification constructs a notification, rejecting the completely
// empty case up front. A zero priority gets the mid-range default. The ID
// is generated here so deferred inserts can be retried idempotently.
func NewNotification(topic, title, subtitle, content string, meta Meta, priority int) (*Notification, error) {
	if title == "" && subtitle == "" && content == "" {
		return nil, ErrEmptyNotification
	}
	if priority == 0 {
		priority = DefaultPriority
	}
	return &Notification{
		ID:        uuid.NewString(),
		Topic:     topic,
		Title:     title,
		Subtitle:  subtitle,
		Content:   content,
		Meta:      meta,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CloneFor produces a copy of the notification addressed to a single
// account, with its own ID. Used when one logical notification fans out
// to many accounts.
func (n *Notification) CloneFor(accountID int64) *Notification {
	clone := *n
	clone.ID = uuid.NewString()
	clone.AccountID = accountID
	return &clone
}

// NotificationListResponse is the notification list response.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// MarkViewedRequest is the request body for marking notifications viewed.
type MarkViewedRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

// NotifyRequest is the request body for the internal notify endpoint used
// by other services to trigger a delivery.
type NotifyRequest struct {
	Topic      string  `json:"topic"`
	Title      string  `json:"title"`
	Subtitle   string  `json:"subtitle"`
	Content    string  `json:"content"`
	Meta       Meta    `json:"meta"`
	Priority   int     `json:"priority"`
	AccountIDs []int64 `json:"account_ids"`
	Persist    bool    `json:"persist"`
}
