// Package models - webhook.go defines the Webhook model: an owner-scoped HTTP request
// definition that can be dispatched on demand.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// DefaultWebhookMethod is used when a webhook is created without a method
const DefaultWebhookMethod = "GET"

// Headers is a flat header map persisted as JSONB
type Headers map[string]string

// Value implements driver.Valuer. A nil map is stored as SQL NULL.
func (h Headers) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner
func (h *Headers) Scan(src interface{}) error {
	if src == nil {
		*h = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("models: unsupported type for Headers")
	}
	return json.Unmarshal(raw, h)
}

// Webhook represents a registered HTTP callback target
type Webhook struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Method    string    `db:"method" json:"method"`
	URL       string    `db:"url" json:"url"`
	Headers   Headers   `db:"headers" json:"headers"`
	Body      *string   `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsOwnedBy reports whether userID owns the webhook
func (w *Webhook) IsOwnedBy(userID string) bool {
	return w.UserID == userID
}
