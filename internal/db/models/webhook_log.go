// Package models - webhook_log.go defines the append-only WebhookLog written for every
// completed webhook dispatch.
package models

import "time"

// WebhookLog is the captured response of one dispatch
type WebhookLog struct {
	ID         string    `db:"id" json:"id"`
	WebhookID  string    `db:"webhook_id" json:"webhook_id"`
	Status     int       `db:"status" json:"status"`
	Headers    Headers   `db:"headers" json:"headers"`
	Body       *string   `db:"body" json:"body"` // nil when the response carried no body
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
