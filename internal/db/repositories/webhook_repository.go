// webhook_repository.go implements WebhookRepository and WebhookLogRepository. Webhook rows
// are owner-scoped and mutable; log rows are append-only and removed only by the cascade
// when their webhook is deleted.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by writes that target a row which no longer exists
var ErrNotFound = errors.New("record not found")

const webhookColumns = `id, user_id, method, url, headers, body, created_at, updated_at`

// WebhookRepository handles webhook database operations
type WebhookRepository struct {
	db *sqlx.DB
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// CreateWebhook inserts a webhook. The caller assigns the ID.
func (r *WebhookRepository) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	query := `
		INSERT INTO webhooks (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.UserID,
		w.Method,
		w.URL,
		w.Headers,
		w.Body,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}

	return nil
}

// GetWebhook retrieves a webhook by ID
func (r *WebhookRepository) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`

	var w models.Webhook
	err := r.db.GetContext(ctx, &w, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}

	return &w, nil
}

// ListWebhooksByUser retrieves all webhooks owned by userID, oldest first
func (r *WebhookRepository) ListWebhooksByUser(ctx context.Context, userID string) ([]models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE user_id = $1 ORDER BY created_at, id`

	webhooks := []models.Webhook{}
	err := r.db.SelectContext(ctx, &webhooks, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}

	return webhooks, nil
}

// UpdateWebhook writes the mutable fields of w. The owner never changes.
func (r *WebhookRepository) UpdateWebhook(ctx context.Context, w *models.Webhook) error {
	w.UpdatedAt = time.Now()

	query := `
		UPDATE webhooks
		SET method = $2, url = $3, headers = $4, body = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.Method,
		w.URL,
		w.Headers,
		w.Body,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}

	return requireAffected(result)
}

// DeleteWebhook removes a webhook; its logs go with it
func (r *WebhookRepository) DeleteWebhook(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	return requireAffected(result)
}

// CountWebhooks returns the number of registered webhooks
func (r *WebhookRepository) CountWebhooks(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM webhooks`)
	return count, err
}

// WebhookLogRepository handles webhook log database operations
type WebhookLogRepository struct {
	db *sqlx.DB
}

// NewWebhookLogRepository creates a new WebhookLogRepository
func NewWebhookLogRepository(db *sqlx.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// CreateWebhookLog appends a dispatch log. The caller assigns the ID.
func (r *WebhookLogRepository) CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO webhook_logs (id, webhook_id, status, headers, body, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		l.ID,
		l.WebhookID,
		l.Status,
		l.Headers,
		l.Body,
		l.DurationMS,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook log: %w", err)
	}

	return nil
}

// ListWebhookLogs returns the newest logs of a webhook, at most limit of them
func (r *WebhookLogRepository) ListWebhookLogs(ctx context.Context, webhookID string, limit int) ([]models.WebhookLog, error) {
	query := `
		SELECT id, webhook_id, status, headers, body, duration_ms, created_at
		FROM webhook_logs
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	logs := []models.WebhookLog{}
	err := r.db.SelectContext(ctx, &logs, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}

	return logs, nil
}

// CountWebhookLogs returns the number of stored dispatch logs
func (r *WebhookLogRepository) CountWebhookLogs(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM webhook_logs`)
	return count, err
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
