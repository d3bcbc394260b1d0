// audit_repository.go persists the request audit trail written by the audit middleware
// and reads it back with optional filters, newest first.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters narrows ListAuditLogs. Nil fields do not filter.
type AuditFilters struct {
	UserID       *string
	Action       *string
	ResourceType *string
	ResourceID   *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// clause renders the filters as a WHERE clause with ? placeholders
func (f AuditFilters) clause() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.UserID != nil {
		add("user_id = ?", *f.UserID)
	}
	if f.Action != nil {
		add("action = ?", *f.Action)
	}
	if f.ResourceType != nil {
		add("resource_type = ?", *f.ResourceType)
	}
	if f.ResourceID != nil {
		add("resource_id = ?", *f.ResourceID)
	}
	if f.StartDate != nil {
		add("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= ?", *f.EndDate)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// auditRow is the column mapping of audit_logs
type auditRow struct {
	ID           string    `db:"id"`
	UserID       *string   `db:"user_id"`
	Action       string    `db:"action"`
	ResourceType *string   `db:"resource_type"`
	ResourceID   *string   `db:"resource_id"`
	Metadata     []byte    `db:"metadata"`
	IPAddress    *string   `db:"ip_address"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row auditRow) model() (*models.AuditLog, error) {
	log := &models.AuditLog{
		ID:           row.ID,
		UserID:       row.UserID,
		Action:       row.Action,
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		IPAddress:    row.IPAddress,
		CreatedAt:    row.CreatedAt,
	}
	if row.Metadata != nil {
		if err := json.Unmarshal(row.Metadata, &log.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata %s: %w", row.ID, err)
		}
	}
	return log, nil
}

// CreateAuditLog assigns an ID and timestamp and inserts the entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	row := auditRow{
		ID:           log.ID,
		UserID:       log.UserID,
		Action:       log.Action,
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
		IPAddress:    log.IPAddress,
		CreatedAt:    log.CreatedAt,
	}
	if log.Metadata != nil {
		raw, err := json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		row.Metadata = raw
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, created_at)
		VALUES (:id, :user_id, :action, :resource_type, :resource_id, :metadata, :ip_address, :created_at)
	`, row)
	return err
}

// ListAuditLogs returns one page of matching entries, newest first, and the total
// number of matches
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where, args := filters.clause()

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM audit_logs`+where), args...); err != nil {
		return nil, 0, err
	}

	query := r.db.Rebind(`
		SELECT id, user_id, action, resource_type, resource_id, metadata, ip_address, created_at
		FROM audit_logs` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`)

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	logs := make([]*models.AuditLog, 0, len(rows))
	for _, row := range rows {
		log, err := row.model()
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	return logs, total, nil
}
