package repository

import (
	"context"
	"database/sql"

	"genieacs-portal/internal/audit/domain"
)

const (
	insertAuditLog = `INSERT INTO audit_logs (id, actor, role, action, device_id, outcome, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listAuditLogs = `SELECT id, actor, role, action, device_id, outcome, ip, metadata, created_at
FROM audit_logs
WHERE ($1 = '' OR device_id = $1)
ORDER BY created_at DESC
LIMIT $2`
)

// PostgresRepository stores audit logs in the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, insertAuditLog,
		a.ID, a.Actor, a.Role, a.Action, a.DeviceID, a.Outcome, a.IP, meta, a.CreatedAt)
	return err
}

// ListRecent returns audit logs newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListRecent(ctx context.Context, deviceID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, listAuditLogs, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Actor, &a.Role, &a.Action, &a.DeviceID, &a.Outcome, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			a.Metadata = meta.String
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
