package repository

import (
	"context"

	"genieacs-portal/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListRecent returns up to limit entries, newest first. A non-empty deviceID filters by device.
	ListRecent(ctx context.Context, deviceID string, limit int) ([]*domain.AuditLog, error)
}
