package engine

import (
	"context"

	"genieacs-portal/internal/policy/domain"
)

// Authorizer decides whether a session may perform an action.
type Authorizer interface {
	// Allow returns true only when the policy explicitly allows req. Evaluation errors deny.
	Allow(ctx context.Context, req domain.Request) (bool, error)
}
