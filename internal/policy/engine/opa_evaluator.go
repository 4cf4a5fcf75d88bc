package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"genieacs-portal/internal/policy/domain"
)

const allowQuery = "data.portal.authz.allow"

// DefaultPolicy lets admins do anything and customers act only on the device bound to their
// session.
const DefaultPolicy = `package portal.authz

default allow := false

allow if {
	input.subject.role == "admin"
}

allow if {
	input.subject.role == "customer"
	startswith(input.action, "device.")
	input.subject.device_id != ""
	input.resource.device_id == input.subject.device_id
}
`

// OPAAuthorizer evaluates a Rego policy compiled once at construction.
type OPAAuthorizer struct {
	compiler *ast.Compiler
	query    rego.PreparedEvalQuery
	logger   *zap.Logger
}

// NewOPAAuthorizer compiles module, or DefaultPolicy when module is empty. logger may be nil.
func NewOPAAuthorizer(ctx context.Context, module string, logger *zap.Logger) (*OPAAuthorizer, error) {
	if module == "" {
		module = DefaultPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAAuthorizer{compiler: compiler, query: pq, logger: logger}, nil
}

// Allow evaluates req against the policy.
func (a *OPAAuthorizer) Allow(ctx context.Context, req domain.Request) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(buildInput(req)))
	if err != nil {
		a.logger.Error("policy: evaluation failed", zap.String("action", string(req.Action)), zap.Error(err))
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck verifies that the compiled policy still evaluates. Returns nil on success.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	q := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(a.compiler),
		rego.Input(buildInput(domain.Request{Action: domain.ActionDeviceView})),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

func buildInput(req domain.Request) map[string]interface{} {
	return map[string]interface{}{
		"subject": map[string]interface{}{
			"role":      req.Subject.Role,
			"username":  req.Subject.Username,
			"device_id": req.Subject.DeviceID,
		},
		"action": string(req.Action),
		"resource": map[string]interface{}{
			"device_id": req.DeviceID,
		},
	}
}
