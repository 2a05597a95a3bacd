package engine

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

const denyQuery = "data.orgaccess.invitation.deny"

// DefaultInvitationPolicy allows every role the role lattice allows except manager,
// which members only reach by promotion after joining.
const DefaultInvitationPolicy = `package orgaccess.invitation

deny contains msg if {
	input.role == "manager"
	msg := "the manager role cannot be offered by invitation; promote the member after they join"
}
`

// OPAEvaluator evaluates the invitation policy with OPA Rego. The query is prepared once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module, or DefaultInvitationPolicy when module is empty.
// The module must declare package orgaccess.invitation and a deny set of strings.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultInvitationPolicy
	}
	q, err := rego.New(
		rego.Query(denyQuery),
		rego.Module("invitation.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile invitation policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadOPAEvaluator reads the policy from path. An empty path selects the default policy.
func LoadOPAEvaluator(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read invitation policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// HealthCheck evaluates the prepared policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateInvitation(ctx, InvitationInput{
		OrgID:       "healthcheck",
		InviterRole: "owner",
		Role:        "member",
		Email:       "healthcheck@example.com",
		EmailDomain: "example.com",
	})
	return err
}

// EvaluateInvitation returns Allowed when the policy produces no deny messages.
// Evaluation errors are returned; callers treat them as a failure, not an allow.
func (e *OPAEvaluator) EvaluateInvitation(ctx context.Context, in InvitationInput) (Decision, error) {
	input := map[string]interface{}{
		"org_id":       in.OrgID,
		"inviter_role": in.InviterRole,
		"role":         in.Role,
		"email":        in.Email,
		"email_domain": in.EmailDomain,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("eval invitation policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// An undefined deny set denies nothing.
		return Decision{Allowed: true}, nil
	}
	var reasons []string
	switch v := rs[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				reasons = append(reasons, s)
			} else {
				reasons = append(reasons, fmt.Sprint(item))
			}
		}
	default:
		return Decision{}, fmt.Errorf("invitation policy: deny must be a set of strings, got %T", v)
	}
	sort.Strings(reasons)
	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}
