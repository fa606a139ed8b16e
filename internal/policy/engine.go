// Package policy gates core operations by the caller's verified role.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/xiaot623/medeval/internal/domain"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document the policy is evaluated against.
type Input struct {
	Action    domain.Action `json:"action"`
	Role      domain.Role   `json:"role"`
	ActorID   string        `json:"actor_id"`
	SubjectID string        `json:"subject_id,omitempty"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.evaluation_policy.allow"),
		rego.Module("evaluation_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Allowed reports whether the policy allows the input.
func (e *Engine) Allowed(ctx context.Context, in Input) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// The policy defines a default, so an empty result means the rule is missing.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

// Authorize returns a Forbidden error when the principal may not perform action.
func (e *Engine) Authorize(ctx context.Context, p domain.Principal, action domain.Action, subjectID string) error {
	allowed, err := e.Allowed(ctx, Input{
		Action:    action,
		Role:      p.Role,
		ActorID:   p.ActorID,
		SubjectID: subjectID,
	})
	if err != nil {
		return err
	}
	if !allowed {
		return domain.Forbidden("insufficient permissions for %s", action)
	}
	return nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package evaluation_policy

import rego.v1

default allow := false

evaluator_actions := {
	"session.start",
	"session.find_open",
	"session.read",
	"session.turn",
	"session.finalize",
}

allow if {
	input.action in evaluator_actions
	input.role in {"evaluator", "admin"}
}

# Trainees may list only their own sessions.
allow if {
	input.action == "subject.sessions"
	input.role == "student"
	input.actor_id != ""
	input.actor_id == input.subject_id
}
`
