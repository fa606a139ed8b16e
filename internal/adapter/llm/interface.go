// Package llm provides the assessment model boundary and its provider clients.
package llm

import "context"

// Role is the author of a model turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation passed to the model.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is a provider-agnostic text generation request.
type GenerateRequest struct {
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature *float64
}

// Model generates assistant text from instructions and turns.
type Model interface {
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

// Ensure the provider clients implement Model.
var (
	_ Model = (*Client)(nil)
	_ Model = (*GenAIClient)(nil)
	_ Model = (*MockClient)(nil)
)

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
