package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is a mock implementation of Model for local runs and tests.
type MockClient struct{}

// NewMockClient creates a new mock model client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Generate returns a canned response derived from the last user turn.
func (m *MockClient) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	var lastUserMessage string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == RoleUser {
			lastUserMessage = req.Turns[i].Content
			break
		}
	}

	if strings.HasPrefix(lastUserMessage, "Conversation:") {
		return "[MOCK] Ratings: A3 B3 C3 D3 E3 F3. Strengths: organized. Concerns: none noted. Suggestions: keep practicing. Overall rating: 3.", nil
	}
	if lastUserMessage == "" || len(req.Turns) == 1 {
		return "[MOCK] Hello! How would you describe the student's history-taking and physical exam skills?", nil
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. What else stood out about the student?", truncate(lastUserMessage, 100)), nil
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
