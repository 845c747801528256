package generator

import (
	"context"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Prompt is a system instruction followed by role-tagged messages in order.
// The last message is the one the model answers.
type Prompt struct {
	System   string
	Messages []Message
}

type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Stream(ctx context.Context, prompt Prompt) (*Stream, error)
}
