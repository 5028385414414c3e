// Package actor carries the conversation a request runs for through a
// context, so that the LLM client can attribute prompts in its logs.
package actor

import "context"

type contextKey struct{}

// WithActor returns ctx carrying conversationID. An empty ID leaves ctx
// unchanged.
func WithActor(ctx context.Context, conversationID string) context.Context {
	if conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, conversationID)
}

// Actor returns the conversation ID of ctx, or "".
func Actor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(contextKey{}).(string)
	return s
}
