// Package rag implements the query side of a review: question rewriting,
// retrieval of supporting segments and answer synthesis.
package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_model.go -package=mocks contractaid/internal/rag ChatModel

import (
	"context"
	"unicode/utf8"

	"contractaid/internal/llm"
)

// ChatModel is a chat completion backend. *llm.Client implements it.
type ChatModel interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// preview truncates s for log output.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
