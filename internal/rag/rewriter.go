package rag

import (
	"context"
	"fmt"
	"strings"

	"contractaid/internal/contextutil"
	"contractaid/internal/conversation"
	"contractaid/internal/llm"
	"contractaid/internal/retry"
)

// QueryRewriter condenses a follow-up question and the transcript into a
// standalone question.
type QueryRewriter struct {
	model  ChatModel
	params llm.ChatParams
	retry  retry.Policy
}

// NewQueryRewriter creates a QueryRewriter.
func NewQueryRewriter(model ChatModel, params llm.ChatParams, policy retry.Policy) *QueryRewriter {
	return &QueryRewriter{model: model, params: params, retry: policy}
}

// Rewrite returns a standalone version of question. With an empty transcript
// the question is returned unchanged and the model is not called. A blank
// completion also falls back to the raw question.
func (r *QueryRewriter) Rewrite(ctx context.Context, transcript conversation.Transcript, question string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if transcript.Empty() {
		logger.DebugContext(ctx, "empty transcript, using question as is")
		return question, nil
	}

	messages := rewriteMessages(transcript, question)

	var standalone string
	err := retry.Do(ctx, r.retry, "rewrite question", func(ctx context.Context) error {
		out, err := r.model.ChatWithMessages(ctx, messages, r.params)
		if err != nil {
			return err
		}
		standalone = out
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to rewrite question", "error", err)
		return "", fmt.Errorf("failed to rewrite question: %w", err)
	}

	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		logger.WarnContext(ctx, "blank standalone question, using question as is")
		return question, nil
	}

	logger.InfoContext(ctx, "question rewritten",
		"turns", transcript.Len(),
		"question_preview", preview(question, 80),
		"standalone_preview", preview(standalone, 80),
	)
	return standalone, nil
}
