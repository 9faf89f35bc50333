package rag

import (
	"context"
	"fmt"

	"contractaid/internal/contextutil"
	"contractaid/internal/conversation"
	"contractaid/internal/llm"
	"contractaid/internal/retry"
)

// Synthesizer answers a question from retrieved context with one completion.
type Synthesizer struct {
	model  ChatModel
	params llm.ChatParams
	retry  retry.Policy
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(model ChatModel, params llm.ChatParams, policy retry.Policy) *Synthesizer {
	return &Synthesizer{model: model, params: params, retry: policy}
}

// Synthesize returns the model's answer to question given the retrieved context and the
// transcript so far. The answer is returned as produced; an empty answer
// is not an error here.
func (s *Synthesizer) Synthesize(ctx context.Context, transcript conversation.Transcript, question, contextText string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	messages := answerMessages(transcript, question, contextText)
	logger.DebugContext(ctx, "sending request to LLM",
		"messages", len(messages),
		"context_length", len(contextText),
		"question_preview", preview(question, 80),
	)

	var answer string
	err := retry.Do(ctx, s.retry, "synthesize answer", func(ctx context.Context) error {
		out, err := s.model.ChatWithMessages(ctx, messages, s.params)
		if err != nil {
			return err
		}
		answer = out
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return "", fmt.Errorf("failed to synthesize answer: %w", err)
	}

	logger.InfoContext(ctx, "received LLM response", "answer_length", len(answer))
	logger.DebugContext(ctx, "LLM answer", "answer", preview(answer, 500))
	return answer, nil
}
