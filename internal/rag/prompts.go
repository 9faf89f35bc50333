package rag

import (
	"strings"

	"contractaid/internal/conversation"
	"contractaid/internal/document"
	"contractaid/internal/llm"
)

const (
	rewriteInstruction = "Given the following conversation about a codebase and a follow up question, " +
		"rephrase the follow up question to be a standalone question."

	answerInstruction = "Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer."
)

// historyMessages renders the transcript as alternating user and assistant messages.
func historyMessages(t conversation.Transcript) []llm.Message {
	turns := t.Turns()
	msgs := make([]llm.Message, 0, 2*len(turns))
	for _, turn := range turns {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: turn.Question},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer},
		)
	}
	return msgs
}

// rewriteMessages builds the prompt that turns a follow-up into a standalone question.
func rewriteMessages(t conversation.Transcript, question string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: rewriteInstruction}}
	msgs = append(msgs, historyMessages(t)...)
	return append(msgs, llm.Message{
		Role:    llm.RoleUser,
		Content: "Follow Up Input: " + question + "\nStandalone question:",
	})
}

// answerMessages builds the prompt that answers question from the retrieved context only.
func answerMessages(t conversation.Transcript, question, contextText string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: answerInstruction + "\n\n" + contextText + "\n\n"}}
	msgs = append(msgs, historyMessages(t)...)
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: "Question: " + question})
}

// formatContext joins segments in rank order, each under its source path.
func formatContext(segments []document.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("source: ")
		b.WriteString(seg.SourcePath)
		b.WriteString("\n")
		b.WriteString(seg.Text)
	}
	return b.String()
}
