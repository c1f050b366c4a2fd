package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkovel/docchat/internal/ollama"
	"github.com/mkovel/docchat/internal/storage"
)

// Chatter is the chat-completion capability the rewriter and generator
// need. *ollama.Client satisfies it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// Rewriter reformulates a follow-up question into a standalone one using
// the session's chat history.
type Rewriter struct {
	chatter Chatter
	logger  *slog.Logger
}

// NewRewriter creates a Rewriter over the given chat engine.
func NewRewriter(chatter Chatter, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{chatter: chatter, logger: logger}
}

// Rewrite returns a standalone form of question. With empty history the
// question is returned verbatim and no model call is made. The model is
// instructed to reformulate only, never to answer.
func (r *Rewriter) Rewrite(ctx context.Context, model string, history []storage.Message, question string) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	messages := make([]ollama.Message, 0, len(history)+2)
	messages = append(messages, ollama.Message{Role: "system", Content: contextualizePrompt})
	messages = append(messages, toOllamaMessages(history)...)
	messages = append(messages, ollama.Message{Role: "user", Content: question})

	rewritten, err := r.chatter.Chat(ctx, model, messages)
	if err != nil {
		return "", fmt.Errorf("rewriting question: %w", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		// A blank rewrite would retrieve nothing useful; fall back to the original.
		return question, nil
	}

	r.logger.Debug("question rewritten", "original", question, "standalone", rewritten)
	return rewritten, nil
}

// toOllamaMessages maps stored history roles onto the chat API's roles.
func toOllamaMessages(history []storage.Message) []ollama.Message {
	out := make([]ollama.Message, len(history))
	for i, m := range history {
		role := "user"
		if m.Role == storage.RoleAI {
			role = "assistant"
		}
		out[i] = ollama.Message{Role: role, Content: m.Content}
	}
	return out
}
