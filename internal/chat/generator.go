package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkovel/docchat/internal/ollama"
	"github.com/mkovel/docchat/internal/storage"
	"github.com/mkovel/docchat/internal/vectorindex"
)

// ErrGeneration is returned when the model fails to produce an answer.
var ErrGeneration = errors.New("answer generation failed")

// Generator produces an answer grounded in retrieved document chunks.
type Generator struct {
	chatter Chatter
	logger  *slog.Logger
}

// NewGenerator creates a Generator over the given chat engine.
func NewGenerator(chatter Chatter, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{chatter: chatter, logger: logger}
}

// Generate answers the question from the retrieved chunks, with the chat
// history included for conversational continuity. With zero chunks the model
// still answers, just without document grounding.
func (g *Generator) Generate(ctx context.Context, model, question string, results []vectorindex.Result, history []storage.Message) (string, error) {
	system := answerPrompt + formatContext(results)

	messages := make([]ollama.Message, 0, len(history)+2)
	messages = append(messages, ollama.Message{Role: "system", Content: system})
	messages = append(messages, toOllamaMessages(history)...)
	messages = append(messages, ollama.Message{Role: "user", Content: question})

	answer, err := g.chatter.Chat(ctx, model, messages)
	if err != nil {
		g.logger.Error("generation failed", "model", model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return strings.TrimSpace(answer), nil
}

// formatContext joins retrieved chunk texts into the context block of the
// system prompt. Chunks appear in retrieval order, best first.
func formatContext(results []vectorindex.Result) string {
	if len(results) == 0 {
		return "(no relevant documents found)"
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n\n")
}
