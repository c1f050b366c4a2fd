package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mkovel/docchat/internal/ollama"
	"github.com/mkovel/docchat/internal/storage"
	"github.com/mkovel/docchat/internal/vectorindex"
)

// mockChatter records the last call and returns a canned reply or error.
type mockChatter struct {
	reply    string
	err      error
	calls    int
	lastMsgs []ollama.Message
}

func (m *mockChatter) Chat(_ context.Context, _ string, messages []ollama.Message) (string, error) {
	m.calls++
	m.lastMsgs = messages
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func history(pairs ...string) []storage.Message {
	msgs := make([]storage.Message, 0, len(pairs))
	for i, content := range pairs {
		role := storage.RoleHuman
		if i%2 == 1 {
			role = storage.RoleAI
		}
		msgs = append(msgs, storage.Message{Role: role, Content: content})
	}
	return msgs
}

func TestRewriteEmptyHistorySkipsModel(t *testing.T) {
	m := &mockChatter{reply: "should not be used"}
	r := NewRewriter(m, nil)

	got, err := r.Rewrite(context.Background(), "llama3", nil, "What is WAL mode?")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "What is WAL mode?" {
		t.Errorf("Rewrite = %q, want question verbatim", got)
	}
	if m.calls != 0 {
		t.Errorf("model called %d times for empty history", m.calls)
	}
}

func TestRewriteWithHistory(t *testing.T) {
	m := &mockChatter{reply: "What are the drawbacks of WAL mode in SQLite?"}
	r := NewRewriter(m, nil)

	h := history("Tell me about WAL mode", "WAL mode is a journal mode in SQLite...")
	got, err := r.Rewrite(context.Background(), "llama3", h, "What are its drawbacks?")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "What are the drawbacks of WAL mode in SQLite?" {
		t.Errorf("Rewrite = %q", got)
	}
	if m.calls != 1 {
		t.Fatalf("model called %d times, want 1", m.calls)
	}

	// System prompt must instruct reformulation, not answering.
	if m.lastMsgs[0].Role != "system" || !strings.Contains(m.lastMsgs[0].Content, "Do NOT answer") {
		t.Errorf("system message = %+v", m.lastMsgs[0])
	}
	// History roles map onto the chat API roles.
	if m.lastMsgs[1].Role != "user" || m.lastMsgs[2].Role != "assistant" {
		t.Errorf("history roles = %q, %q", m.lastMsgs[1].Role, m.lastMsgs[2].Role)
	}
	// Question comes last.
	last := m.lastMsgs[len(m.lastMsgs)-1]
	if last.Role != "user" || last.Content != "What are its drawbacks?" {
		t.Errorf("last message = %+v", last)
	}
}

func TestRewriteBlankReplyFallsBack(t *testing.T) {
	m := &mockChatter{reply: "   \n"}
	r := NewRewriter(m, nil)

	got, err := r.Rewrite(context.Background(), "llama3", history("a", "b"), "original question")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "original question" {
		t.Errorf("Rewrite = %q, want fallback to original", got)
	}
}

func TestRewriteModelError(t *testing.T) {
	m := &mockChatter{err: errors.New("connection refused")}
	r := NewRewriter(m, nil)

	if _, err := r.Rewrite(context.Background(), "llama3", history("a", "b"), "q"); err == nil {
		t.Error("expected error from failed model call")
	}
}

func TestGenerateIncludesContext(t *testing.T) {
	m := &mockChatter{reply: "The answer is 42."}
	g := NewGenerator(m, nil)

	results := []vectorindex.Result{
		{Text: "first chunk of context", FileID: 1},
		{Text: "second chunk of context", FileID: 2},
	}
	answer, err := g.Generate(context.Background(), "llama3", "what is the answer?", results, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "The answer is 42." {
		t.Errorf("answer = %q", answer)
	}

	system := m.lastMsgs[0]
	if system.Role != "system" {
		t.Fatalf("first message role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "first chunk of context") ||
		!strings.Contains(system.Content, "second chunk of context") {
		t.Errorf("system prompt missing context chunks: %q", system.Content)
	}
	if strings.Index(system.Content, "first chunk") > strings.Index(system.Content, "second chunk") {
		t.Error("chunks out of retrieval order in system prompt")
	}
}

func TestGenerateNoChunks(t *testing.T) {
	m := &mockChatter{reply: "I could not find that in your documents."}
	g := NewGenerator(m, nil)

	answer, err := g.Generate(context.Background(), "llama3", "obscure question", nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer == "" {
		t.Error("expected an answer even with no retrieved chunks")
	}
	if !strings.Contains(m.lastMsgs[0].Content, "no relevant documents") {
		t.Errorf("system prompt = %q", m.lastMsgs[0].Content)
	}
}

func TestGenerateIncludesHistory(t *testing.T) {
	m := &mockChatter{reply: "ok"}
	g := NewGenerator(m, nil)

	h := history("earlier question", "earlier answer")
	if _, err := g.Generate(context.Background(), "llama3", "follow-up", nil, h); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(m.lastMsgs) != 4 {
		t.Fatalf("got %d messages, want 4 (system, 2 history, question)", len(m.lastMsgs))
	}
	if m.lastMsgs[1].Content != "earlier question" || m.lastMsgs[2].Content != "earlier answer" {
		t.Errorf("history messages = %+v", m.lastMsgs[1:3])
	}
}

func TestGenerateModelError(t *testing.T) {
	m := &mockChatter{err: errors.New("model overloaded")}
	g := NewGenerator(m, nil)

	_, err := g.Generate(context.Background(), "llama3", "q", nil, nil)
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("Generate error = %v, want ErrGeneration", err)
	}
}
