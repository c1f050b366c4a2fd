package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/mkovel/docchat/internal/loader"
	"github.com/mkovel/docchat/internal/storage"
	"github.com/mkovel/docchat/internal/vectorindex"
)

// fakeIndex tracks indexed chunks per file id and can be told to fail.
type fakeIndex struct {
	added         map[int64][]loader.Chunk
	addErr        error
	deleteErr     error
	searchErr     error
	searchResults []vectorindex.Result
	searchedWith  string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{added: map[int64][]loader.Chunk{}}
}

func (f *fakeIndex) Add(_ context.Context, chunks []loader.Chunk) error {
	if f.addErr != nil {
		return f.addErr
	}
	if len(chunks) > 0 {
		id := chunks[0].Meta.FileID
		f.added[id] = append(f.added[id], chunks...)
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, query string, _ int) ([]vectorindex.Result, error) {
	f.searchedWith = query
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeIndex) DeleteFile(_ context.Context, fileID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.added, fileID)
	return nil
}

// fakeLoader returns canned chunks regardless of path.
type fakeLoader struct {
	chunks []loader.Chunk
	err    error
}

func (f *fakeLoader) LoadAndSplit(string) ([]loader.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]loader.Chunk(nil), f.chunks...), nil
}

// fakeRewriter records the history it saw and echoes the question.
type fakeRewriter struct {
	sawHistory []storage.Message
	rewritten  string
	err        error
}

func (f *fakeRewriter) Rewrite(_ context.Context, _ string, history []storage.Message, question string) (string, error) {
	f.sawHistory = history
	if f.err != nil {
		return "", f.err
	}
	if f.rewritten != "" {
		return f.rewritten, nil
	}
	return question, nil
}

type fakeGenerator struct {
	answer string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, _, _ string, _ []vectorindex.Result, _ []storage.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// flakyStore wraps a real store with injectable failures.
type flakyStore struct {
	*storage.Store
	appendErr error
	deleteErr error
}

func (f *flakyStore) AppendTurn(sessionID, userQuery, response, model string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.Store.AppendTurn(sessionID, userQuery, response, model)
}

func (f *flakyStore) DeleteDocument(id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteDocument(id)
}

type fixture struct {
	pipeline  *Pipeline
	store     *flakyStore
	index     *fakeIndex
	loader    *fakeLoader
	rewriter  *fakeRewriter
	generator *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store: &flakyStore{Store: st},
		index: newFakeIndex(),
		loader: &fakeLoader{chunks: []loader.Chunk{
			{Text: "first"},
			{Text: "second"},
		}},
		rewriter:  &fakeRewriter{},
		generator: &fakeGenerator{answer: "the answer"},
	}
	f.pipeline = New(f.store, f.index, f.loader, f.rewriter, f.generator, nil, 2, nil)
	return f
}

func mustDocCount(t *testing.T, f *fixture) int {
	t.Helper()
	docs, err := f.store.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	return len(docs)
}

func TestIngestSuccess(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Ingest(context.Background(), "/tmp/report.pdf", "report.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Chunks != 2 {
		t.Errorf("Chunks = %d, want 2", res.Chunks)
	}
	if res.Filename != "report.pdf" {
		t.Errorf("Filename = %q", res.Filename)
	}

	// Chunks carry the assigned document id and the original filename.
	indexed := f.index.added[res.FileID]
	if len(indexed) != 2 {
		t.Fatalf("indexed %d chunks, want 2", len(indexed))
	}
	for i, c := range indexed {
		if c.Meta.FileID != res.FileID || c.Meta.Filename != "report.pdf" {
			t.Errorf("chunk %d meta = %+v", i, c.Meta)
		}
	}

	if n := mustDocCount(t, f); n != 1 {
		t.Errorf("document count = %d, want 1", n)
	}
}

func TestIngestUnsupportedExtensionChangesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), "/tmp/notes.txt", "notes.txt")
	if !errors.Is(err, loader.ErrUnsupportedFileType) {
		t.Fatalf("Ingest error = %v, want ErrUnsupportedFileType", err)
	}
	if n := mustDocCount(t, f); n != 0 {
		t.Errorf("document count = %d, want 0", n)
	}
	if len(f.index.added) != 0 {
		t.Errorf("index has %d files, want 0", len(f.index.added))
	}
}

func TestIngestIndexFailureRollsBackMetadata(t *testing.T) {
	f := newFixture(t)
	f.index.addErr = vectorindex.ErrIndexing

	_, err := f.pipeline.Ingest(context.Background(), "/tmp/report.pdf", "report.pdf")
	if !errors.Is(err, vectorindex.ErrIndexing) {
		t.Fatalf("Ingest error = %v, want ErrIndexing", err)
	}
	if n := mustDocCount(t, f); n != 0 {
		t.Errorf("document count after rollback = %d, want 0", n)
	}
}

func TestIngestLoaderFailureRollsBackMetadata(t *testing.T) {
	f := newFixture(t)
	f.loader.err = errors.New("corrupt file")

	if _, err := f.pipeline.Ingest(context.Background(), "/tmp/report.pdf", "report.pdf"); err == nil {
		t.Fatal("expected error from loader failure")
	}
	if n := mustDocCount(t, f); n != 0 {
		t.Errorf("document count after rollback = %d, want 0", n)
	}
}

func TestIngestIDsNotReusedAfterFailure(t *testing.T) {
	f := newFixture(t)

	first, err := f.pipeline.Ingest(context.Background(), "/tmp/a.pdf", "a.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f.index.addErr = errors.New("engine down")
	if _, err := f.pipeline.Ingest(context.Background(), "/tmp/b.pdf", "b.pdf"); err == nil {
		t.Fatal("expected failure")
	}

	f.index.addErr = nil
	third, err := f.pipeline.Ingest(context.Background(), "/tmp/c.pdf", "c.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if third.FileID <= first.FileID+1 {
		t.Errorf("third id = %d, want > %d (failed attempt's id not reused)", third.FileID, first.FileID+1)
	}
}

func TestDeleteRemovesBothStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, "/tmp/report.pdf", "report.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := f.pipeline.Delete(ctx, res.FileID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := mustDocCount(t, f); n != 0 {
		t.Errorf("document count = %d, want 0", n)
	}
	if _, ok := f.index.added[res.FileID]; ok {
		t.Error("vectors still present after delete")
	}
}

func TestDeleteVectorFailureKeepsDocumentIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, "/tmp/report.pdf", "report.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f.index.deleteErr = vectorindex.ErrDelete
	err = f.pipeline.Delete(ctx, res.FileID)
	if !errors.Is(err, vectorindex.ErrDelete) {
		t.Fatalf("Delete error = %v, want ErrDelete", err)
	}
	if errors.Is(err, ErrPartialDelete) {
		t.Error("vector failure must not be reported as partial delete")
	}
	// Nothing was removed; the document is still listed and searchable.
	if n := mustDocCount(t, f); n != 1 {
		t.Errorf("document count = %d, want 1", n)
	}
	if _, ok := f.index.added[res.FileID]; !ok {
		t.Error("vectors missing after failed delete")
	}
}

func TestDeleteMetadataFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, "/tmp/report.pdf", "report.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f.store.deleteErr = errors.New("disk full")
	err = f.pipeline.Delete(ctx, res.FileID)
	if !errors.Is(err, ErrPartialDelete) {
		t.Fatalf("Delete error = %v, want ErrPartialDelete", err)
	}
	// Document is still listed; retrying after the fault clears completes it.
	if n := mustDocCount(t, f); n != 1 {
		t.Errorf("document count = %d, want 1", n)
	}
	f.store.deleteErr = nil
	if err := f.pipeline.Delete(ctx, res.FileID); err != nil {
		t.Fatalf("retried Delete: %v", err)
	}
	if n := mustDocCount(t, f); n != 0 {
		t.Errorf("document count after retry = %d, want 0", n)
	}
}

func TestDeleteUnknownIDSucceeds(t *testing.T) {
	f := newFixture(t)

	if err := f.pipeline.Delete(context.Background(), 12345); err != nil {
		t.Errorf("Delete(12345) = %v, want nil", err)
	}
}

func TestAskNewSessionGeneratesID(t *testing.T) {
	f := newFixture(t)

	ans, err := f.pipeline.Ask(context.Background(), "", "llama3", "what is in my documents?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.SessionID == "" {
		t.Error("expected generated session id")
	}
	if ans.Text != "the answer" {
		t.Errorf("Text = %q", ans.Text)
	}

	turns, err := f.store.ListTurns(ans.SessionID)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].UserQuery != "what is in my documents?" || turns[0].Response != "the answer" || turns[0].Model != "llama3" {
		t.Errorf("turn = %+v", turns[0])
	}
}

func TestAskSecondTurnSeesHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ans, err := f.pipeline.Ask(ctx, "", "llama3", "first question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if _, err := f.pipeline.Ask(ctx, ans.SessionID, "llama3", "follow-up"); err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if len(f.rewriter.sawHistory) != 2 {
		t.Fatalf("rewriter saw %d history messages, want 2", len(f.rewriter.sawHistory))
	}
	if f.rewriter.sawHistory[0].Role != storage.RoleHuman || f.rewriter.sawHistory[1].Role != storage.RoleAI {
		t.Errorf("history roles = %q, %q", f.rewriter.sawHistory[0].Role, f.rewriter.sawHistory[1].Role)
	}
}

func TestAskRetrievesWithRewrittenQuestion(t *testing.T) {
	f := newFixture(t)
	f.rewriter.rewritten = "standalone form"

	if _, err := f.pipeline.Ask(context.Background(), "s1", "llama3", "its drawbacks?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if f.index.searchedWith != "standalone form" {
		t.Errorf("search query = %q, want the rewritten question", f.index.searchedWith)
	}
}

func TestAskGenerationFailureLeavesHistoryUnchanged(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errors.New("model crashed")

	_, err := f.pipeline.Ask(context.Background(), "s1", "llama3", "question")
	if err == nil {
		t.Fatal("expected error from generation failure")
	}
	turns, err := f.store.ListTurns("s1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns after failed generation, want 0", len(turns))
	}
}

func TestAskRetrievalFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.index.searchErr = vectorindex.ErrRetrieval

	_, err := f.pipeline.Ask(context.Background(), "s1", "llama3", "question")
	if !errors.Is(err, vectorindex.ErrRetrieval) {
		t.Errorf("Ask error = %v, want ErrRetrieval", err)
	}
}

func TestAskLogFailureStillReturnsAnswer(t *testing.T) {
	f := newFixture(t)
	f.store.appendErr = errors.New("disk full")

	ans, err := f.pipeline.Ask(context.Background(), "s1", "llama3", "question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "the answer" {
		t.Errorf("Text = %q", ans.Text)
	}
}

func TestAskSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.pipeline.Ask(ctx, "session-a", "llama3", "a question"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := f.pipeline.Ask(ctx, "session-b", "llama3", "b question"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(f.rewriter.sawHistory) != 0 {
		t.Errorf("session-b saw %d history messages from session-a", len(f.rewriter.sawHistory))
	}
}

func TestSearchDocuments(t *testing.T) {
	f := newFixture(t)
	f.index.searchResults = []vectorindex.Result{
		{Text: "match", FileID: 1, Filename: "a.pdf", Score: 0.9},
	}

	results, err := f.pipeline.SearchDocuments(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(results) != 1 || results[0].Text != "match" {
		t.Errorf("results = %+v", results)
	}
}

var (
	_ DocumentStore = (*flakyStore)(nil)
	_ ChunkIndex    = (*fakeIndex)(nil)
)
