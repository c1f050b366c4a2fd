// Package pipeline orchestrates the document and question flows: ingestion
// (extract, chunk, embed, index), deletion, and history-aware question
// answering. It owns the consistency protocol between the metadata store and
// the vector index; neither side references the other directly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mkovel/docchat/internal/loader"
	"github.com/mkovel/docchat/internal/storage"
	"github.com/mkovel/docchat/internal/vectorindex"
)

// ErrPartialDelete is returned when the document's vectors were removed but
// the metadata row could not be. The document stays listed and a retried
// delete will succeed, since removing already-absent vectors is a no-op.
var ErrPartialDelete = errors.New("document partially deleted")

// DocumentStore is the metadata persistence the pipeline needs.
// *storage.Store satisfies it.
type DocumentStore interface {
	CreateDocument(filename string) (int64, error)
	DeleteDocument(id int64) error
	ListDocuments() ([]storage.Document, error)
	AppendTurn(sessionID, userQuery, response, model string) error
	GetHistory(sessionID string) ([]storage.Message, error)
}

// ChunkIndex is the vector index surface the pipeline needs.
// *vectorindex.Index satisfies it.
type ChunkIndex interface {
	Add(ctx context.Context, chunks []loader.Chunk) error
	Search(ctx context.Context, query string, k int) ([]vectorindex.Result, error)
	DeleteFile(ctx context.Context, fileID int64) error
}

// DocumentLoader extracts and splits a document file into chunks.
type DocumentLoader interface {
	LoadAndSplit(path string) ([]loader.Chunk, error)
}

// Rewriter folds chat history into a standalone question.
type Rewriter interface {
	Rewrite(ctx context.Context, model string, history []storage.Message, question string) (string, error)
}

// Generator produces an answer from retrieved chunks and history.
type Generator interface {
	Generate(ctx context.Context, model, question string, results []vectorindex.Result, history []storage.Message) (string, error)
}

// Reranker re-orders retrieved chunks by relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []vectorindex.Result) ([]vectorindex.Result, error)
}

var (
	_ DocumentStore  = (*storage.Store)(nil)
	_ ChunkIndex     = (*vectorindex.Index)(nil)
	_ DocumentLoader = (*loader.Loader)(nil)
)

// Pipeline wires the stores and model stages together.
type Pipeline struct {
	store     DocumentStore
	index     ChunkIndex
	loader    DocumentLoader
	rewriter  Rewriter
	generator Generator
	reranker  Reranker
	topK      int
	logger    *slog.Logger
}

// New assembles a Pipeline. reranker may be nil when reranking is disabled.
func New(store DocumentStore, index ChunkIndex, docLoader DocumentLoader, rewriter Rewriter, generator Generator, reranker Reranker, topK int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 2
	}
	return &Pipeline{
		store:     store,
		index:     index,
		loader:    docLoader,
		rewriter:  rewriter,
		generator: generator,
		reranker:  reranker,
		topK:      topK,
		logger:    logger,
	}
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	FileID   int64
	Filename string
	Chunks   int
}

// Ingest registers the document in the metadata store and indexes its
// chunks. The extension check runs before any state changes, so an
// unsupported file leaves both stores untouched. If indexing fails after the
// metadata row was created, the row is deleted so the document never appears
// listed without being searchable.
func (p *Pipeline) Ingest(ctx context.Context, path, filename string) (IngestResult, error) {
	if _, err := loader.Detect(filename); err != nil {
		return IngestResult{}, err
	}

	fileID, err := p.store.CreateDocument(filename)
	if err != nil {
		return IngestResult{}, fmt.Errorf("registering document: %w", err)
	}

	chunks, err := p.loader.LoadAndSplit(path)
	if err == nil {
		for i := range chunks {
			chunks[i].Meta.FileID = fileID
			chunks[i].Meta.Filename = filename
		}
		err = p.index.Add(ctx, chunks)
	}
	if err != nil {
		// Compensate: remove the metadata row so listing stays consistent
		// with the index. A failed compensation is logged and the document
		// can be removed later via Delete.
		if delErr := p.store.DeleteDocument(fileID); delErr != nil {
			p.logger.Error("rollback of document metadata failed",
				"file_id", fileID, "filename", filename, "error", delErr)
		}
		return IngestResult{}, fmt.Errorf("indexing %s: %w", filename, err)
	}

	p.logger.Info("document ingested", "file_id", fileID, "filename", filename, "chunks", len(chunks))
	return IngestResult{FileID: fileID, Filename: filename, Chunks: len(chunks)}, nil
}

// Delete removes a document from both stores, vectors first. The ordering
// guarantees the failure modes are benign: if the vector delete fails the
// document is fully intact and listed; if only the metadata delete fails the
// document is still listed and a retry completes it. Deleting an id that was
// never ingested succeeds.
func (p *Pipeline) Delete(ctx context.Context, fileID int64) error {
	if err := p.index.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	if err := p.store.DeleteDocument(fileID); err != nil {
		p.logger.Error("metadata delete failed after vectors were removed", "file_id", fileID, "error", err)
		return fmt.Errorf("%w: %v", ErrPartialDelete, err)
	}
	p.logger.Info("document deleted", "file_id", fileID)
	return nil
}

// ListDocuments returns the uploaded documents, newest first.
func (p *Pipeline) ListDocuments() ([]storage.Document, error) {
	return p.store.ListDocuments()
}

// Answer is the result of one question turn.
type Answer struct {
	SessionID string
	Model     string
	Text      string
}

// Ask answers a question within a session. An empty sessionID starts a new
// session with a generated id. The turn is logged only after the answer was
// produced, so history never contains failed turns; a failed log write is
// reported in the logs but does not discard the answer.
func (p *Pipeline) Ask(ctx context.Context, sessionID, model, question string) (Answer, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := p.store.GetHistory(sessionID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading history: %w", err)
	}

	standalone, err := p.rewriter.Rewrite(ctx, model, history, question)
	if err != nil {
		return Answer{}, err
	}

	results, err := p.index.Search(ctx, standalone, p.topK)
	if err != nil {
		return Answer{}, err
	}

	if p.reranker != nil {
		results, err = p.reranker.Rerank(ctx, standalone, results)
		if err != nil {
			return Answer{}, err
		}
	}

	text, err := p.generator.Generate(ctx, model, question, results, history)
	if err != nil {
		return Answer{}, err
	}

	if err := p.store.AppendTurn(sessionID, question, text, model); err != nil {
		p.logger.Error("recording chat turn failed", "session_id", sessionID, "error", err)
	}

	p.logger.Info("question answered",
		"session_id", sessionID, "model", model, "retrieved", len(results))
	return Answer{SessionID: sessionID, Model: model, Text: text}, nil
}

// SearchDocuments runs retrieval only, without generation. Used by the
// search tool surface.
func (p *Pipeline) SearchDocuments(ctx context.Context, query string, k int) ([]vectorindex.Result, error) {
	if k <= 0 {
		k = p.topK
	}
	return p.index.Search(ctx, query, k)
}
