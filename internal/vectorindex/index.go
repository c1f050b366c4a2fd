package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mkovel/docchat/internal/loader"
)

// Typed failures for the three index operations. Callers branch on these
// with errors.Is; the underlying cause stays attached for logging.
var (
	ErrIndexing  = errors.New("indexing failed")
	ErrRetrieval = errors.New("retrieval failed")
	ErrDelete    = errors.New("vector delete failed")
)

// Result is a retrieved chunk with its provenance and similarity score.
type Result struct {
	Text       string
	FileID     int64
	Filename   string
	ChunkIndex int
	Score      float32
}

// Index is the query-and-update surface over the vector store. It owns
// embedding of both chunks and queries so callers deal only in text.
type Index struct {
	embedder *Embedder
	store    *SQLiteStore
	logger   *slog.Logger
}

// New creates an Index over the given store and embedder.
func New(store *SQLiteStore, embedder *Embedder, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, embedder: embedder, logger: logger}
}

// Add embeds the chunks and inserts them as a single batch. Chunks carry
// their file id and ordering in Meta. Nothing is written if any embedding
// fails, so a document is indexed fully or not at all.
func (ix *Index) Add(ctx context.Context, chunks []loader.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		ix.logger.Error("embedding chunks failed",
			"file_id", chunks[0].Meta.FileID,
			"chunks", len(chunks),
			"error", err)
		return fmt.Errorf("%w: %v", ErrIndexing, err)
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{
			ID:         uuid.NewString(),
			FileID:     c.Meta.FileID,
			Filename:   c.Meta.Filename,
			ChunkIndex: c.Meta.Index,
			Text:       c.Text,
			Embedding:  vectors[i],
		}
	}

	if err := ix.store.Insert(records); err != nil {
		ix.logger.Error("storing vectors failed",
			"file_id", chunks[0].Meta.FileID,
			"chunks", len(chunks),
			"error", err)
		return fmt.Errorf("%w: %v", ErrIndexing, err)
	}

	ix.logger.Info("chunks indexed",
		"file_id", chunks[0].Meta.FileID,
		"chunks", len(chunks))
	return nil
}

// Search embeds the query and returns the k most similar chunks, best first.
// k <= 0 falls back to a single result. Fewer than k results is not an error.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 1
	}

	vector, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		ix.logger.Error("embedding query failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	scored, err := ix.store.Search(vector, k)
	if err != nil {
		ix.logger.Error("vector search failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	results := make([]Result, len(scored))
	for i, s := range scored {
		results[i] = Result{
			Text:       s.Text,
			FileID:     s.FileID,
			Filename:   s.Filename,
			ChunkIndex: s.ChunkIndex,
			Score:      s.Score,
		}
	}
	return results, nil
}

// DeleteFile removes every vector tagged with the file id. Removing a file
// that has no vectors succeeds, so the operation can be retried.
func (ix *Index) DeleteFile(ctx context.Context, fileID int64) error {
	n, err := ix.store.DeleteByFileID(fileID)
	if err != nil {
		ix.logger.Error("deleting vectors failed", "file_id", fileID, "error", err)
		return fmt.Errorf("%w: %v", ErrDelete, err)
	}
	ix.logger.Info("vectors deleted", "file_id", fileID, "count", n)
	return nil
}
