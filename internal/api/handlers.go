package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mkovel/docchat/internal/config"
	"github.com/mkovel/docchat/internal/loader"
	"github.com/mkovel/docchat/internal/pipeline"
	"github.com/mkovel/docchat/internal/storage"
	"github.com/mkovel/docchat/internal/vectorindex"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxUploadSize = 50 << 20     // 50MB

// DocumentPipeline is the pipeline surface the HTTP layer consumes.
// *pipeline.Pipeline satisfies it.
type DocumentPipeline interface {
	Ingest(ctx context.Context, path, filename string) (pipeline.IngestResult, error)
	Delete(ctx context.Context, fileID int64) error
	ListDocuments() ([]storage.Document, error)
	Ask(ctx context.Context, sessionID, model, question string) (pipeline.Answer, error)
	SearchDocuments(ctx context.Context, query string, k int) ([]vectorindex.Result, error)
}

var _ DocumentPipeline = (*pipeline.Pipeline)(nil)

// Deps holds the handler dependencies.
type Deps struct {
	Pipeline DocumentPipeline
	Config   config.Config
	Logger   *slog.Logger
}

// NewHandler returns the HTTP API router. Bearer auth is enabled only when a
// token is configured.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	if deps.Config.Server.APIToken != "" {
		r.Use(BearerAuth(deps.Config.Server.APIToken))
	}

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))
	r.Post("/upload-doc", handleUpload(deps))
	r.Get("/list-docs", handleListDocs(deps))
	r.Post("/delete-doc", handleDelete(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		model := req.Model
		if model == "" {
			model = deps.Config.DefaultChatModel()
		}
		if !deps.Config.SupportsChatModel(model) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported model %q", model)
			return
		}

		// Resolve the session id up front so a failed request can still echo
		// it and the client retries within the same conversation.
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		answer, err := deps.Pipeline.Ask(r.Context(), sessionID, model, req.Question)
		if err != nil {
			deps.Logger.Error("chat request failed", "session_id", sessionID, "error", err)
			chatError(w, http.StatusInternalServerError, sessionID, "failed to answer question: %v", err)
			return
		}

		writeJSON(w, QueryResponse{
			Answer:    answer.Text,
			SessionID: answer.SessionID,
			Model:     answer.Model,
		})
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required: %v", err)
			return
		}
		defer file.Close()

		filename := filepath.Base(header.Filename)
		if _, err := loader.Detect(filename); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		// Spool the upload to a temp file, keeping the extension so type
		// detection works on the path.
		tmp, err := os.CreateTemp("", "docchat-upload-*"+filepath.Ext(filename))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create temp file: %v", err)
			return
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)

		if _, err := io.Copy(tmp, file); err != nil {
			tmp.Close()
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
			return
		}
		if err := tmp.Close(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
			return
		}

		res, err := deps.Pipeline.Ingest(r.Context(), tmpPath, filename)
		if err != nil {
			deps.Logger.Error("ingestion failed", "filename", filename, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to index %s: %v", filename, err)
			return
		}

		writeJSON(w, map[string]any{
			"message": fmt.Sprintf("File %s has been successfully uploaded and indexed.", filename),
			"file_id": res.FileID,
		})
	}
}

func handleListDocs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Pipeline.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		infos := make([]DocumentInfo, len(docs))
		for i, d := range docs {
			infos[i] = DocumentInfo{
				ID:         d.ID,
				Filename:   d.Filename,
				UploadedAt: d.UploadedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, infos)
	}
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.FileID <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file_id is required")
			return
		}

		err := deps.Pipeline.Delete(r.Context(), req.FileID)
		switch {
		case errors.Is(err, vectorindex.ErrDelete):
			// Nothing was removed; the document is fully intact.
			httpError(w, http.StatusBadGateway, "api_error",
				"failed to delete document %d from the vector index; the document is unchanged", req.FileID)
		case errors.Is(err, pipeline.ErrPartialDelete):
			// Vectors are gone but the metadata row remains; retry completes it.
			httpError(w, http.StatusInternalServerError, "api_error",
				"document %d was removed from the vector index but its record could not be deleted; retry to complete", req.FileID)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document %d: %v", req.FileID, err)
		default:
			writeJSON(w, map[string]string{
				"message": fmt.Sprintf("Successfully deleted document %d.", req.FileID),
			})
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// chatError is the error envelope with the session id alongside, so a failed
// question can be retried within the same conversation.
func chatError(w http.ResponseWriter, code int, sessionID string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    "api_error",
		},
		"session_id": sessionID,
	})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
