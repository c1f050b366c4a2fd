package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline     DocumentPipeline
	DefaultModel string
}

// NewMCPServer creates an MCP server exposing the document chat tools and
// the document list resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("docchat — chat with your uploaded documents using local models."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_documents",
			mcp.WithDescription("Ask a question about the uploaded documents and receive a grounded answer. Pass the returned session_id on follow-up questions to keep conversational context."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session id from a previous call; omit to start a new session")),
		),
		mcpAskDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the uploaded documents and return the most relevant text chunks without generating an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 2)")),
		),
		mcpSearchDocuments(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"docs://list",
			"Uploaded Documents",
			mcp.WithResourceDescription("All uploaded documents as JSON, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocs(deps),
	)

	return s
}

func mcpAskDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		// The id is resolved before the pipeline runs so a failure still
		// names the session the caller should retry with.
		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		answer, err := deps.Pipeline.Ask(ctx, sessionID, deps.DefaultModel, question)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to answer (session_id %s): %v", sessionID, err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"answer":     answer.Text,
			"session_id": answer.SessionID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 2)
		if limit <= 0 {
			limit = 2
		}
		if limit > 20 {
			limit = 20
		}

		results, err := deps.Pipeline.SearchDocuments(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			Text       string  `json:"text"`
			FileID     int64   `json:"file_id"`
			Filename   string  `json:"filename"`
			ChunkIndex int     `json:"chunk_index"`
			Score      float32 `json:"score"`
		}
		out := make([]chunkResult, len(results))
		for i, r := range results {
			out[i] = chunkResult{
				Text:       r.Text,
				FileID:     r.FileID,
				Filename:   r.Filename,
				ChunkIndex: r.ChunkIndex,
				Score:      r.Score,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceDocs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Pipeline.ListDocuments()
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		infos := make([]DocumentInfo, len(docs))
		for i, d := range docs {
			infos[i] = DocumentInfo{
				ID:         d.ID,
				Filename:   d.Filename,
				UploadedAt: d.UploadedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
