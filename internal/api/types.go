// Package api exposes the document and chat pipeline over HTTP and MCP.
package api

// QueryInput is the request body of POST /chat. SessionID is optional; when
// absent a new session is started and its id returned. Model is optional and
// defaults to the first configured chat model.
type QueryInput struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// QueryResponse is the response body of POST /chat.
type QueryResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

// DocumentInfo is one entry of GET /list-docs.
type DocumentInfo struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	UploadedAt string `json:"upload_timestamp"`
}

// DeleteRequest is the request body of POST /delete-doc.
type DeleteRequest struct {
	FileID int64 `json:"file_id"`
}
