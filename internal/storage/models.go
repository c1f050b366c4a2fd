package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one row of the documents table. The id is assigned by SQLite
// (AUTOINCREMENT) and is never reused, even after deletion.
type Document struct {
	ID         int64
	Filename   string
	UploadedAt time.Time
}

// Turn is one row of the chat_logs table: a single user query and the
// answer it received. The log is append-only.
type Turn struct {
	ID        int64
	SessionID string
	UserQuery string
	Response  string
	Model     string
	CreatedAt time.Time
}

// Message roles used in flattened chat history.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Message is one side of a chat turn, as consumed by the rewriter and
// answer generator.
type Message struct {
	Role    string
	Content string
}
