// Package loader turns uploaded document files into ordered text chunks
// tagged with provenance. Document identity (file_id) is stamped by the
// caller; the loader only knows about files and text.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFileType is returned for any extension outside the closed
// set {.pdf, .docx, .html}. The check runs before the file is read.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// DocType identifies a supported document format. The set is closed: each
// variant is bound to exactly one extraction strategy.
type DocType int

const (
	TypePDF DocType = iota
	TypeDOCX
	TypeHTML
)

func (t DocType) String() string {
	switch t {
	case TypePDF:
		return "pdf"
	case TypeDOCX:
		return "docx"
	case TypeHTML:
		return "html"
	}
	return "unknown"
}

// Extensions lists the accepted file extensions.
var Extensions = []string{".pdf", ".docx", ".html"}

// Detect resolves a filename to its DocType by extension, case-insensitively.
func Detect(filename string) (DocType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return TypePDF, nil
	case ".docx":
		return TypeDOCX, nil
	case ".html":
		return TypeHTML, nil
	}
	return 0, fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedFileType, filename, strings.Join(Extensions, ", "))
}

// Chunk is a bounded span of extracted text plus provenance metadata. It is
// the unit of embedding and retrieval.
type Chunk struct {
	Text string
	Meta Metadata
}

// Metadata carries chunk provenance. FileID is zero until the caller stamps
// it with the document id assigned by the metadata store.
type Metadata struct {
	FileID   int64
	Filename string
	Index    int
}

// Loader extracts text from supported document formats and splits it into
// overlapping chunks.
type Loader struct {
	splitter *Splitter
}

// New creates a Loader with the default splitting policy (1000-character
// chunks, 200-character overlap).
func New() *Loader {
	return &Loader{splitter: NewSplitter(0, 0)}
}

// LoadAndSplit reads the file at path and returns its text as an ordered
// chunk sequence. The extension check happens before any read beyond the
// existence check.
func (l *Loader) LoadAndSplit(path string) ([]Chunk, error) {
	typ, err := Detect(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var text string
	switch typ {
	case TypePDF:
		text, err = extractPDF(path)
	case TypeDOCX:
		text, err = extractDOCX(path)
	case TypeHTML:
		text, err = extractHTML(path)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s text from %s: %w", typ, path, err)
	}

	filename := filepath.Base(path)
	var chunks []Chunk
	for i, part := range l.splitter.Split(text) {
		chunks = append(chunks, Chunk{
			Text: part,
			Meta: Metadata{Filename: filename, Index: i},
		})
	}
	return chunks, nil
}
