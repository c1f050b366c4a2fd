package loader

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
)

// defaultSeparators orders split points from most to least natural: paragraph
// break, line break, sentence end, word boundary, then hard character cuts.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts text into chunks of at most chunkSize characters with
// roughly overlap characters shared between consecutive chunks, preferring
// natural break points over hard cuts.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter. Non-positive size or overlap select the
// defaults (1000 and 200).
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap <= 0 {
		overlap = defaultOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split returns the text as ordered chunks. Empty or whitespace-only input
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Pieces are bounded by chunkSize-overlap so that merging a piece with
	// the carried overlap can never exceed chunkSize.
	pieces := s.split(text, s.separators)
	return s.merge(pieces)
}

// split recursively breaks text into pieces no longer than chunkSize-overlap,
// descending to finer separators only for pieces that are still too large.
func (s *Splitter) split(text string, separators []string) []string {
	limit := s.chunkSize - s.overlap
	if len(text) <= limit {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardCut(text, limit)
	}

	sep := separators[0]
	rest := separators[1:]
	if sep == "" {
		return hardCut(text, limit)
	}

	var pieces []string
	for _, part := range splitKeep(text, sep) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if len(part) <= limit {
			pieces = append(pieces, part)
		} else {
			pieces = append(pieces, s.split(part, rest)...)
		}
	}
	return pieces
}

// merge greedily packs pieces into chunks of at most chunkSize, carrying the
// tail of each finished chunk into the next so boundary context survives.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var cur strings.Builder
	carry := 0 // length of the overlap prefix currently in cur

	for _, p := range pieces {
		if cur.Len() > carry && cur.Len()+len(p) > s.chunkSize {
			chunk := cur.String()
			chunks = append(chunks, strings.TrimSpace(chunk))

			tail := overlapTail(chunk, s.overlap)
			cur.Reset()
			cur.WriteString(tail)
			carry = len(tail)
		}
		cur.WriteString(p)
	}

	if cur.Len() > carry {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

// splitKeep splits text by sep, keeping the separator attached to the end of
// each piece so the original text can be reassembled by concatenation.
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += sep
	}
	return parts
}

// hardCut slices text into windows of at most limit bytes, backing off to
// rune boundaries so multi-byte characters are never split.
func hardCut(text string, limit int) []string {
	var out []string
	for len(text) > 0 {
		if len(text) <= limit {
			out = append(out, text)
			break
		}
		cut := runeBoundary(text, limit)
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

// overlapTail returns at most n trailing bytes of text, aligned to a rune
// boundary and preferring to start at a whitespace break.
func overlapTail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	start := len(text) - n
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	tail := text[start:]
	// Drop the likely partial first word.
	if i := strings.IndexAny(tail, " \n\t"); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return tail
}

// runeBoundary returns the largest index <= limit that falls on a rune boundary.
func runeBoundary(text string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}
