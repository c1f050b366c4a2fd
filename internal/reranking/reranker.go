// Package reranking re-scores retrieved chunks by LLM-judged relevance to
// the query. It sits between retrieval and answer generation and degrades
// to the original retrieval order whenever scoring cannot complete in time.
package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkovel/docchat/internal/ollama"
	"github.com/mkovel/docchat/internal/vectorindex"
)

const defaultConcurrency = 3

// Chatter is the chat-completion capability used for relevance scoring.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// Reranker re-scores retrieved chunks by query relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []vectorindex.Result) ([]vectorindex.Result, error)
}

// New returns an LLMReranker if enabled, NoOpReranker otherwise.
func New(chatter Chatter, model string, enabled bool, timeout time.Duration, threshold float64) Reranker {
	if !enabled {
		return &NoOpReranker{}
	}
	return &LLMReranker{
		chatter:   chatter,
		model:     model,
		timeout:   timeout,
		threshold: threshold,
	}
}

// LLMReranker asks a local model to score (query, chunk) relevance pairs.
// Scoring runs concurrently, bounded to defaultConcurrency goroutines.
// Results are filtered by threshold and sorted by score descending.
type LLMReranker struct {
	chatter   Chatter
	model     string
	timeout   time.Duration
	threshold float64
}

// Rerank scores each chunk against the query and returns a filtered, sorted
// result set. If the timeout fires before scoring completes, the original
// retrieval order is returned unchanged.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []vectorindex.Result) ([]vectorindex.Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered channel prevents goroutines from blocking on send after the
	// collector stops reading.
	scoredCh := make(chan vectorindex.Result, len(results))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, res := range results {
		wg.Add(1)
		go func(chunk vectorindex.Result) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.scoreChunk(timeoutCtx, query, chunk)
			if err != nil {
				if timeoutCtx.Err() != nil {
					return
				}
				slog.Debug("reranker: score failed, retaining original", "error", err)
				scoredCh <- chunk // retrieval score preserved
				return
			}
			chunk.Score = float32(score)
			scoredCh <- chunk
		}(res)
	}

	go func() {
		wg.Wait()
		close(scoredCh)
	}()

	scored := make([]vectorindex.Result, 0, len(results))
collect:
	for {
		select {
		case chunk, ok := <-scoredCh:
			if !ok {
				break collect
			}
			scored = append(scored, chunk)
		case <-timeoutCtx.Done():
			// Timeout before scoring completed: keep the retrieval order.
			return results, nil
		}
	}

	if len(scored) == 0 {
		return results, nil
	}

	filtered := make([]vectorindex.Result, 0, len(scored))
	for _, chunk := range scored {
		if float64(chunk.Score) >= r.threshold {
			filtered = append(filtered, chunk)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	return filtered, nil
}

func (r *LLMReranker) scoreChunk(ctx context.Context, query string, chunk vectorindex.Result) (float64, error) {
	prompt := "Rate the relevance of the following text to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Text: " + chunk.Text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	resp, err := r.chatter.Chat(ctx, r.model, []ollama.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return float64(chunk.Score), err
	}

	score, parseErr := parseScore(resp, chunk.Score)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using original score", "resp", resp, "error", parseErr)
		return float64(chunk.Score), nil
	}
	return score, nil
}

// parseScore extracts a relevance score from an LLM response. Small local
// models frequently wrap JSON in markdown code fences or prepend
// conversational filler, so the parser strips fences, extracts the substring
// between the first { and last }, and only then unmarshals. On failure the
// original score is returned so the chunk is not penalised.
func parseScore(resp string, originalScore float32) (float64, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return float64(originalScore), fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return float64(originalScore), fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

// NoOpReranker passes chunks through unchanged. Used when reranking is disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, results []vectorindex.Result) ([]vectorindex.Result, error) {
	return results, nil
}
