package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that Ollama is running and that the configured chat and
// embedding models are available locally. Missing models are reported, not
// pulled; pulling multi-gigabyte weights is an operator decision.
// Returns a non-nil error if Ollama is unreachable or a model is missing.
func EnsureReady(ctx context.Context, c *Client, chatModels []string, embedModel string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
	}

	var missing []string
	for _, model := range append(append([]string{}, chatModels...), embedModel) {
		if c.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}
		fmt.Fprintf(w, "model %s: missing\n", model)
		missing = append(missing, model)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing models %v — fetch them with: ollama pull <model>", missing)
	}
	return nil
}
