// Package knowledge grounds a turn in stored reference material: the
// retriever embeds the prompt and returns the nearest chunks, and the
// ingester populates the chunk table from markdown documents.
package knowledge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quillworks/quill-assistant/internal/embeddings"
	"github.com/quillworks/quill-assistant/internal/store"
)

// DefaultTopK is how many chunks a turn is grounded on.
const DefaultTopK = 3

// separator joins retrieved chunk contents in the context text.
const separator = "\n\n---\n\n"

// Embedder generates an embedding for one text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// ChunkSource loads the scored corpus.
type ChunkSource interface {
	Chunks(ctx context.Context) ([]store.Chunk, error)
}

// Retriever finds the chunks nearest a prompt.
type Retriever struct {
	embedder Embedder
	chunks   ChunkSource
	k        int
	logger   *slog.Logger
}

// NewRetriever creates a retriever. k <= 0 uses DefaultTopK.
func NewRetriever(embedder Embedder, chunks ChunkSource, k int, logger *slog.Logger) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		chunks:   chunks,
		k:        k,
		logger:   logger.With("component", "retriever"),
	}
}

// Retrieve returns the concatenated contents of the k chunks nearest
// the prompt. Retrieval is best-effort: an embedding or store failure
// logs a warning and yields an empty context so the turn proceeds
// ungrounded instead of aborting.
func (r *Retriever) Retrieve(ctx context.Context, prompt string) string {
	vector, err := r.embedder.Generate(ctx, prompt)
	if err != nil {
		r.logger.Warn("prompt embedding failed, continuing without context", "error", err)
		return ""
	}

	chunks, err := r.chunks.Chunks(ctx)
	if err != nil {
		r.logger.Warn("chunk load failed, continuing without context", "error", err)
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}

	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = c.Embedding
	}

	var parts []string
	for _, idx := range embeddings.TopK(vector, vectors, r.k) {
		parts = append(parts, chunks[idx].Content)
	}

	r.logger.Debug("context retrieved", "chunks", len(parts), "corpus", len(chunks))
	return strings.Join(parts, separator)
}
