package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/quillworks/quill-assistant/internal/store"
)

// Section is one heading-scoped slice of a markdown document.
type Section struct {
	Title   string
	Content string
}

// ChunkWriter is the subset of the store the ingester writes through.
type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, source string, chunks []store.Chunk) error
}

// Ingester imports markdown documents into the knowledge base.
type Ingester struct {
	writer   ChunkWriter
	embedder Embedder
	logger   *slog.Logger
}

// NewIngester creates a markdown ingester.
func NewIngester(writer ChunkWriter, embedder Embedder, logger *slog.Logger) *Ingester {
	return &Ingester{
		writer:   writer,
		embedder: embedder,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestFile imports one markdown file, replacing any chunks previously
// imported from the same file name. Returns the number of chunks stored.
func (i *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read document: %w", err)
	}

	source := filepath.Base(path)
	sections := SplitMarkdown(src)
	if len(sections) == 0 {
		return 0, nil
	}

	chunks := make([]store.Chunk, 0, len(sections))
	for _, sec := range sections {
		embText := sec.Content
		if sec.Title != "" {
			embText = sec.Title + ": " + sec.Content
		}
		vector, err := i.embedder.Generate(ctx, embText)
		if err != nil {
			return 0, fmt.Errorf("embed section %q: %w", sec.Title, err)
		}
		chunks = append(chunks, store.Chunk{
			Source:    source,
			Section:   sec.Title,
			Content:   sec.Content,
			Embedding: vector,
		})
	}

	if err := i.writer.ReplaceChunks(ctx, source, chunks); err != nil {
		return 0, err
	}

	i.logger.Info("document ingested", "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// SplitMarkdown parses a markdown document and splits it into
// heading-scoped sections. Content before the first heading becomes an
// untitled section. Sections with no body text are dropped.
func SplitMarkdown(src []byte) []Section {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var sections []Section
	var title string
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		if content != "" {
			sections = append(sections, Section{Title: title, Content: content})
		}
		body.Reset()
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			flush()
			title = string(h.Text(src))
			continue
		}

		appendBlockText(&body, node, src)
		body.WriteString("\n")
	}
	flush()

	return sections
}

// appendBlockText collects the raw source lines of a block node.
// Container blocks (lists, quotes) carry no lines themselves, so the
// walk recurses into children until it reaches leaf blocks.
func appendBlockText(b *strings.Builder, node ast.Node, src []byte) {
	if lines := node.Lines(); lines.Len() > 0 {
		for j := 0; j < lines.Len(); j++ {
			seg := lines.At(j)
			b.Write(seg.Value(src))
		}
		return
	}
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		appendBlockText(b, child, src)
	}
}
