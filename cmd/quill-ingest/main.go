// Quill-ingest imports markdown documents into the assistant's
// knowledge base. Each document is split into heading-scoped sections,
// embedded, and stored for retrieval; re-ingesting a file replaces its
// previous chunks.
//
// Usage:
//
//	quill-ingest [-config path] <file.md> [file.md ...]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/quillworks/quill-assistant/internal/config"
	"github.com/quillworks/quill-assistant/internal/embeddings"
	"github.com/quillworks/quill-assistant/internal/knowledge"
	"github.com/quillworks/quill-assistant/internal/store"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	var configPath string
	var files []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			fmt.Fprintln(stdout, "Usage: quill-ingest [-config path] <file.md> [file.md ...]")
			return nil
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			files = append(files, args[i])
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("usage: quill-ingest [-config path] <file.md> [file.md ...]")
	}

	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer st.Close()

	embClient := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})
	ingester := knowledge.NewIngester(st, embClient, logger)

	total := 0
	for _, path := range files {
		count, err := ingester.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%s: %d chunks\n", path, count)
		total += count
	}

	fmt.Fprintf(stdout, "ingested %d chunks from %d documents\n", total, len(files))
	return nil
}
