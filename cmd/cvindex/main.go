// Command cvindex bulk-indexes a directory of CV files (.pdf, .txt,
// .md) into the configured vector store. Intended for seeding local
// runs and backfilling a cloud collection.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fairyhunter13/cv-rag/internal/adapter/textextractor/pdf"
	"github.com/fairyhunter13/cv-rag/internal/app"
	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/observability"
	"github.com/fairyhunter13/cv-rag/internal/usecase"
)

var indexableExt = map[string]struct{}{
	".pdf": {},
	".txt": {},
	".md":  {},
}

func main() {
	dir := flag.String("dir", "", "directory of CV files to index")
	flag.Parse()
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: cvindex -dir <path>")
		os.Exit(2)
	}
	if err := run(*dir); err != nil {
		slog.Error("cvindex failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := observability.SetupLogger(cfg)
	slog.SetDefault(log)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			log.Warn("app close failed", slog.Any("error", cerr))
		}
	}()

	docs, err := collect(ctx, dir, log)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no indexable files under %s", dir)
	}

	results, errs := application.Engine.IndexDocuments(ctx, docs)
	for _, res := range results {
		log.Info("indexed",
			slog.String("cv_id", res.CVID),
			slog.String("file", res.Filename),
			slog.String("candidate", res.CandidateName),
			slog.Int("chunks", res.ChunkCount))
	}
	for _, e := range errs {
		log.Error("skipped", slog.Any("error", e))
	}
	log.Info("done", slog.Int("indexed", len(results)), slog.Int("failed", len(errs)))
	if len(results) == 0 {
		return fmt.Errorf("all %d files failed", len(errs))
	}
	return nil
}

// collect extracts text from every indexable file under dir. Extraction
// failures are logged and skipped so one bad file does not stop a batch.
func collect(ctx context.Context, dir string, log *slog.Logger) ([]usecase.Document, error) {
	extractor := pdf.New()
	var docs []usecase.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := indexableExt[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		f, err := os.Open(path) // #nosec G304 -- paths come from the operator-supplied directory
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		text, err := extractor.Extract(ctx, d.Name(), f, info.Size())
		if err != nil {
			log.Warn("extraction failed", slog.String("file", path), slog.Any("error", err))
			return nil
		}
		docs = append(docs, usecase.Document{Filename: d.Name(), Text: text})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return docs, nil
}
