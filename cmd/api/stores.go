package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/zhouzirui/z-tone/backend/internal/config"
	"github.com/zhouzirui/z-tone/backend/internal/store"
	badgerstore "github.com/zhouzirui/z-tone/backend/internal/store/badger"
	firestorestore "github.com/zhouzirui/z-tone/backend/internal/store/firestore"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
	weaviatestore "github.com/zhouzirui/z-tone/backend/internal/store/weaviate"
)

const badgerGCInterval = 10 * time.Minute

// openStores builds the document store and, when configured differently, a separate vector
// store. The returned closers must run after the background queue has drained.
func openStores(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, []io.Closer, error) {
	var closers []io.Closer

	docs, err := openFull(ctx, cfg.Backend, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if c, ok := docs.(io.Closer); ok {
		closers = append(closers, c)
	}

	if cfg.VectorBackend == cfg.Backend {
		return docs, closers, nil
	}

	var vectors store.VectorStore
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		vectors, err = weaviatestore.New(ctx, weaviatestore.Config{URL: cfg.WeaviateURL, APIKey: cfg.WeaviateAPIKey})
	default:
		vectors, err = openFull(ctx, cfg.VectorBackend, cfg, logger)
	}
	if err != nil {
		closeAll(closers, logger)
		return nil, nil, goerr.Wrap(err, "failed to open vector store", goerr.V("backend", cfg.VectorBackend))
	}
	if c, ok := vectors.(io.Closer); ok {
		closers = append(closers, c)
	}

	return &store.Composite{Vectors: vectors, Docs: docs}, closers, nil
}

func openFull(ctx context.Context, backend string, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendBadger:
		return badgerstore.Open(badgerstore.Config{
			Path:       cfg.BadgerPath,
			SyncWrites: cfg.BadgerSyncWrites,
			Logger:     logger.With("component", "badger"),
			GCInterval: badgerGCInterval,
		})
	case config.BackendFirestore:
		return firestorestore.New(ctx, cfg.FirestoreProject, cfg.FirestoreDatabase)
	}
	return nil, goerr.New("unsupported store backend", goerr.V("backend", backend))
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}
}
