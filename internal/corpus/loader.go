package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mfenderov/patent-novelty/internal/vectorstore"
)

// LoadResult summarizes a Load call.
type LoadResult struct {
	Loaded  int
	Skipped int
}

// Load upserts every stored record that carries an embedding into the index.
// Records without a usable embedding (missing, non-finite or of the wrong
// dimension) are skipped and logged.
func Load(ctx context.Context, store Store, index *vectorstore.Index) (LoadResult, error) {
	records, err := store.List(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to list corpus: %w", err)
	}

	var result LoadResult
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			slog.Warn("skipping corpus record without embedding", "key", rec.Key, "filename", rec.Filename)
			result.Skipped++
			continue
		}
		if err := index.Upsert(rec.Key, rec.Filename, rec.Embedding); err != nil {
			slog.Warn("skipping corpus record", "key", rec.Key, "filename", rec.Filename, "error", err)
			result.Skipped++
			continue
		}
		result.Loaded++
	}

	slog.Info("corpus loaded", "loaded", result.Loaded, "skipped", result.Skipped, "dimension", index.Dimension())
	return result, nil
}
