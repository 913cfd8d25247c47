package kmsearch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentQueries bounds the fan-out so a keyword-heavy validation
// cannot stampede the search API.
const maxConcurrentQueries = 10

// FanOut runs one search per query string in parallel and merges the hits:
// duplicates (same document id) keep the highest reranker score, the merged
// list is sorted by score descending and truncated to limit (0 = no
// truncation).
//
// Individual query failures are logged and tolerated; an error is returned
// only when every query failed.
func FanOut(ctx context.Context, s Searcher, base Query, queries []string, limit int) ([]Item, error) {
	queries = dedupeStrings(queries)
	if len(queries) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		merged = make(map[string]Item)
		failed int
		first  error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentQueries)
	for _, content := range queries {
		q := base
		q.Content = content
		g.Go(func() error {
			docs, err := s.Search(ctx, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("kmsearch: query failed", "query", q.Content, "error", err)
				failed++
				if first == nil {
					first = err
				}
				return nil
			}
			for _, it := range docs {
				key := it.Key()
				if key == "" {
					continue
				}
				if prev, ok := merged[key]; !ok || it.RerankerScore > prev.RerankerScore {
					merged[key] = it
				}
			}
			return nil
		})
	}
	// Workers never return errors; Wait only propagates ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed == len(queries) {
		return nil, fmt.Errorf("kmsearch: all %d queries failed: %w", failed, first)
	}

	out := make([]Item, 0, len(merged))
	for _, it := range merged {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RerankerScore != out[j].RerankerScore {
			return out[i].RerankerScore > out[j].RerankerScore
		}
		return out[i].Key() < out[j].Key()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
