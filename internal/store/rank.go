package store

import (
	"cmp"
	"slices"
	"time"

	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

// TopK sorts by similarity descending (newer first on ties) and keeps at most k results.
func TopK(items []tone.Scored, k int) []tone.Scored {
	slices.SortStableFunc(items, func(a, b tone.Scored) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if k >= 0 && len(items) > k {
		items = items[:k]
	}
	return items
}

// SortNewest orders items newest first by the (createdAt, id) pair returned from key.
func SortNewest[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortStableFunc(items, func(a, b T) int {
		ta, ida := key(a)
		tb, idb := key(b)
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		return cmp.Compare(idb, ida)
	})
}

// Limit keeps at most n items; n <= 0 keeps everything.
func Limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func embeddingKey(e tone.Embedding) (time.Time, string)     { return e.CreatedAt, e.ID }
func analysisKey(r tone.AnalysisRecord) (time.Time, string) { return r.CreatedAt, r.ID }
func messageKey(m chat.Message) (time.Time, string)         { return m.CreatedAt, m.ID }

// SortEmbeddings orders tone embeddings newest first.
func SortEmbeddings(items []tone.Embedding) { SortNewest(items, embeddingKey) }

// SortAnalyses orders analysis records newest first.
func SortAnalyses(items []tone.AnalysisRecord) { SortNewest(items, analysisKey) }

// SortMessages orders chat messages newest first.
func SortMessages(items []chat.Message) { SortNewest(items, messageKey) }
