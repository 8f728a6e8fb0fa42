package hybrid

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// Search returns up to topK entries matching the predicate, ordered by
// ascending distance and then by insertion sequence. The scan is exact,
// so fewer than topK matches returns every match.
func (x *Index) Search(ctx context.Context, vector []float32, p domain.MetadataPredicate, topK int) ([]domain.SearchHit, error) {
	if err := x.available(ctx); err != nil {
		return nil, err
	}
	if len(vector) != x.dims {
		return nil, &domain.DimensionMismatchError{Expected: x.dims, Got: len(vector)}
	}
	if !finite(vector) {
		return nil, fmt.Errorf("%w: query vector has non-finite values", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidInput)
	}

	// One snapshot per call: concurrent writes never mix into this read.
	snap := x.snap.Load()
	qNorm := norm(vector)

	candidates := snap.candidates(p)
	h := make(resultHeap, 0, min(topK, len(candidates)))
	for i, r := range candidates {
		if i%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !p.IsEmpty() && !p.Matches(r.entry) {
			continue
		}
		c := candidate{rec: r, dist: distance(x.metric, vector, qNorm, r)}
		if len(h) < topK {
			heap.Push(&h, c)
			continue
		}
		if c.before(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return h[i].before(h[j]) })
	hits := make([]domain.SearchHit, len(h))
	for i, c := range h {
		hits[i] = domain.SearchHit{
			Entry:    cloneEntry(c.rec.entry),
			Distance: c.dist,
			Score:    score(x.metric, c.dist),
		}
	}
	return hits, nil
}

// KeywordSearch returns up to limit entries whose text matches the query
// terms and the predicate, best match first.
func (x *Index) KeywordSearch(ctx context.Context, text string, p domain.MetadataPredicate, limit int) ([]domain.SearchHit, error) {
	if err := x.available(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" || p.Unsatisfiable() {
		return nil, nil
	}
	return x.keyword.search(x.snap.Load(), text, p, limit)
}

type candidate struct {
	rec  *record
	dist float64
}

// before reports whether c ranks ahead of o.
func (c candidate) before(o candidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.rec.entry.Seq < o.rec.entry.Seq
}

// resultHeap is a max-heap on rank: the root is the worst kept candidate.
type resultHeap []candidate

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[j].before(h[i]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(v any) { *h = append(*h, v.(candidate)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
