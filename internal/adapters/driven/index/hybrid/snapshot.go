package hybrid

import (
	"math"
	"slices"
	"sort"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// record is an immutable index entry plus values precomputed for search.
// Records are shared between snapshots and never modified once published.
type record struct {
	entry *domain.IndexEntry
	norm  float64
}

func newRecord(e domain.IndexEntry) *record {
	return &record{entry: &e, norm: norm(e.Embedding)}
}

// snapshot is a read-only view of the index.
// Writers build a new snapshot and publish it with a single pointer swap.
type snapshot struct {
	records []*record // ascending seq
	byID    map[string]*record
	byDoc   map[string][]*record // ascending seq
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byID:  make(map[string]*record),
		byDoc: make(map[string][]*record),
	}
}

// buildSnapshot indexes records, which may arrive in any order.
func buildSnapshot(records []*record) *snapshot {
	sort.Slice(records, func(i, j int) bool {
		return records[i].entry.Seq < records[j].entry.Seq
	})
	s := &snapshot{
		records: records,
		byID:    make(map[string]*record, len(records)),
		byDoc:   make(map[string][]*record),
	}
	for _, r := range records {
		s.byID[r.entry.ChunkID] = r
		doc := r.entry.DocumentID()
		s.byDoc[doc] = append(s.byDoc[doc], r)
	}
	return s
}

// apply returns a new snapshot with removed chunk IDs dropped and added
// records inserted. The receiver is left untouched.
func (s *snapshot) apply(removed map[string]bool, added []*record) *snapshot {
	replaced := make(map[string]bool, len(added))
	for _, r := range added {
		replaced[r.entry.ChunkID] = true
	}

	kept := make([]*record, 0, len(s.records)+len(added))
	for _, r := range s.records {
		if removed[r.entry.ChunkID] || replaced[r.entry.ChunkID] {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, added...)
	return buildSnapshot(kept)
}

// candidates returns the records a predicate could match, narrowed by
// document when the predicate names documents.
func (s *snapshot) candidates(p domain.MetadataPredicate) []*record {
	if p.Unsatisfiable() {
		return nil
	}
	if len(p.DocumentIDs) == 0 {
		return s.records
	}
	var out []*record
	seen := make(map[string]bool, len(p.DocumentIDs))
	for _, id := range p.DocumentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s.byDoc[id]...)
	}
	return out
}

func (s *snapshot) documents() []string {
	docs := make([]string, 0, len(s.byDoc))
	for id := range s.byDoc {
		docs = append(docs, id)
	}
	sort.Strings(docs)
	return docs
}

// cloneEntry copies an entry so callers cannot reach shared state.
func cloneEntry(e *domain.IndexEntry) domain.IndexEntry {
	out := *e
	out.BlockIDs = slices.Clone(e.BlockIDs)
	out.Embedding = slices.Clone(e.Embedding)
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// distance returns the metric distance between q and r; lower is closer.
func distance(metric domain.DistanceMetric, q []float32, qNorm float64, r *record) float64 {
	v := r.entry.Embedding
	switch metric {
	case domain.MetricL2:
		var sum float64
		for i := range q {
			d := float64(q[i]) - float64(v[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case domain.MetricDot:
		return -dot(q, v)
	default:
		if qNorm == 0 || r.norm == 0 {
			return 1
		}
		return 1 - dot(q, v)/(qNorm*r.norm)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// score converts a distance into a higher-is-better relevance score.
func score(metric domain.DistanceMetric, d float64) float64 {
	switch metric {
	case domain.MetricL2:
		return 1 / (1 + d)
	case domain.MetricDot:
		return -d
	default:
		return 1 - d
	}
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
