package hybrid

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/blevesearch/bleve"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/logger"
)

// keywordDoc is the document shape stored in bleve.
type keywordDoc struct {
	Text     string `json:"text"`
	Document string `json:"document"`
	Title    string `json:"title"`
}

// keywordIndex wraps a bleve index over chunk text.
// The snapshot stays authoritative: bleve only proposes candidate IDs.
type keywordIndex struct {
	path  string
	index bleve.Index
	stale atomic.Bool
}

func openKeywordIndex(path string) (*keywordIndex, error) {
	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		index, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening keyword index: %v", domain.ErrIndexUnavailable, err)
	}
	return &keywordIndex{path: path, index: index}, nil
}

// reconcile rebuilds the bleve index when it disagrees with the snapshot,
// which happens after a crash between the SQLite commit and the bleve batch.
func (k *keywordIndex) reconcile(snap *snapshot) {
	count, err := k.index.DocCount()
	if err == nil && int(count) == len(snap.records) {
		return
	}
	logger.Debug("keyword index out of sync (%d docs, %d entries), rebuilding", count, len(snap.records))

	if err := k.index.Close(); err != nil {
		logger.Warn("closing keyword index: %v", err)
	}
	if err := os.RemoveAll(k.path); err != nil {
		logger.Warn("removing keyword index: %v", err)
	}
	index, err := bleve.New(k.path, bleve.NewIndexMapping())
	if err != nil {
		logger.Warn("keyword index unavailable, falling back to scan: %v", err)
		k.index = nil
		k.stale.Store(true)
		return
	}
	k.index = index
	k.update(nil, snap.records)
}

// update applies one write. A failure marks the index stale so keyword
// queries fall back to scanning the snapshot until the next reopen.
func (k *keywordIndex) update(removed []string, added []*record) {
	if k.index == nil || (len(removed) == 0 && len(added) == 0) {
		return
	}
	batch := k.index.NewBatch()
	for _, id := range removed {
		batch.Delete(id)
	}
	for _, r := range added {
		doc := keywordDoc{Text: r.entry.Text, Document: r.entry.DocumentID(), Title: r.entry.Metadata.Title}
		if err := batch.Index(r.entry.ChunkID, doc); err != nil {
			logger.Warn("keyword index batch: %v", err)
			k.stale.Store(true)
			return
		}
	}
	if err := k.index.Batch(batch); err != nil {
		logger.Warn("keyword index write failed, falling back to scan: %v", err)
		k.stale.Store(true)
	}
}

// search returns up to limit matching records from snap, best first.
func (k *keywordIndex) search(snap *snapshot, text string, p domain.MetadataPredicate, limit int) ([]domain.SearchHit, error) {
	if k.index == nil || k.stale.Load() {
		return scanKeyword(snap, text, p, limit), nil
	}

	query := bleve.NewMatchQuery(text)
	query.SetField("text")

	limit = min(limit, len(snap.records))
	if limit == 0 {
		return nil, nil
	}
	size := max(limit*4, 32)
	seen := make(map[string]bool)
	var hits []domain.SearchHit
	for from := 0; len(hits) < limit; from += size {
		req := bleve.NewSearchRequestOptions(query, size, from, false)
		res, err := k.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("%w: keyword search: %v", domain.ErrIndexUnavailable, err)
		}
		for _, h := range res.Hits {
			r, ok := snap.byID[h.ID]
			if !ok || seen[h.ID] || !p.Matches(r.entry) {
				continue
			}
			seen[h.ID] = true
			hits = append(hits, domain.SearchHit{Entry: cloneEntry(r.entry), Score: h.Score})
			if len(hits) == limit {
				break
			}
		}
		if len(res.Hits) < size || uint64(from+size) >= res.Total {
			break
		}
	}
	sortKeywordHits(hits)
	return hits, nil
}

func (k *keywordIndex) close() error {
	if k.index == nil {
		return nil
	}
	return k.index.Close()
}

// scanKeyword scores entries by query term frequency. It is the fallback
// when the bleve index cannot be used.
func scanKeyword(snap *snapshot, text string, p domain.MetadataPredicate, limit int) []domain.SearchHit {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return nil
	}
	var hits []domain.SearchHit
	for _, r := range snap.candidates(p) {
		if !p.Matches(r.entry) {
			continue
		}
		body := strings.ToLower(r.entry.Text)
		var s float64
		for _, t := range terms {
			s += float64(strings.Count(body, t))
		}
		if s > 0 {
			hits = append(hits, domain.SearchHit{Entry: cloneEntry(r.entry), Score: s})
		}
	}
	sortKeywordHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortKeywordHits(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.Seq < hits[j].Entry.Seq
	})
}
