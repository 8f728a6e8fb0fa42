package hybrid

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/strata/internal/adapters/driven/index/hybrid/migrations"
	"github.com/custodia-labs/strata/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.HybridIndex = (*Index)(nil)

const (
	dbFile      = "index.db"
	keywordDir  = "keyword.bleve"
	metaDims    = "dimensions"
	metaMetric  = "metric"
	cancelCheck = 1024
)

// Options configures an index.
type Options struct {
	// Dimensions is the vector length. Zero adopts the stored value of an
	// existing index.
	Dimensions int

	// Metric is the distance metric. Empty adopts the stored value, or
	// cosine for a new index.
	Metric domain.DistanceMetric
}

// Index is a persistent hybrid vector and keyword index.
//
// Entries live in SQLite (the durable copy), in an immutable in-memory
// snapshot (the searchable copy) and in a bleve full-text index. Writers
// serialise on mu, commit to SQLite, then swap the snapshot pointer, so
// readers see each write entirely or not at all.
type Index struct {
	dir    string
	dims   int
	metric domain.DistanceMetric

	db      *sql.DB
	keyword *keywordIndex

	mu      sync.Mutex // serialises writers
	nextSeq int64
	snap    atomic.Pointer[snapshot]
	closed  atomic.Bool
}

// Open opens or creates an index in dir.
// Reopening with a different dimensionality fails with ErrDimensionMismatch.
func Open(dir string, opts Options) (*Index, error) {
	if opts.Metric != "" && !opts.Metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, opts.Metric)
	}
	if opts.Dimensions < 0 {
		return nil, fmt.Errorf("%w: negative dimensions", domain.ErrInvalidInput)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating index directory: %v", domain.ErrIndexUnavailable, err)
	}

	db, err := sqlite.OpenDB(filepath.Join(dir, dbFile), migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}

	idx := &Index{dir: dir, db: db}
	if err := idx.configure(opts); err != nil {
		db.Close()
		return nil, err
	}

	done := logger.Timed("index load")
	snap, maxSeq, err := idx.loadSnapshot(context.Background())
	done()
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.snap.Store(snap)
	idx.nextSeq = maxSeq + 1

	kw, err := openKeywordIndex(filepath.Join(dir, keywordDir))
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.keyword = kw
	idx.keyword.reconcile(snap)

	logger.Debug("hybrid index opened: %s (%d entries, %d dims, %s)", dir, len(snap.records), idx.dims, idx.metric)
	return idx, nil
}

// configure reconciles requested options with the stored index metadata.
func (x *Index) configure(opts Options) error {
	meta, err := x.readMeta()
	if err != nil {
		return err
	}

	storedDims := 0
	if v, ok := meta[metaDims]; ok {
		storedDims, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: corrupt dimensions %q", domain.ErrIndexUnavailable, v)
		}
	}

	switch {
	case storedDims == 0 && opts.Dimensions == 0:
		return fmt.Errorf("%w: dimensions required for a new index", domain.ErrInvalidInput)
	case storedDims == 0:
		x.dims = opts.Dimensions
	case opts.Dimensions != 0 && opts.Dimensions != storedDims:
		return &domain.DimensionMismatchError{Expected: storedDims, Got: opts.Dimensions}
	default:
		x.dims = storedDims
	}

	x.metric = opts.Metric
	if x.metric == "" {
		x.metric = domain.DistanceMetric(meta[metaMetric])
	}
	if !x.metric.IsValid() {
		x.metric = domain.MetricCosine
	}

	return x.writeMeta(map[string]string{
		metaDims:   strconv.Itoa(x.dims),
		metaMetric: x.metric.String(),
	})
}

func (x *Index) readMeta() (map[string]string, error) {
	rows, err := x.db.Query("SELECT key, value FROM index_meta")
	if err != nil {
		return nil, fmt.Errorf("%w: reading index metadata: %v", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: scanning index metadata: %v", domain.ErrIndexUnavailable, err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (x *Index) writeMeta(meta map[string]string) error {
	for k, v := range meta {
		_, err := x.db.Exec(`
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v)
		if err != nil {
			return fmt.Errorf("%w: writing index metadata: %v", domain.ErrIndexUnavailable, err)
		}
	}
	return nil
}

func (x *Index) loadSnapshot(ctx context.Context) (*snapshot, int64, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, seq, position, block_ids, text, embedding,
		       page_start, page_end, modality, extraction_path, title, indexed_at
		FROM entries ORDER BY seq
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: loading entries: %v", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var records []*record
	var maxSeq int64
	for rows.Next() {
		var (
			e        domain.IndexEntry
			blockIDs string
			vec      []byte
			modality string
			path     string
		)
		if err := rows.Scan(&e.ChunkID, &e.Metadata.DocumentID, &e.Seq, &e.Position, &blockIDs, &e.Text, &vec,
			&e.Metadata.PageRange.Start, &e.Metadata.PageRange.End, &modality, &path,
			&e.Metadata.Title, &e.IndexedAt); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning entry: %v", domain.ErrIndexUnavailable, err)
		}
		if err := json.Unmarshal([]byte(blockIDs), &e.BlockIDs); err != nil {
			return nil, 0, fmt.Errorf("%w: entry %s block ids: %v", domain.ErrIndexUnavailable, e.ChunkID, err)
		}
		e.Embedding = sqlite.DecodeVector(vec)
		if len(e.Embedding) != x.dims {
			return nil, 0, &domain.DimensionMismatchError{Expected: x.dims, Got: len(e.Embedding)}
		}
		e.Metadata.Modality = domain.BlockType(modality)
		e.Metadata.ExtractionPath = domain.ExtractionPath(path)

		records = append(records, newRecord(e))
		maxSeq = max(maxSeq, e.Seq)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating entries: %v", domain.ErrIndexUnavailable, err)
	}
	return buildSnapshot(records), maxSeq, nil
}

// Upsert inserts or replaces one entry. A replaced entry keeps its
// original insertion sequence.
func (x *Index) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	_, err := x.write(ctx, nil, []domain.IndexEntry{entry})
	return err
}

// UpsertBatch inserts or replaces several entries in one transaction.
func (x *Index) UpsertBatch(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := x.write(ctx, nil, entries)
	return err
}

// ReplaceDocument atomically swaps every entry of documentID for entries.
// Readers see either the previous chunk set or the new one.
func (x *Index) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", domain.ErrInvalidInput)
	}
	for _, e := range entries {
		if e.DocumentID() != documentID {
			return fmt.Errorf("%w: chunk %s belongs to document %q, not %q",
				domain.ErrInvalidInput, e.ChunkID, e.DocumentID(), documentID)
		}
	}
	_, err := x.write(ctx, []string{documentID}, entries)
	return err
}

// Delete removes every entry of documentID.
func (x *Index) Delete(ctx context.Context, documentID string) (int, error) {
	return x.write(ctx, []string{documentID}, nil)
}

// write removes the entries of removeDocs and upserts entries in one
// transaction, then publishes a new snapshot. It returns how many
// previously visible entries were removed without replacement.
func (x *Index) write(ctx context.Context, removeDocs []string, entries []domain.IndexEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for i := range entries {
		if err := x.validate(&entries[i]); err != nil {
			return 0, err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed.Load() {
		return 0, domain.ErrIndexUnavailable
	}

	old := x.snap.Load()

	removed := make(map[string]bool)
	for _, doc := range removeDocs {
		for _, r := range old.byDoc[doc] {
			removed[r.entry.ChunkID] = true
		}
	}
	if len(removed) == 0 && len(entries) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	seq := x.nextSeq
	added := make([]*record, 0, len(entries))
	pos := make(map[string]int, len(entries))
	for _, e := range entries {
		e.BlockIDs = append([]string(nil), e.BlockIDs...)
		e.Embedding = append([]float32(nil), e.Embedding...)
		if prev, ok := old.byID[e.ChunkID]; ok {
			e.Seq = prev.entry.Seq
			e.IndexedAt = prev.entry.IndexedAt
		} else if i, ok := pos[e.ChunkID]; ok {
			e.Seq = added[i].entry.Seq
			e.IndexedAt = added[i].entry.IndexedAt
		} else {
			e.Seq = seq
			e.IndexedAt = now
			seq++
		}
		// Duplicate chunk IDs within one batch: last one wins.
		if i, ok := pos[e.ChunkID]; ok {
			added[i] = newRecord(e)
			continue
		}
		pos[e.ChunkID] = len(added)
		added = append(added, newRecord(e))
	}

	if err := x.persist(ctx, removeDocs, added); err != nil {
		return 0, err
	}

	x.nextSeq = seq
	x.snap.Store(old.apply(removed, added))

	deleted := 0
	var keywordRemovals []string
	for id := range removed {
		if _, ok := pos[id]; !ok {
			deleted++
			keywordRemovals = append(keywordRemovals, id)
		}
	}
	x.keyword.update(keywordRemovals, added)

	logger.Debug("index write: %d upserted, %d removed, %d total", len(added), deleted, x.Count())
	return deleted, nil
}

func (x *Index) validate(e *domain.IndexEntry) error {
	if e.ChunkID == "" {
		return fmt.Errorf("%w: empty chunk id", domain.ErrInvalidInput)
	}
	if e.DocumentID() == "" {
		return fmt.Errorf("%w: chunk %s has no document id", domain.ErrInvalidInput, e.ChunkID)
	}
	if len(e.Embedding) != x.dims {
		return &domain.DimensionMismatchError{Expected: x.dims, Got: len(e.Embedding)}
	}
	if !finite(e.Embedding) {
		return fmt.Errorf("%w: chunk %s has non-finite embedding values", domain.ErrInvalidInput, e.ChunkID)
	}
	return nil
}

// persist commits one write. Nothing is visible in SQLite unless the whole
// transaction commits.
func (x *Index) persist(ctx context.Context, removeDocs []string, added []*record) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(ctx, "beginning write", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if len(removeDocs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(removeDocs)), ",")
		args := make([]any, len(removeDocs))
		for i, d := range removeDocs {
			args[i] = d
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entries WHERE document_id IN ("+placeholders+")", args...); err != nil {
			return unavailable(ctx, "deleting entries", err)
		}
	}

	if len(added) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entries (chunk_id, document_id, seq, position, block_ids, text, embedding,
			                     page_start, page_end, modality, extraction_path, title, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET
				document_id = excluded.document_id,
				position = excluded.position,
				block_ids = excluded.block_ids,
				text = excluded.text,
				embedding = excluded.embedding,
				page_start = excluded.page_start,
				page_end = excluded.page_end,
				modality = excluded.modality,
				extraction_path = excluded.extraction_path,
				title = excluded.title
		`)
		if err != nil {
			return unavailable(ctx, "preparing insert", err)
		}
		defer stmt.Close()

		for _, r := range added {
			e := r.entry
			blockIDs, err := json.Marshal(e.BlockIDs)
			if err != nil {
				return fmt.Errorf("marshalling block ids: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, e.ChunkID, e.DocumentID(), e.Seq, e.Position, string(blockIDs),
				e.Text, sqlite.EncodeVector(e.Embedding), e.Metadata.PageRange.Start, e.Metadata.PageRange.End,
				string(e.Metadata.Modality), string(e.Metadata.ExtractionPath), e.Metadata.Title,
				e.IndexedAt); err != nil {
				return unavailable(ctx, "inserting entry "+e.ChunkID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable(ctx, "committing write", err)
	}
	return nil
}

// unavailable maps a storage error to ErrIndexUnavailable, keeping
// context cancellation distinguishable.
func unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrIndexUnavailable, op, err)
}

// Get returns a copy of the entry for chunkID.
func (x *Index) Get(ctx context.Context, chunkID string) (*domain.IndexEntry, error) {
	if err := x.available(ctx); err != nil {
		return nil, err
	}
	r, ok := x.snap.Load().byID[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e := cloneEntry(r.entry)
	return &e, nil
}

// Documents returns the IDs of every indexed document, sorted.
func (x *Index) Documents() []string {
	return x.snap.Load().documents()
}

// DocumentCount returns the number of entries belonging to documentID.
func (x *Index) DocumentCount(documentID string) int {
	return len(x.snap.Load().byDoc[documentID])
}

// Count returns the number of entries.
func (x *Index) Count() int {
	return len(x.snap.Load().records)
}

// Dimensions returns the configured vector length.
func (x *Index) Dimensions() int {
	return x.dims
}

// Metric returns the configured distance metric.
func (x *Index) Metric() domain.DistanceMetric {
	return x.metric
}

// Dir returns the index directory.
func (x *Index) Dir() string {
	return x.dir
}

// Close releases the database and keyword index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed.Swap(true) {
		return nil
	}
	return errors.Join(x.keyword.close(), x.db.Close())
}

func (x *Index) available(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if x.closed.Load() {
		return domain.ErrIndexUnavailable
	}
	return nil
}
