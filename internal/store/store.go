// Package store implements the Vector Store: the (id -> vector) and
// (id -> metadata) mappings, their two-file on-disk format, and exhaustive
// linear-scan search. It is the base layer the Clustered Store composes
// over (see internal/cluster).
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/vector"
	"github.com/veclite-io/veclite/internal/verrors"
)

// Config controls a Store's persistence and defaults.
type Config struct {
	// DataDir is the directory holding data/meta.json and data/vec.bin.
	// Empty means the store is memory-only: Save/Load are no-ops.
	DataDir string
	// UseCompression gzips the on-disk JSON/bin payloads (filenames gain
	// a ".gz" suffix).
	UseCompression bool
	// DefaultDimension seeds the dimension used for the first insert
	// when it is not yet known. Zero means "learn it from the first
	// vector inserted."
	DefaultDimension int
}

type entry struct {
	id     vector.ID
	vec    []float32
	dim    int
	exists bool
}

// Store holds vectors and their metadata, addressable by id, and supports
// a linear-scan nearest-neighbor search over its contents.
type Store struct {
	mu sync.RWMutex

	cfg     Config
	log     *slog.Logger
	emitter *events.Emitter

	byKey    map[string]*entry
	order    []string // insertion order of keys, for deterministic iteration
	metaByID map[string]metadata.Metadata

	defaultDim int
	idCounter  uint64
	closed     bool

	save saveFuture
}

// New creates a Store. A nil logger falls back to slog.Default(); a nil
// emitter is replaced by a fresh events.NewEmitter with no subscribers.
func New(cfg Config, emitter *events.Emitter, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if emitter == nil {
		emitter = events.NewEmitter(log)
	}
	return &Store{
		cfg:        cfg,
		log:        log,
		emitter:    emitter,
		byKey:      make(map[string]*entry),
		metaByID:   make(map[string]metadata.Metadata),
		defaultDim: cfg.DefaultDimension,
	}
}

func (s *Store) checkOpen() error {
	if s.closed {
		return verrors.ErrClosed
	}
	return nil
}

// AddVector inserts v under id (allocating the next integer id if id is
// nil). Overwriting an existing id is permitted and logged. Returns the
// id actually used.
func (s *Store) AddVector(id *vector.ID, v []float32, md metadata.Metadata) (vector.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return vector.ID{}, err
	}

	var actual vector.ID
	if id == nil {
		actual = vector.IntID(s.idCounter)
		s.idCounter++
	} else {
		actual = *id
		if !actual.IsString() && actual.Int()+1 > s.idCounter {
			s.idCounter = actual.Int() + 1
		}
	}

	key := actual.Key()
	if _, exists := s.byKey[key]; exists {
		s.log.Warn("overwriting existing vector id", slog.String("id", actual.String()))
	} else {
		s.order = append(s.order, key)
	}

	if s.defaultDim == 0 {
		s.defaultDim = len(v)
	}

	cp := make([]float32, len(v))
	copy(cp, v)
	s.byKey[key] = &entry{id: actual, vec: cp, dim: len(v), exists: true}
	if md != nil {
		s.metaByID[key] = md.Clone()
		s.emitter.Emit(events.MetadataAdd, map[string]any{"id": actual.String()})
	}

	s.emitter.Emit(events.VectorAdd, map[string]any{"id": actual.String(), "dimension": len(v)})
	return actual, nil
}

// BulkItem is one entry of a bulkAdd batch.
type BulkItem struct {
	ID       *vector.ID
	Vector   []float32
	Metadata metadata.Metadata
}

// BulkAdd inserts every item best-effort: a per-item failure is logged
// and skipped, never aborting the batch. Returns the count added and the
// ids assigned (in item order, with a zero ID standing in for a skipped
// item).
func (s *Store) BulkAdd(batch []BulkItem) (added int, ids []vector.ID) {
	ids = make([]vector.ID, len(batch))
	for i, item := range batch {
		actual, err := s.AddVector(item.ID, item.Vector, item.Metadata)
		if err != nil {
			s.log.Warn("bulkAdd item failed", slog.Int("index", i), slog.Any("error", err))
			continue
		}
		ids[i] = actual
		added++
	}
	s.emitter.Emit(events.VectorsBulkAdd, map[string]any{"count": added})
	return added, ids
}

// GetVector returns a copy of the stored vector for id.
func (s *Store) GetVector(id vector.ID) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[id.Key()]
	if !ok {
		return nil, false
	}
	cp := make([]float32, len(e.vec))
	copy(cp, e.vec)
	return cp, true
}

// HasVector reports whether id is present.
func (s *Store) HasVector(id vector.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[id.Key()]
	return ok
}

// GetVectorDimension returns the dimension of the stored vector for id.
func (s *Store) GetVectorDimension(id vector.ID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[id.Key()]
	if !ok {
		return 0, false
	}
	return e.dim, true
}

// DefaultDimension returns the dimension used to seed new stores (set on
// first insert, or explicitly via Config).
func (s *Store) DefaultDimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultDim
}

// GetMetadata returns a copy of the metadata attached to id, if any.
func (s *Store) GetMetadata(id vector.ID) (metadata.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.metaByID[id.Key()]
	if !ok {
		return nil, false
	}
	return md.Clone(), true
}

// UpdateMetadata merges patch into the existing metadata map for id
// (creating it if absent). A nil patch is a no-op.
func (s *Store) UpdateMetadata(id vector.ID, patch metadata.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := id.Key()
	if _, ok := s.byKey[key]; !ok {
		return fmt.Errorf("%w: vector %s", verrors.ErrNotFound, id)
	}
	if patch == nil {
		return nil
	}
	existing := s.metaByID[key]
	if existing == nil {
		existing = make(metadata.Metadata)
	} else {
		existing = existing.Clone()
	}
	changed := false
	for k, v := range patch {
		if cur, ok := existing[k]; !ok || !metadata.Equal(cur, v) {
			existing[k] = v
			changed = true
		}
	}
	s.metaByID[key] = existing
	if changed {
		s.emitter.Emit(events.MetadataUpdate, map[string]any{"id": id.String()})
	}
	return nil
}

// UpdateVector fully replaces the stored vector for id.
func (s *Store) UpdateVector(id vector.ID, v []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := id.Key()
	e, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("%w: vector %s", verrors.ErrNotFound, id)
	}
	cp := make([]float32, len(v))
	copy(cp, v)
	e.vec = cp
	e.dim = len(v)
	s.emitter.Emit(events.VectorUpdate, map[string]any{"id": id.String()})
	return nil
}

// DeleteVector removes id and its metadata. Returns false if id was not
// present.
func (s *Store) DeleteVector(id vector.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.Key()
	if _, ok := s.byKey[key]; !ok {
		return false
	}
	delete(s.byKey, key)
	delete(s.metaByID, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.emitter.Emit(events.VectorDelete, map[string]any{"id": id.String()})
	return true
}

// Len returns the number of live vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// IDCounter returns the current integer-id allocation counter.
func (s *Store) IDCounter() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idCounter
}

// AllIDs returns every live vector id, in insertion order. Used by the
// HNSW index to enumerate build input and as the fallback linear-scan
// population when no viable entry point exists.
func (s *Store) AllIDs() []vector.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]vector.ID, 0, len(s.order))
	for _, key := range s.order {
		if e, ok := s.byKey[key]; ok && e.exists {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// FilterFunc short-circuits before distance computation when it returns
// false for a candidate id/metadata pair.
type FilterFunc func(id vector.ID, md metadata.Metadata) bool

// FindOptions configures FindNearest.
type FindOptions struct {
	Metric vector.Metric
	Filter FilterFunc
}

// FindNearest performs an exhaustive linear scan over the resident map,
// applying Filter before any distance computation, and returns results
// sorted ascending by distance (ties broken by id ordering).
func (s *Store) FindNearest(query []float32, k int, opts FindOptions) []vector.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil
	}
	metric := opts.Metric
	if metric == "" {
		metric = vector.MetricEuclidean
	}

	results := make([]vector.Result, 0, len(s.byKey))
	for _, key := range s.order {
		e, ok := s.byKey[key]
		if !ok || !e.exists {
			continue
		}
		if opts.Filter != nil && !opts.Filter(e.id, s.metaByID[key]) {
			continue
		}
		if !vector.DimensionCompatible(metric, len(query), e.dim) {
			continue
		}
		d := vector.Distance(metric, query, e.vec)
		results = append(results, vector.Result{ID: e.id, Distance: d})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return vector.Compare(results[i].ID, results[j].ID) < 0
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// FieldCriteria evaluates conjunctive field-existence-and-equality
// predicates over the metadata map.
type FieldCriteria = metadata.Criteria

// GetMetadataWithFieldOptions bounds the result set.
type GetMetadataWithFieldOptions struct {
	Limit int // 0 means unbounded
}

// GetMetadataWithField returns the ids whose metadata satisfies criteria,
// in insertion order; the metadata itself is not returned.
func (s *Store) GetMetadataWithField(criteria FieldCriteria, opts GetMetadataWithFieldOptions) []vector.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []vector.ID
	for _, key := range s.order {
		e, ok := s.byKey[key]
		if !ok {
			continue
		}
		if criteria.Matches(s.metaByID[key]) {
			out = append(out, e.id)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	}
	return out
}

// Close is idempotent: it flips the closed flag, triggers one final save
// if a data directory is configured, clears in-memory state, and emits
// db:close.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dataDir := s.cfg.DataDir
	s.mu.Unlock()

	var err error
	if dataDir != "" {
		err = s.Save()
	}

	s.mu.Lock()
	s.byKey = make(map[string]*entry)
	s.metaByID = make(map[string]metadata.Metadata)
	s.order = nil
	s.mu.Unlock()

	s.emitter.Emit(events.DBClose, nil)
	return err
}

// Emitter exposes the store's event registry so composing layers
// (Clustered Store, Partition Manager) can subscribe to the same bus.
func (s *Store) Emitter() *events.Emitter { return s.emitter }

// Snapshot returns every live (id, vector, metadata) triple, in
// insertion order. Used by the Clustered Store for k-means.
func (s *Store) Snapshot() []SnapshotEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SnapshotEntry, 0, len(s.byKey))
	for _, key := range s.order {
		e, ok := s.byKey[key]
		if !ok {
			continue
		}
		cp := make([]float32, len(e.vec))
		copy(cp, e.vec)
		out = append(out, SnapshotEntry{ID: e.id, Vector: cp, Metadata: s.metaByID[key]})
	}
	return out
}

// SnapshotEntry is one row of Store.Snapshot.
type SnapshotEntry struct {
	ID       vector.ID
	Vector   []float32
	Metadata metadata.Metadata
}
