package partition

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/veclite-io/veclite/internal/cluster"
	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/hnsw"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/verrors"
)

// onEvict performs the orderly close the LRU dispose policy requires:
// release file handles, clear in-memory maps, drop the HNSW index. It
// never saves as a side effect — save() is the only path to durability.
func (m *Manager) onEvict(id string, r *resident) {
	if err := r.store.Close(); err != nil {
		m.log.Warn("error closing evicted partition", slog.String("id", id), slog.Any("error", err))
	}
	if err := r.lock.Unlock(); err != nil {
		m.log.Warn("error releasing partition lock", slog.String("id", id), slog.Any("error", err))
	}
	m.hnswMu.Lock()
	delete(m.hnswIndices, id)
	m.hnswMu.Unlock()
	m.emitter.Emit(events.PartitionUnloaded, map[string]any{"id": id})
}

// CreateOptions configures createPartition.
type CreateOptions struct {
	SetActive   bool
	ClusterSize *uint32
	Description string
	Properties  map[string]any
}

// CreatePartition validates id, creates its directory/config/data files,
// inserts the config, schedules a config save, loads it, and optionally
// activates it.
func (m *Manager) CreatePartition(id, name string, opts CreateOptions) (*resident, error) {
	m.mu.Lock()
	r, err := m.createPartitionLocked(id, name, opts)
	m.mu.Unlock()
	return r, err
}

func (m *Manager) createPartitionLocked(id, name string, opts CreateOptions) (*resident, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid partition id %q", verrors.ErrInvalidID, id)
	}
	if _, exists := m.configs[id]; exists {
		return nil, fmt.Errorf("partition %q already exists", id)
	}

	cfg := Config{ID: id, DBDirName: id, Name: name, Active: opts.SetActive, ClusterSize: opts.ClusterSize, Description: opts.Description, Properties: opts.Properties}
	dir := m.partitionDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating partition directory: %w", err)
	}
	if err := saveConfig(m.cfg.PartitionsDir, cfg); err != nil {
		return nil, fmt.Errorf("writing partition config: %w", err)
	}
	m.configs[id] = &cfg

	if opts.SetActive {
		for otherID, other := range m.configs {
			if otherID != id {
				other.Active = false
			}
		}
		m.activePartition = id
	}
	m.debouncer.Schedule()
	m.emitter.Emit(events.PartitionCreated, map[string]any{"id": id})

	r, err := m.loadPartitionLocked(id)
	if err != nil {
		return nil, err
	}
	if err := r.store.Base().Save(); err != nil {
		return nil, fmt.Errorf("writing initial data files: %w", err)
	}
	if err := r.store.Save(dir+"/data", m.cfg.UseCompression); err != nil {
		return nil, fmt.Errorf("writing initial cluster table: %w", err)
	}
	return r, nil
}

// SetActivePartition ensures target is loaded, deactivates the prior
// active config, marks target active, and schedules a config save.
func (m *Manager) SetActivePartition(id string) error {
	m.mu.Lock()
	if _, ok := m.configs[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: partition %q", verrors.ErrNotFound, id)
	}
	m.mu.Unlock()

	if _, err := m.loadPartition(id); err != nil {
		return err
	}

	m.mu.Lock()
	for otherID, other := range m.configs {
		other.Active = otherID == id
	}
	m.activePartition = id
	m.mu.Unlock()

	m.debouncer.Schedule()
	m.emitter.Emit(events.PartitionActivated, map[string]any{"id": id})
	return nil
}

// loadPartition loads (or returns the already-resident) Clustered Store
// for id, touching LRU recency (get semantics, not peek).
func (m *Manager) loadPartition(id string) (*resident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadPartitionLocked(id)
}

func (m *Manager) loadPartitionLocked(id string) (*resident, error) {
	if r, ok := m.resident.Get(id); ok {
		return r, nil
	}

	dir := m.partitionDir(id)
	lock := newDirLock(dir)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking partition %q: %w", id, err)
	}
	if !locked {
		return nil, fmt.Errorf("partition %q is locked by another writer", id)
	}

	dataDir := dir + "/data"
	base := store.New(store.Config{DataDir: dataDir, UseCompression: m.cfg.UseCompression, DefaultDimension: m.cfg.VectorSize}, m.emitter, m.log)
	if err := base.Load(); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("loading partition %q vector store: %w", id, err)
	}

	clusterCfg := m.cfg.ClusterOptions
	clusterCfg.RunKMeansOnLoad = m.cfg.RunKMeansOnLoad
	cs := cluster.New(base, clusterCfg, m.log)
	if err := cs.Load(dataDir, m.cfg.UseCompression); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("loading partition %q cluster table: %w", id, err)
	}

	r := &resident{store: cs, lock: lock, dir: dir}
	m.resident.Add(id, r)
	m.emitter.Emit(events.PartitionLoaded, map[string]any{"id": id})
	return r, nil
}

// loadHNSW loads the partition's HNSW index from hnsw/hnsw_index.json, if
// present. A missing file is not an error — the index simply stays absent
// until buildIndexHNSW is called.
func (m *Manager) loadHNSW(id string) error {
	r, ok := m.resident.Peek(id)
	if !ok {
		return fmt.Errorf("%w: partition %q not resident", verrors.ErrNotFound, id)
	}

	path := r.dir + "/hnsw/hnsw_index.json"
	idx := hnsw.New(hnsw.DefaultConfig(), r.store, m.log)
	if err := idx.LoadIndex(path, m.cfg.UseCompression); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading hnsw index for %q: %w", id, err)
	}

	m.hnswMu.Lock()
	m.hnswIndices[id] = idx
	m.hnswMu.Unlock()
	m.emitter.Emit(events.PartitionIndexLoad, map[string]any{"id": id})
	return nil
}

// Save saves every config, then walks the resident partitions one after
// another, saving each one's vector store, cluster table and (when one is
// loaded) HNSW index before moving to the next; emits db:saved with
// counts. The partitions are not saved concurrently. A partition whose
// vector or cluster save fails is reported with partition:error and its
// HNSW index is not saved.
func (m *Manager) Save() error {
	if err := m.saveConfigs(); err != nil {
		return err
	}

	m.mu.RLock()
	keys := m.resident.Keys()
	m.mu.RUnlock()

	savedStores, savedIndices := 0, 0
	for _, id := range keys {
		m.mu.RLock()
		r, ok := m.resident.Peek(id)
		m.mu.RUnlock()
		if !ok {
			continue
		}
		m.hnswMu.Lock()
		idx, hasIdx := m.hnswIndices[id]
		m.hnswMu.Unlock()
		if err := r.store.Base().Save(); err != nil {
			m.log.Warn("error saving partition vectors", slog.String("id", id), slog.Any("error", err))
			m.emitter.Emit(events.PartitionError, map[string]any{"id": id, "operation": "save", "error": err.Error()})
			continue
		}
		if err := r.store.Save(r.dir+"/data", m.cfg.UseCompression); err != nil {
			m.log.Warn("error saving partition clusters", slog.String("id", id), slog.Any("error", err))
			m.emitter.Emit(events.PartitionError, map[string]any{"id": id, "operation": "save", "error": err.Error()})
			continue
		}
		savedStores++
		if hasIdx {
			if err := idx.SaveIndex(r.dir+"/hnsw/hnsw_index.json", m.cfg.UseCompression); err != nil {
				m.log.Warn("error saving hnsw index", slog.String("id", id), slog.Any("error", err))
				m.emitter.Emit(events.PartitionError, map[string]any{"id": id, "operation": "save", "error": err.Error()})
				continue
			}
			savedIndices++
			m.emitter.Emit(events.PartitionIndexSaved, map[string]any{"id": id})
		}
	}

	m.emitter.Emit(events.DBSaved, map[string]any{"stores": savedStores, "indices": savedIndices})
	return nil
}

func (m *Manager) saveConfigs() error {
	m.mu.RLock()
	configs := make([]Config, 0, len(m.configs))
	for _, c := range m.configs {
		configs = append(configs, *c)
	}
	dir := m.cfg.PartitionsDir
	m.mu.RUnlock()

	if dir == "" {
		return nil
	}
	for _, c := range configs {
		if err := saveConfig(dir, c); err != nil {
			return fmt.Errorf("saving config %q: %w", c.ID, err)
		}
	}
	return nil
}

// Close flips the closing flag, performs one final save, clears the
// resident cache (triggering eviction/close of every entry), and emits
// db:close.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.mu.Unlock()

	saveErr := m.Save()

	m.mu.Lock()
	m.resident.Purge()
	m.mu.Unlock()

	m.emitter.Emit(events.DBClose, nil)
	return saveErr
}
