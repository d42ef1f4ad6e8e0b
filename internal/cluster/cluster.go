// Package cluster layers a dynamic set of centroid-addressed clusters over
// a Vector Store to prune search and route inserts. It composes
// internal/store rather than extending it: a Store holds a *store.Store
// field and delegates to it, instead of embedding.
package cluster

import (
	"log/slog"
	"sync"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

// Config controls cluster assignment, retraining, and capacity.
type Config struct {
	TargetClusterSize           int
	NewClusterThresholdFactor   float64
	NewClusterDistanceThreshold float32
	MaxClusters                 int
	DistanceMetric              vector.Metric
	KMeansMaxIterations         int
	RunKMeansOnLoad             bool
}

// DefaultConfig returns the recognized defaults for cluster assignment and
// retraining.
func DefaultConfig() Config {
	return Config{
		TargetClusterSize:           100,
		NewClusterThresholdFactor:   1.5,
		NewClusterDistanceThreshold: 0.5,
		MaxClusters:                 1000,
		DistanceMetric:              vector.MetricEuclidean,
		KMeansMaxIterations:         100,
		RunKMeansOnLoad:             false,
	}
}

// Cluster is one centroid-addressed group of vectors.
type Cluster struct {
	Key       uint32
	Centroid  []float32
	Dimension int
	Members   []vector.ID
}

// Store is the Clustered Store.
type Store struct {
	mu sync.RWMutex

	base    *store.Store
	cfg     Config
	log     *slog.Logger
	emitter *events.Emitter

	clusters    map[uint32]*Cluster
	memberOf    map[string]uint32 // vector id key -> cluster key
	clusterSeq  uint32
}

// New wraps base with cluster-assignment state.
func New(base *store.Store, cfg Config, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		base:     base,
		cfg:      cfg,
		log:      log,
		emitter:  base.Emitter(),
		clusters: make(map[uint32]*Cluster),
		memberOf: make(map[string]uint32),
	}
}

// Base returns the underlying Vector Store.
func (s *Store) Base() *store.Store { return s.base }

// ---- delegated capability-set operations ----

func (s *Store) GetVector(id vector.ID) ([]float32, bool)      { return s.base.GetVector(id) }
func (s *Store) HasVector(id vector.ID) bool                   { return s.base.HasVector(id) }
func (s *Store) GetVectorDimension(id vector.ID) (int, bool)    { return s.base.GetVectorDimension(id) }
func (s *Store) GetMetadata(id vector.ID) (metadata.Metadata, bool) { return s.base.GetMetadata(id) }
func (s *Store) UpdateMetadata(id vector.ID, patch metadata.Metadata) error {
	return s.base.UpdateMetadata(id, patch)
}
func (s *Store) Len() int { return s.base.Len() }

func (s *Store) GetMetadataWithField(criteria store.FieldCriteria, opts store.GetMetadataWithFieldOptions) []vector.ID {
	return s.base.GetMetadataWithField(criteria, opts)
}

func (s *Store) AllIDs() []vector.ID { return s.base.AllIDs() }

// GetStats reports cluster/vector counts, callable in any lifecycle
// state.
type Stats struct {
	VectorCount  int
	ClusterCount int
}

func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{VectorCount: s.base.Len(), ClusterCount: len(s.clusters)}
}

// clusterFor returns the cluster key id belongs to, if any.
func (s *Store) clusterFor(id vector.ID) (uint32, bool) {
	k, ok := s.memberOf[id.Key()]
	return k, ok
}

func (s *Store) nextClusterKey() uint32 {
	k := s.clusterSeq
	s.clusterSeq++
	return k
}

func validateCentroidDimension(c *Cluster) {
	c.Dimension = len(c.Centroid)
}

func (s *Store) deleteClusterLocked(key uint32) {
	delete(s.clusters, key)
	s.emitter.Emit(events.ClusterDelete, map[string]any{"key": key})
}

func (s *Store) createClusterLocked(seed vector.ID, v []float32) *Cluster {
	key := s.nextClusterKey()
	centroid := make([]float32, len(v))
	copy(centroid, v)
	c := &Cluster{Key: key, Centroid: centroid, Dimension: len(v), Members: []vector.ID{seed}}
	s.clusters[key] = c
	s.memberOf[seed.Key()] = key
	s.emitter.Emit(events.ClusterCreate, map[string]any{"key": key})
	return c
}

// Close delegates to the base store's idempotent close.
func (s *Store) Close() error { return s.base.Close() }
