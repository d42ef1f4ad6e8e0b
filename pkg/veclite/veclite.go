// Package veclite is the public entry point to the embedded vector
// database core: a Vector Store layered under a Clustered Store, sharded
// across disk-resident Partitions, each optionally backed by an HNSW
// graph index for approximate search.
package veclite

import (
	"log/slog"
	"time"

	"github.com/veclite-io/veclite/internal/cluster"
	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/partition"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

// Config is the configuration surface recognized by the core.
type Config struct {
	PartitionsDir        string
	PartitionCapacity    uint64
	MaxActivePartitions  int
	AutoCreatePartitions bool
	AutoLoadPartitions   bool
	AutoLoadHNSW         bool
	RunKMeansOnLoad      bool
	VectorSize           int
	UseCompression       bool
	ClusterOptions       ClusterOptions
	ConfigSaveDebounce   time.Duration
	Logger               *slog.Logger
}

// ClusterOptions configures Clustered Store assignment and retraining.
type ClusterOptions struct {
	ClusterSize                 int
	NewClusterThresholdFactor   float64
	NewClusterDistanceThreshold float32
	MaxClusters                 int
	DistanceMetric              Metric
	KMeansMaxIterations         int
}

// Metric names a distance kernel.
type Metric = vector.Metric

const (
	Euclidean        = vector.MetricEuclidean
	SquaredEuclidean = vector.MetricSquaredL2
	Manhattan        = vector.MetricManhattan
	Chebyshev        = vector.MetricChebyshev
	Cosine           = vector.MetricCosine
	DotProduct       = vector.MetricDot
	InnerProduct     = vector.MetricInner
	Hamming          = vector.MetricHamming
)

// DefaultConfig returns the recognized defaults for every Config field.
func DefaultConfig() Config {
	def := cluster.DefaultConfig()
	return Config{
		PartitionCapacity:    100000,
		MaxActivePartitions:  3,
		AutoCreatePartitions: true,
		AutoLoadPartitions:   true,
		AutoLoadHNSW:         true,
		RunKMeansOnLoad:      false,
		UseCompression:       false,
		ConfigSaveDebounce:   250 * time.Millisecond,
		ClusterOptions: ClusterOptions{
			ClusterSize:                 def.TargetClusterSize,
			NewClusterThresholdFactor:   def.NewClusterThresholdFactor,
			NewClusterDistanceThreshold: def.NewClusterDistanceThreshold,
			MaxClusters:                 def.MaxClusters,
			DistanceMetric:              def.DistanceMetric,
			KMeansMaxIterations:         def.KMeansMaxIterations,
		},
	}
}

func (c Config) toManagerConfig() partition.ManagerConfig {
	return partition.ManagerConfig{
		PartitionsDir:        c.PartitionsDir,
		PartitionCapacity:    c.PartitionCapacity,
		MaxActivePartitions:  c.MaxActivePartitions,
		AutoCreatePartitions: c.AutoCreatePartitions,
		AutoLoadPartitions:   c.AutoLoadPartitions,
		AutoLoadHNSW:         c.AutoLoadHNSW,
		RunKMeansOnLoad:      c.RunKMeansOnLoad,
		VectorSize:           c.VectorSize,
		UseCompression:       c.UseCompression,
		ConfigSaveDebounce:   c.ConfigSaveDebounce,
		ClusterOptions: cluster.Config{
			TargetClusterSize:           c.ClusterOptions.ClusterSize,
			NewClusterThresholdFactor:   c.ClusterOptions.NewClusterThresholdFactor,
			NewClusterDistanceThreshold: c.ClusterOptions.NewClusterDistanceThreshold,
			MaxClusters:                 c.ClusterOptions.MaxClusters,
			DistanceMetric:              c.ClusterOptions.DistanceMetric,
			KMeansMaxIterations:         c.ClusterOptions.KMeansMaxIterations,
			RunKMeansOnLoad:             c.RunKMeansOnLoad,
		},
	}
}

// DB is the top-level handle to an embedded vector database.
type DB struct {
	mgr *partition.Manager
}

// Open initializes (or re-attaches to) a database rooted at
// config.PartitionsDir, scanning existing partitions, resolving
// activation conflicts, auto-creating a first partition if none exist,
// and auto-loading the active partition and its HNSW index.
func Open(config Config) (*DB, error) {
	mgr, err := partition.New(config.toManagerConfig(), config.Logger)
	if err != nil {
		return nil, err
	}
	return &DB{mgr: mgr}, nil
}

// ID aliases the tagged-union vector identifier.
type ID = vector.ID

// IntID wraps an integer as an ID.
func IntID(v uint64) ID { return vector.IntID(v) }

// StringID wraps a string as an ID.
func StringID(v string) ID { return vector.StringID(v) }

// Metadata is an arbitrary JSON-shaped attribute map attached to a vector.
type Metadata = metadata.Metadata

// Result is one entry of an ordered nearest-neighbor result set.
type Result = vector.Result

// AddVector inserts a vector (optionally under an explicit id) into the
// active partition, rolling over to a new one if it is full.
func (db *DB) AddVector(id *ID, v []float32, md Metadata) (partition.AddResult, error) {
	return db.mgr.AddVector(id, v, md)
}

// BulkAddItem is one entry of a BulkAdd batch.
type BulkAddItem struct {
	ID       *ID
	Vector   []float32
	Metadata Metadata
}

// BulkAdd inserts a batch best-effort, splitting across partition
// rollover as needed.
func (db *DB) BulkAdd(items []BulkAddItem) (int, []partition.AddResult, error) {
	batch := make([]store.BulkItem, len(items))
	for i, it := range items {
		batch[i] = store.BulkItem{ID: it.ID, Vector: it.Vector, Metadata: it.Metadata}
	}
	return db.mgr.BulkAdd(batch)
}

// GetVector returns the vector stored under id.
func (db *DB) GetVector(id ID) ([]float32, bool) { return db.mgr.GetVector(id) }

// GetMetadata returns the metadata attached to id.
func (db *DB) GetMetadata(id ID) (Metadata, bool) { return db.mgr.GetMetadata(id) }

// DeleteVector removes id from whichever partition holds it.
func (db *DB) DeleteVector(id ID) (bool, error) { return db.mgr.DeleteVector(id) }

// UpdateMetadata merges patch into id's metadata.
func (db *DB) UpdateMetadata(id ID, patch Metadata) error { return db.mgr.UpdateMetadata(id, patch) }

// UpdateVector fully replaces the stored vector for id.
func (db *DB) UpdateVector(id ID, v []float32) error { return db.mgr.UpdateVector(id, v) }

// FindOptions configures a cross-partition search.
type FindOptions struct {
	PartitionIDs []string
	Filter       func(id ID, md Metadata) bool
	Metric       Metric
}

// FindNearest runs the Clustered Store search across every (or the
// named) resident partition and merges the per-partition top-k.
func (db *DB) FindNearest(query []float32, k int, opts FindOptions) []Result {
	return db.mgr.FindNearest(query, k, partition.FindOptions{
		PartitionIDs: opts.PartitionIDs,
		Filter:       opts.Filter,
		Metric:       opts.Metric,
	})
}

// FindNearestHNSW runs the HNSW graph search across every (or the named)
// resident partition with a built index; ef <= 0 uses the index's
// configured default.
func (db *DB) FindNearestHNSW(query []float32, k int, opts FindOptions, ef int) []Result {
	return db.mgr.FindNearestHNSW(query, k, partition.FindOptions{
		PartitionIDs: opts.PartitionIDs,
		Filter:       opts.Filter,
		Metric:       opts.Metric,
	}, ef)
}

// BuildIndexHNSW (re)builds the HNSW index for one partition from its
// currently resident vectors.
func (db *DB) BuildIndexHNSW(partitionID string) error {
	return db.mgr.BuildIndexHNSW(partitionID, partition.BuildOptions{})
}

// CreatePartition creates a new partition directory/config and loads it.
func (db *DB) CreatePartition(id, name string, setActive bool) error {
	_, err := db.mgr.CreatePartition(id, name, partition.CreateOptions{SetActive: setActive})
	return err
}

// SetActivePartition switches routing of future writes to id.
func (db *DB) SetActivePartition(id string) error { return db.mgr.SetActivePartition(id) }

// Save flushes every resident partition (configs, vectors, clusters, HNSW
// indices) to disk.
func (db *DB) Save() error { return db.mgr.Save() }

// Close performs a final save, then an orderly close of every resident
// partition. Idempotent.
func (db *DB) Close() error { return db.mgr.Close() }

// Stats reports partition/vector counts, callable in any lifecycle state.
type Stats = partition.Stats

// GetStats returns the current partition/vector counts.
func (db *DB) GetStats() Stats { return db.mgr.GetStats() }
