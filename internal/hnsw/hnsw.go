// Package hnsw implements a per-store approximate k-NN proximity graph
// with incremental insertion, soft deletion, and persistence.
package hnsw

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/vector"
)

// Source is the backing store the index fetches vector values and
// metadata from; the graph itself holds only ids and connections.
type Source interface {
	GetVector(id vector.ID) ([]float32, bool)
	GetMetadata(id vector.ID) (metadata.Metadata, bool)
	AllIDs() []vector.ID
}

// Config holds the HNSW construction/search parameters.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	MaxLevel       int
	DimensionAware bool
	Metric         vector.Metric
}

// DefaultConfig returns commonly used HNSW construction/search parameters.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
		MaxLevel:       16,
		DimensionAware: false,
		Metric:         vector.MetricEuclidean,
	}
}

// Index is the HNSW Index over one Clustered Store.
type Index struct {
	mu sync.RWMutex

	cfg    Config
	log    *slog.Logger
	source Source
	rand   *rand.Rand

	nodes    map[string]*node // keyed by vector.ID.Key()
	maxLevel int

	globalEntry    vector.ID
	hasGlobalEntry bool
	dimEntry       map[int]vector.ID // dimension -> entry point, when dimension-aware

	levelProb float64
}

// New creates an empty index bound to source.
func New(cfg Config, source Source, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{
		cfg:       cfg,
		log:       log,
		source:    source,
		rand:      rand.New(rand.NewSource(1)),
		nodes:     make(map[string]*node),
		maxLevel:  -1,
		dimEntry:  make(map[int]vector.ID),
		levelProb: 1 / math.Log(float64(maxInt(cfg.M, 2))),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// drawLevel draws a random level from an exponential distribution with
// parameter levelProb, clamped to cfg.MaxLevel.
func (idx *Index) drawLevel() int {
	level := int(math.Floor(-math.Log(idx.rand.Float64()) * idx.levelProb))
	if level > idx.cfg.MaxLevel {
		level = idx.cfg.MaxLevel
	}
	return level
}

// GetNodeCount returns the number of nodes currently in the graph
// (including soft-deleted ones).
func (idx *Index) GetNodeCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Stats summarizes the graph for observability/getStats callers.
type Stats struct {
	NodeCount      int
	MaxLevel       int
	DeletedCount   int
	HasGlobalEntry bool
}

func (idx *Index) GetStats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	deleted := 0
	for _, n := range idx.nodes {
		if n.deleted {
			deleted++
		}
	}
	return Stats{NodeCount: len(idx.nodes), MaxLevel: idx.maxLevel, DeletedCount: deleted, HasGlobalEntry: idx.hasGlobalEntry}
}

// Close drops in-memory graph state.
func (idx *Index) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.nodes = make(map[string]*node)
	idx.maxLevel = -1
	idx.hasGlobalEntry = false
	idx.dimEntry = make(map[int]vector.ID)
}

// BuildOptions configures a full index build.
type BuildOptions struct {
	ProgressCallback func(done, total int)
	DimensionAware   bool
}

// BuildIndex inserts every live vector from the underlying store. Intended
// for a cold index; existing nodes are left untouched for ids already
// present.
func (idx *Index) BuildIndex(opts BuildOptions) error {
	idx.mu.Lock()
	idx.cfg.DimensionAware = idx.cfg.DimensionAware || opts.DimensionAware
	idx.mu.Unlock()

	ids := idx.source.AllIDs()
	total := len(ids)
	for i, id := range ids {
		v, ok := idx.source.GetVector(id)
		if !ok {
			continue
		}
		idx.mu.RLock()
		_, present := idx.nodes[id.Key()]
		idx.mu.RUnlock()
		if !present {
			if err := idx.AddPoint(v, id); err != nil {
				idx.log.Warn("buildIndex: skipping point", slog.String("id", id.String()), slog.Any("error", err))
			}
		}
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(i+1, total)
		}
	}
	return nil
}
