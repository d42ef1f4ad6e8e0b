package partition

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veclite-io/veclite/internal/cluster"
	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/hnsw"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/verrors"
)

// ManagerConfig configures the Partition Manager.
type ManagerConfig struct {
	PartitionsDir        string
	PartitionCapacity    uint64
	MaxActivePartitions  int
	AutoCreatePartitions bool
	AutoLoadPartitions   bool
	AutoLoadHNSW         bool
	RunKMeansOnLoad      bool
	VectorSize           int
	UseCompression       bool
	ClusterOptions       cluster.Config
	ConfigSaveDebounce    time.Duration
}

// DefaultManagerConfig returns the recognized configuration defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PartitionCapacity:    100000,
		MaxActivePartitions:  3,
		AutoCreatePartitions: true,
		AutoLoadPartitions:   true,
		AutoLoadHNSW:         true,
		RunKMeansOnLoad:      false,
		UseCompression:       false,
		ClusterOptions:       cluster.DefaultConfig(),
		ConfigSaveDebounce:   250 * time.Millisecond,
	}
}

// resident is one loaded Clustered Store plus its lock and dir.
type resident struct {
	store *cluster.Store
	lock  *dirLock
	dir   string
}

// Manager is the Partition Manager.
type Manager struct {
	mu sync.RWMutex

	cfg     ManagerConfig
	log     *slog.Logger
	emitter *events.Emitter

	configs         map[string]*Config
	activePartition string
	resident        *lru.Cache[string, *resident]

	hnswMu      sync.Mutex
	hnswIndices map[string]*hnsw.Index

	debouncer *configSaveDebouncer

	initialized bool
	closing     bool
}

// New constructs a Manager and runs its initialization sequence.
func New(cfg ManagerConfig, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		cfg:         cfg,
		log:         log,
		emitter:     events.NewEmitter(log),
		configs:     make(map[string]*Config),
		hnswIndices: make(map[string]*hnsw.Index),
	}

	cache, err := lru.NewWithEvict[string, *resident](maxInt(cfg.MaxActivePartitions, 1), m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating resident cache: %w", err)
	}
	m.resident = cache
	m.debouncer = newConfigSaveDebouncer(cfg.ConfigSaveDebounce, m.saveConfigs, log)

	if err := m.initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// initialize runs the scan/activation/auto-create/auto-load sequence.
func (m *Manager) initialize() error {
	if err := m.scanPartitions(); err != nil {
		return err
	}
	m.resolveActivationConflicts()

	if len(m.configs) == 0 && m.cfg.AutoCreatePartitions {
		id := newPartitionID(time.Now())
		if _, err := m.CreatePartition(id, id, CreateOptions{SetActive: true}); err != nil {
			return fmt.Errorf("auto-creating initial partition: %w", err)
		}
	}

	if m.cfg.AutoLoadPartitions && m.activePartition != "" {
		if _, err := m.loadPartition(m.activePartition); err != nil {
			m.log.Warn("failed to auto-load active partition", slog.String("id", m.activePartition), slog.Any("error", err))
		} else if m.cfg.AutoLoadHNSW {
			if err := m.loadHNSW(m.activePartition); err != nil {
				m.log.Warn("failed to auto-load hnsw index", slog.String("id", m.activePartition), slog.Any("error", err))
			}
		}
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.emitter.Emit(events.DBInitialized, map[string]any{"partitions": len(m.configs)})
	return nil
}

// scanPartitions walks PartitionsDir for subdirectories and reads each
// <id>.config.json, dropping invalid ones with a warning.
func (m *Manager) scanPartitions() error {
	if m.cfg.PartitionsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.cfg.PartitionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scanning partitions directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dirName := e.Name()
		cfg, err := loadConfig(m.cfg.PartitionsDir, dirName)
		if err != nil {
			if !os.IsNotExist(err) {
				m.log.Warn("dropping unreadable partition config", slog.String("dir", dirName), slog.Any("error", err))
			}
			continue
		}
		if cfg.ID != dirName || cfg.DBDirName != dirName || !ValidID(cfg.ID) {
			m.log.Warn("dropping partition with id/dir mismatch", slog.String("dir", dirName), slog.String("configID", cfg.ID))
			continue
		}
		c := cfg
		m.configs[c.ID] = &c
		if c.Active {
			m.activePartition = c.ID
		}
	}
	return nil
}

// resolveActivationConflicts deactivates every active config but the
// first discovered (directories are scanned in name order, and a valid
// id equals its directory name) and schedules a resave.
func (m *Manager) resolveActivationConflicts() {
	m.mu.Lock()
	var activeIDs []string
	for id, c := range m.configs {
		if c.Active {
			activeIDs = append(activeIDs, id)
		}
	}
	sort.Strings(activeIDs)
	if len(activeIDs) <= 1 {
		m.mu.Unlock()
		if len(activeIDs) == 1 {
			m.activePartition = activeIDs[0]
		}
		return
	}
	keep := activeIDs[0]
	for _, id := range activeIDs[1:] {
		m.configs[id].Active = false
	}
	m.activePartition = keep
	m.mu.Unlock()
	m.debouncer.Schedule()
}

func (m *Manager) partitionDir(id string) string {
	return filepath.Join(m.cfg.PartitionsDir, id)
}

// GetStats reports partition/vector counts; callable in every lifecycle
// state including pre-initialization and closing.
type Stats struct {
	PartitionCount  int
	ResidentCount   int
	ActivePartition string
	TotalConfigured uint64
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, c := range m.configs {
		total += c.VectorCount
	}
	return Stats{
		PartitionCount:  len(m.configs),
		ResidentCount:   m.resident.Len(),
		ActivePartition: m.activePartition,
		TotalConfigured: total,
	}
}


func (m *Manager) checkClosed() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closing {
		return verrors.ErrClosed
	}
	return nil
}
