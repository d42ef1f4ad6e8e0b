package partition

import (
	"log/slog"
	"os"
	"testing"

	"github.com/veclite-io/veclite/internal/cluster"
)

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg.PartitionsDir = t.TempDir()
	if cfg.MaxActivePartitions == 0 {
		cfg.MaxActivePartitions = 3
	}
	if cfg.ClusterOptions == (cluster.Config{}) {
		cfg.ClusterOptions = cluster.DefaultConfig()
	}
	cfg.AutoCreatePartitions = true
	cfg.AutoLoadPartitions = true
	m, err := New(cfg, log)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestInitializeAutoCreatesFirstPartition(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	defer m.Close()

	stats := m.GetStats()
	if stats.PartitionCount != 1 {
		t.Fatalf("expected 1 auto-created partition, got %d", stats.PartitionCount)
	}
	if stats.ActivePartition == "" {
		t.Fatal("expected an active partition after init")
	}
}

func TestAddVectorRollsOverWhenActivePartitionIsFull(t *testing.T) {
	cfg := ManagerConfig{PartitionCapacity: 2}
	m := newTestManager(t, cfg)
	defer m.Close()

	first := m.GetStats().ActivePartition
	for i := 0; i < 3; i++ {
		res, err := m.AddVector(nil, []float32{float32(i), 0}, nil)
		if err != nil {
			t.Fatalf("add vector %d: %v", i, err)
		}
		if i < 2 && res.PartitionID != first {
			t.Fatalf("expected vector %d to land in the first partition", i)
		}
		if i == 2 && res.PartitionID == first {
			t.Fatal("expected rollover to a new partition once capacity hit")
		}
	}

	stats := m.GetStats()
	if stats.PartitionCount != 2 {
		t.Fatalf("expected 2 partitions after rollover, got %d", stats.PartitionCount)
	}
}

func TestAddVectorFailsWhenCapacityExhaustedAndAutoCreateDisabled(t *testing.T) {
	cfg := ManagerConfig{PartitionCapacity: 1}
	m := newTestManager(t, cfg)
	defer m.Close()
	m.cfg.AutoCreatePartitions = false

	if _, err := m.AddVector(nil, []float32{0, 0}, nil); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := m.AddVector(nil, []float32{1, 1}, nil); err == nil {
		t.Fatal("expected capacity-exhausted error on second add")
	}
}

func TestDeleteAndGetVectorAcrossPartitions(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	defer m.Close()

	res, err := m.AddVector(nil, []float32{1, 2, 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.GetVector(res.VectorID); !ok {
		t.Fatal("expected to find the vector just added")
	}
	deleted, err := m.DeleteVector(res.VectorID)
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got ok=%v err=%v", deleted, err)
	}
	if _, ok := m.GetVector(res.VectorID); ok {
		t.Fatal("expected vector to be gone after delete")
	}
}

func TestFindNearestAcrossPartitions(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	defer m.Close()

	for _, v := range [][]float32{{0, 0}, {1, 0}, {10, 10}} {
		if _, err := m.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	results := m.FindNearest([]float32{0, 0}, 2, FindOptions{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Distance != 0 {
		t.Fatalf("expected an exact match first, got distance %f", results[0].Distance)
	}
}

func TestCloseTwiceIsNoOp(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	if _, err := m.AddVector(nil, []float32{1, 1}, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
}

func TestBuildIndexHNSWAndSearch(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	defer m.Close()

	pid := m.GetStats().ActivePartition
	for _, v := range [][]float32{{0, 0}, {1, 0}, {5, 5}} {
		if _, err := m.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.BuildIndexHNSW(pid, BuildOptions{}); err != nil {
		t.Fatalf("build hnsw: %v", err)
	}
	if _, ok := m.GetHNSWIndex(pid); !ok {
		t.Fatal("expected a built hnsw index to be resident")
	}
	results := m.FindNearestHNSW([]float32{0, 0}, 1, FindOptions{}, 0)
	if len(results) != 1 {
		t.Fatalf("expected 1 hnsw result, got %d", len(results))
	}
}
