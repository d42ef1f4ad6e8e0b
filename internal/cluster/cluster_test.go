package cluster

import (
	"log/slog"
	"os"
	"testing"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	base := store.New(store.Config{}, events.NewEmitter(log), log)
	cfg := DefaultConfig()
	cfg.TargetClusterSize = 2
	cfg.NewClusterDistanceThreshold = 1
	return New(base, cfg, log)
}

func TestAssignmentSeedsFirstCluster(t *testing.T) {
	s := newTestStore(t)
	id, err := s.AddVector(nil, []float32{0, 0}, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := s.GetStats().ClusterCount; got != 1 {
		t.Fatalf("expected 1 cluster, got %d", got)
	}
	key, ok := s.clusterFor(id)
	if !ok {
		t.Fatal("expected vector to be assigned to a cluster")
	}
	if len(s.clusters[key].Members) != 1 {
		t.Fatalf("expected 1 member in seed cluster")
	}
}

func TestAssignmentOpensNewClusterWhenFar(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddVector(nil, []float32{0, 0}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddVector(nil, []float32{100, 100}, nil); err != nil {
		t.Fatal(err)
	}
	if got := s.GetStats().ClusterCount; got != 2 {
		t.Fatalf("expected 2 clusters after a far insert, got %d", got)
	}
}

func TestAssignmentFoldsIntoNearCluster(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddVector(nil, []float32{0, 0}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddVector(nil, []float32{0.1, 0}, nil); err != nil {
		t.Fatal(err)
	}
	if got := s.GetStats().ClusterCount; got != 1 {
		t.Fatalf("expected near insert to fold into existing cluster, got %d clusters", got)
	}
}

func TestDeleteVectorSplicesMemberAndDropsEmptyCluster(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.AddVector(nil, []float32{0, 0}, nil)
	if !s.DeleteVector(id) {
		t.Fatal("expected delete to succeed")
	}
	if got := s.GetStats().ClusterCount; got != 0 {
		t.Fatalf("expected empty cluster to be dropped, got %d clusters", got)
	}
}

func TestFindNearestPrunesByCentroid(t *testing.T) {
	s := newTestStore(t)
	near := []vector.ID{}
	for _, v := range [][]float32{{0, 0}, {0.1, 0}, {0, 0.1}} {
		id, _ := s.AddVector(nil, v, nil)
		near = append(near, id)
	}
	for _, v := range [][]float32{{10, 10}, {10.1, 10}, {10, 10.1}} {
		if _, err := s.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}

	results := s.FindNearest([]float32{9.95, 10}, 2, store.FindOptions{Metric: vector.MetricEuclidean})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		for _, n := range near {
			if vector.Equal(r.ID, n) {
				t.Fatalf("result %v should come from the far cluster, not the near one", r.ID)
			}
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t)
	for _, v := range [][]float32{{0, 0}, {0.1, 0}, {10, 10}} {
		if _, err := s.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Save(dir, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := newTestStore(t)
	// reuse s's base store data so vector ids resolve during cluster load
	reloaded.base = s.base
	if err := reloaded.Load(dir, false); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, want := reloaded.GetStats().ClusterCount, s.GetStats().ClusterCount; got != want {
		t.Fatalf("cluster count mismatch after reload: got %d want %d", got, want)
	}
}

func TestRunKMeansConverges(t *testing.T) {
	s := newTestStore(t)
	for _, v := range [][]float32{{0, 0}, {0.1, 0}, {0, 0.1}, {5, 5}, {5.1, 5}, {5, 5.1}} {
		if _, err := s.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RunKMeans(2, 50); err != nil {
		t.Fatalf("runKMeans: %v", err)
	}
	if got := s.GetStats().ClusterCount; got != 2 {
		t.Fatalf("expected exactly 2 clusters after k-means, got %d", got)
	}
}
