package veclite

import (
	"fmt"
	"os"
	"sync"
	"testing"
)

func newTestDB(t *testing.T, configure func(*Config)) *DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PartitionsDir = t.TempDir()
	if configure != nil {
		configure(&cfg)
	}
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Scenario 1: partition rollover.
func TestPartitionRollover(t *testing.T) {
	db := newTestDB(t, func(c *Config) { c.PartitionCapacity = 3 })

	vectors := map[string][]float32{
		"A": {1, 0}, "B": {0, 1}, "C": {1, 1}, "D": {2, 0}, "E": {0, 2},
	}
	ids := make(map[string]ID)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		res, err := db.AddVector(nil, vectors[name], nil)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		ids[name] = res.VectorID
	}

	stats := db.GetStats()
	if stats.PartitionCount != 2 {
		t.Fatalf("expected 2 partitions after rollover, got %d", stats.PartitionCount)
	}
	if stats.TotalConfigured != 5 {
		t.Fatalf("expected totalConfigured == 5, got %d", stats.TotalConfigured)
	}

	results := db.FindNearest([]float32{1, 0}, 1, FindOptions{})
	if len(results) != 1 || results[0].Distance != 0 {
		t.Fatalf("expected A at distance 0, got %+v", results)
	}
}

// Scenario 2: clustered search prefers near clusters.
func TestClusteredSearchPrefersNearClusters(t *testing.T) {
	db := newTestDB(t, func(c *Config) {
		c.ClusterOptions.ClusterSize = 2
		c.ClusterOptions.NewClusterDistanceThreshold = 0.3
	})

	for _, v := range [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
	} {
		if _, err := db.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}

	results := db.FindNearest([]float32{9.95, 10}, 2, FindOptions{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		v, _ := db.GetVector(r.ID)
		if v[0] < 5 {
			t.Fatalf("expected only far-cluster members, got %v", v)
		}
	}
}

// Scenario 4: HNSW soft delete.
func TestHNSWSoftDelete(t *testing.T) {
	db := newTestDB(t, nil)
	pid := db.GetStats().ActivePartition

	var target ID
	for i := 0; i < 20; i++ {
		v := []float32{float32(i), float32(i) * 2}
		res, err := db.AddVector(nil, v, nil)
		if err != nil {
			t.Fatal(err)
		}
		if i == 5 {
			target = res.VectorID
		}
	}
	if err := db.BuildIndexHNSW(pid); err != nil {
		t.Fatalf("build hnsw: %v", err)
	}

	targetVec, _ := db.GetVector(target)
	results := db.FindNearestHNSW(targetVec, 1, FindOptions{}, 0)
	if len(results) != 1 || !vectorIDEqual(results[0].ID, target) || results[0].Distance != 0 {
		t.Fatalf("expected exact match first, got %+v", results)
	}

	if ok, _ := db.DeleteVector(target); !ok {
		t.Fatal("expected delete to succeed")
	}

	idx, ok := db.mgr.GetHNSWIndex(pid)
	if !ok {
		t.Fatal("expected hnsw index still resident")
	}
	if !idx.MarkDelete(target) {
		t.Log("target already absent from graph after vector delete")
	}

	results = db.FindNearestHNSW(targetVec, 1, FindOptions{}, 0)
	if len(results) == 0 {
		t.Fatal("expected a fallback result after deletion")
	}
	if vectorIDEqual(results[0].ID, target) {
		t.Fatal("deleted id should never be returned")
	}
}

func vectorIDEqual(a, b ID) bool { return a.String() == b.String() }

// Scenario 5: eviction does not corrupt.
func TestEvictionDoesNotCorrupt(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.PartitionsDir = dir
	cfg.MaxActivePartitions = 2
	cfg.AutoCreatePartitions = false

	db, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"p1", "p2", "p3"} {
		if err := db.CreatePartition(id, id, false); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	if err := db.SetActivePartition("p1"); err != nil {
		t.Fatal(err)
	}
	res, err := db.AddVector(nil, []float32{1, 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	target := res.VectorID

	if err := db.SetActivePartition("p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddVector(nil, []float32{2, 2}, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.SetActivePartition("p3"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddVector(nil, []float32{3, 3}, nil); err != nil {
		t.Fatal(err)
	}

	if err := db.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if v, ok := reopened.GetVector(target); !ok {
		t.Fatal("expected evicted partition's vector to still be returnable after reopen")
	} else if v[0] != 1 {
		t.Fatalf("unexpected vector after reopen: %v", v)
	}
}

// Scenario 6: save/load round-trip with compression.
func TestSaveLoadRoundTripWithCompression(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.PartitionsDir = dir
	cfg.UseCompression = true
	cfg.PartitionCapacity = 40

	db, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var knownID ID
	for i := 0; i < 100; i++ {
		v := []float32{float32(i), float32(i)}
		res, err := db.AddVector(nil, v, nil)
		if err != nil {
			t.Fatal(err)
		}
		if i == 42 {
			knownID = res.VectorID
		}
	}

	preClose := db.FindNearest([]float32{42, 42}, 1, FindOptions{})
	if len(preClose) != 1 || !vectorIDEqual(preClose[0].ID, knownID) {
		t.Fatalf("expected known id nearest pre-close, got %+v", preClose)
	}

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	postReopen := reopened.FindNearest([]float32{42, 42}, 1, FindOptions{})
	if len(postReopen) != 1 {
		t.Fatalf("expected 1 result post-reopen, got %d", len(postReopen))
	}
	if postReopen[0].Distance != preClose[0].Distance {
		t.Fatalf("distance mismatch after round-trip: pre=%f post=%f", preClose[0].Distance, postReopen[0].Distance)
	}
}

func TestParallelWrites(t *testing.T) {
	db := newTestDB(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := []float32{float32(i), float32(i)}
			if _, err := db.AddVector(nil, v, nil); err != nil {
				t.Errorf("parallel add %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if db.GetStats().TotalConfigured != 20 {
		t.Fatalf("expected 20 vectors, got %d", db.GetStats().TotalConfigured)
	}
}

func TestParallelWritesAndSearches(t *testing.T) {
	db := newTestDB(t, nil)
	for i := 0; i < 50; i++ {
		if _, err := db.AddVector(nil, []float32{float32(i), float32(i)}, nil); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = db.FindNearest([]float32{float32(i), float32(i)}, 3, FindOptions{})
		}(i)
	}
	for i := 50; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := db.AddVector(nil, []float32{float32(i), float32(i)}, nil); err != nil {
				t.Errorf("parallel add %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := db.GetStats().TotalConfigured; got != 60 {
		t.Fatalf("expected 60 vectors after mixed concurrent access, got %d", got)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	db := newTestDB(t, nil)
	res, err := db.AddVector(nil, []float32{1, 2, 3}, Metadata{"label": "x"})
	if err != nil {
		t.Fatal(err)
	}
	md, ok := db.GetMetadata(res.VectorID)
	if !ok || md["label"] != "x" {
		t.Fatalf("expected label metadata, got %+v ok=%v", md, ok)
	}
	if err := db.UpdateMetadata(res.VectorID, Metadata{"label": "y"}); err != nil {
		t.Fatal(err)
	}
	md, _ = db.GetMetadata(res.VectorID)
	if md["label"] != "y" {
		t.Fatalf("expected updated label, got %+v", md)
	}
}

func TestDeleteVector(t *testing.T) {
	db := newTestDB(t, nil)
	res, err := db.AddVector(nil, []float32{1, 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := db.DeleteVector(res.VectorID)
	if err != nil || !ok {
		t.Fatalf("expected delete to succeed, got ok=%v err=%v", ok, err)
	}
	if _, ok := db.GetVector(res.VectorID); ok {
		t.Fatal("expected vector to be gone")
	}
}

func TestBulkAddSplitsAcrossRollover(t *testing.T) {
	db := newTestDB(t, func(c *Config) { c.PartitionCapacity = 2 })

	items := make([]BulkAddItem, 5)
	for i := range items {
		items[i] = BulkAddItem{Vector: []float32{float32(i), 0}}
	}
	added, results, err := db.BulkAdd(items)
	if err != nil {
		t.Fatal(err)
	}
	if added != 5 || len(results) != 5 {
		t.Fatalf("expected all 5 items added, got added=%d results=%d", added, len(results))
	}
	if db.GetStats().PartitionCount < 2 {
		t.Fatalf("expected bulkAdd to trigger rollover, got %d partitions", db.GetStats().PartitionCount)
	}
}

func TestFindNearestBoundaries(t *testing.T) {
	db := newTestDB(t, nil)
	for _, v := range [][]float32{{0, 0}, {1, 1}, {2, 2}} {
		if _, err := db.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := db.FindNearest([]float32{0, 0}, 0, FindOptions{}); len(got) != 0 {
		t.Fatalf("expected empty result for k=0, got %d", len(got))
	}
	if got := db.FindNearest([]float32{0, 0}, 100, FindOptions{}); len(got) != 3 {
		t.Fatalf("expected all 3 vectors for k > count, got %d", len(got))
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PartitionCapacity != 100000 || cfg.MaxActivePartitions != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ClusterOptions.ClusterSize != 100 || cfg.ClusterOptions.MaxClusters != 1000 {
		t.Fatalf("unexpected cluster defaults: %+v", cfg.ClusterOptions)
	}
}

func ExampleDB_AddVector() {
	cfg := DefaultConfig()
	cfg.PartitionsDir = os.TempDir() + "/veclite-example"
	defer os.RemoveAll(cfg.PartitionsDir)
	db, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	res, _ := db.AddVector(nil, []float32{1, 0, 0}, nil)
	fmt.Println(res.VectorID.String() != "")
	// Output: true
}
