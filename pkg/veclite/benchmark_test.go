package veclite

import (
	"math/rand"
	"testing"
)

// Benchmarking Guide:
//
// Run all benchmarks:
//   go test ./pkg/veclite -bench=. -run='^$'
//
// Compare Clustered (exact) vs HNSW (approximate) search:
//   go test ./pkg/veclite -bench=BenchmarkSearch -run='^$'

func randomVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rand.Float32()
	}
	return v
}

func benchmarkDB(b *testing.B, n, dim int, withHNSW bool) (*DB, string) {
	b.Helper()
	cfg := DefaultConfig()
	cfg.PartitionsDir = b.TempDir()
	cfg.PartitionCapacity = uint64(n + 1)
	db, err := Open(cfg)
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	b.Cleanup(func() { db.Close() })

	for i := 0; i < n; i++ {
		if _, err := db.AddVector(nil, randomVector(dim), nil); err != nil {
			b.Fatalf("add vector %d: %v", i, err)
		}
	}

	pid := db.GetStats().ActivePartition
	if withHNSW {
		if err := db.BuildIndexHNSW(pid); err != nil {
			b.Fatalf("build hnsw: %v", err)
		}
	}
	return db, pid
}

func BenchmarkAddVector(b *testing.B) {
	cfg := DefaultConfig()
	cfg.PartitionsDir = b.TempDir()
	cfg.PartitionCapacity = uint64(b.N + 1)
	db, err := Open(cfg)
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer db.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.AddVector(nil, randomVector(128), nil); err != nil {
			b.Fatalf("add: %v", err)
		}
	}
}

func BenchmarkSearch_Clustered(b *testing.B) {
	db, _ := benchmarkDB(b, 10000, 128, false)
	query := randomVector(128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.FindNearest(query, 10, FindOptions{})
	}
}

func BenchmarkSearch_HNSW(b *testing.B) {
	db, _ := benchmarkDB(b, 10000, 128, true)
	query := randomVector(128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.FindNearestHNSW(query, 10, FindOptions{}, 0)
	}
}

func BenchmarkSearch_Clustered_LargeDataset(b *testing.B) {
	db, _ := benchmarkDB(b, 100000, 128, false)
	query := randomVector(128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.FindNearest(query, 10, FindOptions{})
	}
}

func BenchmarkSearch_HNSW_LargeDataset(b *testing.B) {
	db, _ := benchmarkDB(b, 100000, 128, true)
	query := randomVector(128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.FindNearestHNSW(query, 10, FindOptions{}, 0)
	}
}

func BenchmarkGetVector(b *testing.B) {
	db, _ := benchmarkDB(b, 10000, 128, false)
	res, err := db.AddVector(nil, randomVector(128), nil)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.GetVector(res.VectorID)
	}
}
