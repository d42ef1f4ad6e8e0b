// Command veclite-demo walks through the lifecycle of an embedded vector
// database: create, insert, search (clustered and HNSW), persist, reopen.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/veclite-io/veclite/pkg/veclite"
)

func main() {
	var (
		dbDir       string
		numVectors  int
		dimension   int
		compress    bool
		clusterSize int
	)

	root := &cobra.Command{
		Use:   "veclite-demo",
		Short: "Exercise a veclite database end to end: insert, search, persist, reopen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(dbDir, numVectors, dimension, compress, clusterSize)
		},
	}
	root.Flags().StringVar(&dbDir, "partitions-dir", "./veclite_demo_data", "partitions directory")
	root.Flags().IntVar(&numVectors, "vectors", 200, "number of random vectors to insert")
	root.Flags().IntVar(&dimension, "dimension", 128, "vector dimension")
	root.Flags().BoolVar(&compress, "compress", false, "gzip on-disk JSON payloads")
	root.Flags().IntVar(&clusterSize, "cluster-size", 100, "target cluster size")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDemo(dbDir string, numVectors, dimension int, compress bool, clusterSize int) error {
	os.RemoveAll(dbDir)

	fmt.Println("=== veclite demo ===")

	fmt.Println("1. Creating database...")
	config := veclite.DefaultConfig()
	config.PartitionsDir = dbDir
	config.UseCompression = compress
	config.ClusterOptions.ClusterSize = clusterSize

	db, err := veclite.Open(config)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	fmt.Println("2. Inserting vectors...")
	vectors := make([][]float32, numVectors)
	ids := make([]veclite.ID, numVectors)
	for i := range vectors {
		v := make([]float32, dimension)
		for j := range v {
			v[j] = rand.Float32()
		}
		vectors[i] = v
		res, err := db.AddVector(nil, v, veclite.Metadata{"index": i})
		if err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
		ids[i] = res.VectorID
	}
	stats := db.GetStats()
	fmt.Printf("   inserted %d vectors across %d partitions\n", stats.TotalConfigured, stats.PartitionCount)

	fmt.Println("3. Searching with the Clustered Store...")
	query := vectors[0]
	for i, r := range db.FindNearest(query, 5, veclite.FindOptions{}) {
		fmt.Printf("   %d. id=%s distance=%.4f\n", i+1, r.ID.String(), r.Distance)
	}

	fmt.Println("4. Building an HNSW index and searching it...")
	pid := stats.ActivePartition
	if err := db.BuildIndexHNSW(pid); err != nil {
		return fmt.Errorf("failed to build hnsw index: %w", err)
	}
	for i, r := range db.FindNearestHNSW(query, 5, veclite.FindOptions{}, 0) {
		fmt.Printf("   %d. id=%s distance=%.4f\n", i+1, r.ID.String(), r.Distance)
	}

	fmt.Println("5. Demonstrating persistence...")
	if err := db.Save(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}

	db2, err := veclite.Open(config)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	defer db2.Close()

	stats2 := db2.GetStats()
	fmt.Printf("   database size after reopen: %d vectors\n", stats2.TotalConfigured)

	if v, ok := db2.GetVector(ids[5]); ok {
		fmt.Printf("   retrieved vector %s (dimension %d)\n", ids[5].String(), len(v))
	}

	fmt.Println("=== demo complete ===")
	fmt.Println("partitions directory:", dbDir)
	return nil
}
