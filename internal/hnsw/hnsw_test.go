package hnsw

import (
	"log/slog"
	"os"
	"testing"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

func newTestIndex(t *testing.T) (*Index, *store.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	base := store.New(store.Config{}, events.NewEmitter(log), log)
	cfg := DefaultConfig()
	idx := New(cfg, base, log)
	return idx, base
}

func TestAddPointAndFindNearest(t *testing.T) {
	idx, base := newTestIndex(t)
	points := map[string][]float32{
		"a": {0, 0},
		"b": {1, 0},
		"c": {0, 1},
		"d": {10, 10},
	}
	for name, v := range points {
		id, err := base.AddVector(nil, v, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := idx.AddPoint(v, id); err != nil {
			t.Fatalf("add point %s: %v", name, err)
		}
	}

	results := idx.FindNearest([]float32{0, 0}, 2, FindOptions{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Distance != 0 {
		t.Fatalf("expected the exact match to come first, got distance %f", results[0].Distance)
	}
}

func TestMarkDeleteSuppressesResults(t *testing.T) {
	idx, base := newTestIndex(t)
	var ids []vector.ID
	for _, v := range [][]float32{{0, 0}, {1, 0}, {0, 1}} {
		id, _ := base.AddVector(nil, v, nil)
		ids = append(ids, id)
		if err := idx.AddPoint(v, id); err != nil {
			t.Fatal(err)
		}
	}

	target := ids[0]
	if !idx.MarkDelete(target) {
		t.Fatal("expected markDelete to succeed")
	}

	results := idx.FindNearest([]float32{0, 0}, 3, FindOptions{})
	for _, r := range results {
		if vector.Equal(r.ID, target) {
			t.Fatalf("deleted id %v should never appear in results", target)
		}
	}
}

func TestMarkDeleteUnknownIDReturnsFalse(t *testing.T) {
	idx, _ := newTestIndex(t)
	if idx.MarkDelete(vector.IntID(999)) {
		t.Fatal("expected markDelete of unknown id to return false")
	}
}

func TestSaveLoadIndexRoundTrip(t *testing.T) {
	idx, base := newTestIndex(t)
	for _, v := range [][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}} {
		id, _ := base.AddVector(nil, v, nil)
		if err := idx.AddPoint(v, id); err != nil {
			t.Fatal(err)
		}
	}

	path := t.TempDir() + "/hnsw_index.json"
	if err := idx.SaveIndex(path, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := New(DefaultConfig(), base, nil)
	if err := reloaded.LoadIndex(path, false); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, want := reloaded.GetNodeCount(), idx.GetNodeCount(); got != want {
		t.Fatalf("node count mismatch after reload: got %d want %d", got, want)
	}
}

func TestBuildIndexInsertsEveryLiveVector(t *testing.T) {
	idx, base := newTestIndex(t)
	for _, v := range [][]float32{{0, 0}, {1, 1}, {2, 2}, {3, 3}} {
		if _, err := base.AddVector(nil, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.BuildIndex(BuildOptions{}); err != nil {
		t.Fatalf("buildIndex: %v", err)
	}
	if got := idx.GetNodeCount(); got != 4 {
		t.Fatalf("expected 4 nodes after buildIndex, got %d", got)
	}
}
