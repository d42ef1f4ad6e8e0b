package cluster

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/veclite-io/veclite/internal/vector"
)

const onDiskVersion = 1

type clusterFile struct {
	Version           int                 `json:"version"`
	ClusterIDCounter  uint32              `json:"clusterIdCounter"`
	Clusters          [][2]any            `json:"clusters"`
	ClusterCentroids  [][2]any            `json:"clusterCentroids"`
	ClusterDimensions [][2]any            `json:"clusterDimensions"`
}

func clusterPath(dataDir string, compress bool) string {
	name := "cluster.json"
	if compress {
		name += ".gz"
	}
	return filepath.Join(dataDir, name)
}

// Save persists the cluster table to <dataDir>/cluster.json.
func (s *Store) Save(dataDir string, compress bool) error {
	s.mu.RLock()
	cf := clusterFile{Version: onDiskVersion, ClusterIDCounter: s.clusterSeq}
	for key, c := range s.clusters {
		members := make([]string, len(c.Members))
		for i, m := range c.Members {
			members[i] = m.Key()
		}
		cf.Clusters = append(cf.Clusters, [2]any{key, members})
		cf.ClusterCentroids = append(cf.ClusterCentroids, [2]any{key, c.Centroid})
		cf.ClusterDimensions = append(cf.ClusterDimensions, [2]any{key, c.Dimension})
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	data, err := json.Marshal(cf)
	if err != nil {
		return fmt.Errorf("marshaling cluster.json: %w", err)
	}
	return writeMaybeGzipped(clusterPath(dataDir, compress), data, compress)
}

// Load restores the cluster table from <dataDir>/cluster.json. A missing
// file is not an error (fresh database / no clusters yet formed). Member
// ids are re-resolved against the base store so a stale cluster.json
// referencing a since-deleted vector silently drops that member.
func (s *Store) Load(dataDir string, compress bool) error {
	data, err := readMaybeGzipped(clusterPath(dataDir, compress), compress)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cluster.json: %w", err)
	}

	var cf clusterFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parsing cluster.json: %w", err)
	}
	if cf.Version != onDiskVersion {
		return fmt.Errorf("unsupported cluster.json version %d", cf.Version)
	}

	centroidByKey := make(map[uint32][]float32)
	for _, pair := range cf.ClusterCentroids {
		key := uint32(pair[0].(float64))
		raw := pair[1].([]any)
		centroid := make([]float32, len(raw))
		for i, x := range raw {
			centroid[i] = float32(x.(float64))
		}
		centroidByKey[key] = centroid
	}
	dimByKey := make(map[uint32]int)
	for _, pair := range cf.ClusterDimensions {
		key := uint32(pair[0].(float64))
		dimByKey[key] = int(pair[1].(float64))
	}

	clusters := make(map[uint32]*Cluster)
	memberOf := make(map[string]uint32)
	for _, pair := range cf.Clusters {
		key := uint32(pair[0].(float64))
		rawMembers := pair[1].([]any)
		var members []vector.ID
		for _, rm := range rawMembers {
			key := rm.(string)
			id, ok := keyToID(key)
			if !ok {
				continue
			}
			if !s.base.HasVector(id) {
				continue
			}
			members = append(members, id)
		}
		c := &Cluster{Key: key, Centroid: centroidByKey[key], Dimension: dimByKey[key], Members: members}
		clusters[key] = c
		for _, m := range members {
			memberOf[m.Key()] = key
		}
	}

	s.mu.Lock()
	s.clusters = clusters
	s.memberOf = memberOf
	s.clusterSeq = cf.ClusterIDCounter
	s.mu.Unlock()

	if s.cfg.RunKMeansOnLoad {
		return s.RunKMeans(len(clusters), s.cfg.KMeansMaxIterations)
	}
	return nil
}

func writeMaybeGzipped(path string, data []byte, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if !compress {
		_, err := f.Write(data)
		return err
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func readMaybeGzipped(path string, compress bool) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !compress {
		return io.ReadAll(f)
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

// keyToID inverts vector.ID.Key() for the "i:"/"s:" prefixed forms used in
// persistence.
func keyToID(key string) (vector.ID, bool) {
	if len(key) < 2 {
		return vector.ID{}, false
	}
	switch key[:2] {
	case "s:":
		return vector.StringID(key[2:]), true
	case "i:":
		var n uint64
		if _, err := fmt.Sscanf(key[2:], "%d", &n); err != nil {
			return vector.ID{}, false
		}
		return vector.IntID(n), true
	}
	return vector.ID{}, false
}
