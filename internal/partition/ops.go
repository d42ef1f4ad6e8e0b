package partition

import (
	"fmt"
	"time"

	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
	"github.com/veclite-io/veclite/internal/verrors"
)

// AddResult reports which partition a vector landed in.
type AddResult struct {
	PartitionID string
	VectorID    vector.ID
}

// AddVector inserts into the active partition, rolling over to a new
// active partition first if it is at capacity and auto-creation is
// enabled.
func (m *Manager) AddVector(id *vector.ID, v []float32, md metadata.Metadata) (AddResult, error) {
	if err := m.checkClosed(); err != nil {
		return AddResult{}, err
	}

	r, pid, err := m.activeForWriteLocked()
	if err != nil {
		return AddResult{}, err
	}

	actual, err := r.store.AddVector(id, v, md)
	if err != nil {
		return AddResult{}, err
	}
	m.bumpVectorCount(pid, 1)
	return AddResult{PartitionID: pid, VectorID: actual}, nil
}

// activeForWriteLocked returns the resident active partition, rolling
// over to a freshly auto-created one when the current active partition
// has reached PartitionCapacity.
func (m *Manager) activeForWriteLocked() (*resident, string, error) {
	m.mu.RLock()
	pid := m.activePartition
	m.mu.RUnlock()
	if pid == "" {
		return nil, "", fmt.Errorf("%w: no active partition", verrors.ErrNotFound)
	}

	r, err := m.loadPartition(pid)
	if err != nil {
		return nil, "", err
	}

	if m.cfg.PartitionCapacity > 0 && uint64(r.store.Len()) >= m.cfg.PartitionCapacity {
		if !m.cfg.AutoCreatePartitions {
			return nil, "", fmt.Errorf("%w: partition %q is full", verrors.ErrCapacityExhausted, pid)
		}
		newID := newPartitionID(time.Now())
		if _, err := m.CreatePartition(newID, newID, CreateOptions{SetActive: true}); err != nil {
			return nil, "", fmt.Errorf("rolling over to new partition: %w", err)
		}
		m.mu.RLock()
		pid = m.activePartition
		m.mu.RUnlock()
		r, err = m.loadPartition(pid)
		if err != nil {
			return nil, "", err
		}
	}
	return r, pid, nil
}

func (m *Manager) bumpVectorCount(pid string, delta int64) {
	m.mu.Lock()
	if c, ok := m.configs[pid]; ok {
		if delta >= 0 {
			c.VectorCount += uint64(delta)
		} else if c.VectorCount >= uint64(-delta) {
			c.VectorCount -= uint64(-delta)
		} else {
			c.VectorCount = 0
		}
	}
	m.mu.Unlock()
	m.debouncer.Schedule()
}

// BulkAdd inserts batch into the active partition, splitting across a
// rollover to a new active partition when the current one fills up
// mid-batch.
func (m *Manager) BulkAdd(batch []store.BulkItem) (int, []AddResult, error) {
	if err := m.checkClosed(); err != nil {
		return 0, nil, err
	}
	results := make([]AddResult, 0, len(batch))
	added := 0
	for _, item := range batch {
		r, pid, err := m.activeForWriteLocked()
		if err != nil {
			return added, results, err
		}
		actual, err := r.store.AddVector(item.ID, item.Vector, item.Metadata)
		if err != nil {
			continue
		}
		m.bumpVectorCount(pid, 1)
		added++
		results = append(results, AddResult{PartitionID: pid, VectorID: actual})
	}
	return added, results, nil
}

// locatePartition finds the resident (loading if necessary) partition
// holding id, checking the active partition first and then loading each
// other configured partition in turn until found. ids is not namespaced
// per partition, so this is a linear scan over partitions, not vectors.
func (m *Manager) locatePartition(id vector.ID) (*resident, string, error) {
	m.mu.RLock()
	pid := m.activePartition
	var allIDs []string
	for cid := range m.configs {
		allIDs = append(allIDs, cid)
	}
	m.mu.RUnlock()

	if pid != "" {
		if r, err := m.loadPartition(pid); err == nil && r.store.HasVector(id) {
			return r, pid, nil
		}
	}
	for _, cid := range allIDs {
		if cid == pid {
			continue
		}
		r, err := m.loadPartition(cid)
		if err != nil {
			continue
		}
		if r.store.HasVector(id) {
			return r, cid, nil
		}
	}
	return nil, "", fmt.Errorf("%w: vector %s", verrors.ErrNotFound, id)
}

// GetVector returns the vector stored under id, searching every
// configured partition.
func (m *Manager) GetVector(id vector.ID) ([]float32, bool) {
	r, _, err := m.locatePartition(id)
	if err != nil {
		return nil, false
	}
	return r.store.GetVector(id)
}

// GetMetadata returns the metadata attached to id, searching every
// configured partition.
func (m *Manager) GetMetadata(id vector.ID) (metadata.Metadata, bool) {
	r, _, err := m.locatePartition(id)
	if err != nil {
		return nil, false
	}
	return r.store.GetMetadata(id)
}

// DeleteVector removes id from whichever partition holds it.
func (m *Manager) DeleteVector(id vector.ID) (bool, error) {
	if err := m.checkClosed(); err != nil {
		return false, err
	}
	r, pid, err := m.locatePartition(id)
	if err != nil {
		return false, nil
	}
	ok := r.store.DeleteVector(id)
	if ok {
		m.bumpVectorCount(pid, -1)
	}
	return ok, nil
}

// UpdateMetadata merges patch into id's metadata, wherever it resides.
func (m *Manager) UpdateMetadata(id vector.ID, patch metadata.Metadata) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	r, _, err := m.locatePartition(id)
	if err != nil {
		return err
	}
	return r.store.UpdateMetadata(id, patch)
}

// UpdateVector replaces the stored vector for id, wherever it resides.
func (m *Manager) UpdateVector(id vector.ID, v []float32) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	r, _, err := m.locatePartition(id)
	if err != nil {
		return err
	}
	return r.store.UpdateVector(id, v)
}
